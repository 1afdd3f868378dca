package reqctx

import (
	"strings"
	"testing"
	"time"
)

func TestNew_UsesMessageIDAsCorrelationID(t *testing.T) {
	ctx := New("user-1234567890", "conn-abcdefghij", "m-1")
	if ctx.CorrelationID != "m-1" {
		t.Fatalf("expected correlation id to equal message id, got %q", ctx.CorrelationID)
	}
}

func TestNew_GeneratesCorrelationIDWhenMessageIDEmpty(t *testing.T) {
	ctx := New("u", "c", "")
	if ctx.CorrelationID == "" {
		t.Fatalf("expected a generated correlation id")
	}
	if !strings.HasPrefix(ctx.CorrelationID, "req-") {
		t.Fatalf("expected generated correlation id to start with req-, got %q", ctx.CorrelationID)
	}
}

func TestNextSeq_Monotonic(t *testing.T) {
	a := NextSeq()
	b := NextSeq()
	if b <= a {
		t.Fatalf("expected sequence to increase: a=%d b=%d", a, b)
	}
}

func TestLogPrefix_TruncatesTo8Chars(t *testing.T) {
	ctx := Context{CorrelationID: "correlation-id-long", UserID: "user-id-long", ConnectionID: "conn-id-long"}
	prefix := ctx.LogPrefix()
	if prefix != "[req=correlat user=user-id- conn=conn-id-]" {
		t.Fatalf("unexpected log prefix: %q", prefix)
	}
}

func TestElapsedMs_Advances(t *testing.T) {
	ctx := New("u", "c", "m")
	time.Sleep(5 * time.Millisecond)
	if ctx.ElapsedMs() <= 0 {
		t.Fatalf("expected positive elapsed ms")
	}
}
