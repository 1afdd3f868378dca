// Package reqctx implements the per-request context (C15): a correlation
// id, a process-wide monotonic sequence number, and a short log-prefix
// rendering of the request's ids.
package reqctx

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var requestCounter uint64

// NextSeq returns the next value of the process-wide request sequence
// counter. Exposed for callers (e.g. metrics) that need the raw counter
// without constructing a full Context.
func NextSeq() uint64 {
	return atomic.AddUint64(&requestCounter, 1)
}

// Context is the immutable per-request record threaded through C11's
// dispatch pipeline; the dispatcher's log lines carry its CorrelationID.
type Context struct {
	CorrelationID string
	RequestSeq    uint64
	UserID        string
	ConnectionID  string
	startedAt     time.Time
}

// New builds a Context. messageID becomes the correlation id verbatim
// when non-empty (so client-supplied idempotency keys double as trace
// ids); otherwise a correlation id is minted from the sequence number
// and a fresh UUID, matching the "req-{seq}-{uuid}" convention.
func New(userID, connectionID, messageID string) Context {
	seq := NextSeq()
	correlationID := messageID
	if correlationID == "" {
		correlationID = fmt.Sprintf("req-%d-%s", seq, uuid.NewString())
	}
	return Context{
		CorrelationID: correlationID,
		RequestSeq:    seq,
		UserID:        userID,
		ConnectionID:  connectionID,
		startedAt:     time.Now(),
	}
}

// ElapsedMs reports milliseconds since the context was created.
func (c Context) ElapsedMs() int64 {
	return time.Since(c.startedAt).Milliseconds()
}

func truncate8(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

// LogPrefix renders the conventional "[req=xxxxxxxx user=xxxxxxxx
// conn=xxxxxxxx]" prefix, each id truncated to its first 8 characters so
// log lines stay scannable while remaining disambiguating in practice.
func (c Context) LogPrefix() string {
	return fmt.Sprintf("[req=%s user=%s conn=%s]",
		truncate8(c.CorrelationID), truncate8(c.UserID), truncate8(c.ConnectionID))
}
