package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFrameIn_IncrementsCounterAndBytes(t *testing.T) {
	r := New()
	r.FrameIn("CreateWorkItem", 128)
	r.FrameIn("CreateWorkItem", 32)

	got := testutil.ToFloat64(r.framesIn.WithLabelValues("CreateWorkItem"))
	if got != 2 {
		t.Fatalf("expected 2 frames recorded, got %v", got)
	}
	if testutil.ToFloat64(r.bytesIn) != 160 {
		t.Fatalf("expected 160 bytes recorded, got %v", testutil.ToFloat64(r.bytesIn))
	}
}

func TestStartTimer_RecordsAnObservationOnCall(t *testing.T) {
	r := New()
	stop := r.StartTimer("UpdateWorkItem")
	time.Sleep(time.Millisecond)
	stop()

	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var samples uint64
	for _, mf := range families {
		if mf.GetName() != "pmsync_request_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			samples += m.GetHistogram().GetSampleCount()
		}
	}
	if samples != 1 {
		t.Fatalf("expected exactly one latency observation recorded, got %d", samples)
	}
}

func TestSetConnectionCounts_UpdatesTotalAndPerTenantGauges(t *testing.T) {
	r := New()
	r.SetConnectionCounts(5, map[string]int{"tenant-a": 3, "tenant-b": 2})

	if testutil.ToFloat64(r.connTotal) != 5 {
		t.Fatalf("expected total gauge 5, got %v", testutil.ToFloat64(r.connTotal))
	}
	if testutil.ToFloat64(r.connByTenant.WithLabelValues("tenant-a")) != 3 {
		t.Fatalf("expected tenant-a gauge 3")
	}
}
