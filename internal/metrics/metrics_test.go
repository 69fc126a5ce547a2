package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordDrained("CREATE")
	c.EventTranslated("file_created")
	c.EventDispatched("file_created")
	c.HandlerFailed("file_created")
	c.ProtocolError()
	c.Overflow()
	c.LoopError("dispatch")
	c.SetNodes(3)
	c.SetQueued(1)
}

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	c.EventTranslated("file_created")
	c.EventTranslated("file_created")
	c.EventTranslated("dir_deleted")
	c.ProtocolError()
	c.SetNodes(7)

	if got := testutil.ToFloat64(c.translated.WithLabelValues("file_created")); got != 2 {
		t.Errorf("file_created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.protocolErrors); got != 1 {
		t.Errorf("protocol errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.nodes); got != 7 {
		t.Errorf("nodes = %v, want 7", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first New() failed: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Error("second New() on the same registry should fail")
	}
}
