package metrics

import "testing"

// TestRegistry_RecordsWithoutPanic exercises every helper and gathers.
func TestRegistry_RecordsWithoutPanic(t *testing.T) {
	r := New()

	r.ObserveAppend("inserted")
	r.ObserveAppend("rejected")
	r.ObserveFlush("ok", 0.01, 4096)
	r.ObserveFlush("error", 0, 0)
	r.SetBufferState(10, 2048)
	r.ObserveLookup("buffer", "hit")
	r.ObserveLookup("segment", "miss")
	r.ObserveBloomNegative()
	r.SetSegmentsOpen(3)
	r.SetWALStats(7, 512)

	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families registered")
	}
}

// TestRegistry_NilSafe checks a nil registry is a no-op everywhere.
func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	r.ObserveAppend("inserted")
	r.ObserveFlush("ok", 0, 0)
	r.SetBufferState(0, 0)
	r.ObserveLookup("buffer", "hit")
	r.ObserveBloomNegative()
	r.SetSegmentsOpen(0)
	r.SetWALStats(0, 0)
}
