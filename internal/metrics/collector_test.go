package metrics

import (
	"testing"
	"time"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpDBQuery, 10*time.Millisecond)
	c.RecordTiming(OpDBQuery, 30*time.Millisecond)

	snap := c.Snapshot()
	if snap.DBQuery == nil {
		t.Fatal("DBQuery snapshot missing")
	}
	if snap.DBQuery.Count != 2 {
		t.Errorf("Count = %d, want 2", snap.DBQuery.Count)
	}
	if snap.DBQuery.MinTimeMs != 10 || snap.DBQuery.MaxTimeMs != 30 {
		t.Errorf("min/max = %d/%d, want 10/30", snap.DBQuery.MinTimeMs, snap.DBQuery.MaxTimeMs)
	}
	if snap.DBQuery.AvgTimeMs != 20 {
		t.Errorf("AvgTimeMs = %v, want 20", snap.DBQuery.AvgTimeMs)
	}
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()

	c.RecordLLMUsage(OpOracleDecide, 100*time.Millisecond, 500, 200)

	snap := c.Snapshot()
	if snap.OracleDecide == nil {
		t.Fatal("OracleDecide snapshot missing")
	}
	if snap.OracleDecide.TotalInputTokens == nil || *snap.OracleDecide.TotalInputTokens != 500 {
		t.Errorf("TotalInputTokens = %v, want 500", snap.OracleDecide.TotalInputTokens)
	}
	if snap.OracleDecide.TotalOutputTokens == nil || *snap.OracleDecide.TotalOutputTokens != 200 {
		t.Errorf("TotalOutputTokens = %v, want 200", snap.OracleDecide.TotalOutputTokens)
	}
}

func TestCountersAndGauges(t *testing.T) {
	c := NewCollector()

	c.IncCounter(CounterCyclesCompleted)
	c.IncCounter(CounterCyclesCompleted)
	c.IncCounter(CounterTicksDropped)
	c.SetGauge(GaugeStaleBacklog, 42)
	c.SetGauge(GaugeStaleBacklog, 17)

	snap := c.Snapshot()
	if snap.Counters[CounterCyclesCompleted] != 2 {
		t.Errorf("cycles_completed = %d, want 2", snap.Counters[CounterCyclesCompleted])
	}
	if snap.Counters[CounterTicksDropped] != 1 {
		t.Errorf("ticks_dropped = %d, want 1", snap.Counters[CounterTicksDropped])
	}
	if snap.Gauges[GaugeStaleBacklog] != 17 {
		t.Errorf("stale_backlog = %d, want last set value 17", snap.Gauges[GaugeStaleBacklog])
	}
}

func TestSnapshotEmptyOps(t *testing.T) {
	c := NewCollector()

	snap := c.Snapshot()
	if snap.OracleDecide != nil || snap.DBQuery != nil || snap.Fusion != nil {
		t.Error("operations with no data should snapshot as nil")
	}
}
