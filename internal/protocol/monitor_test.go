package protocol

import (
	"errors"
	"testing"
	"time"
)

func TestMonitorCountsAndThroughput(t *testing.T) {
	m := NewMonitor("sess-1", MonitorConfig{})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }
	m.startedAt = base

	for i := 0; i < 10; i++ {
		now = now.Add(time.Second)
		m.RecordEvent(EventTextDelta)
	}
	m.RecordEvent(EventFinish)

	metrics := m.Complete()
	if metrics.EventCounts[EventTextDelta] != 10 {
		t.Errorf("text-delta count = %d, want 10", metrics.EventCounts[EventTextDelta])
	}
	if metrics.TotalEvents != 11 {
		t.Errorf("total = %d, want 11", metrics.TotalEvents)
	}
	// 11 events over 10 seconds.
	if metrics.EventsPerSecond < 1.0 || metrics.EventsPerSecond > 1.2 {
		t.Errorf("events/sec = %f", metrics.EventsPerSecond)
	}
	if metrics.SessionID != "sess-1" {
		t.Errorf("session = %q", metrics.SessionID)
	}
}

func TestMonitorUnknownTypeDeduplication(t *testing.T) {
	m := NewMonitor("sess-2", MonitorConfig{})
	for i := 0; i < 5; i++ {
		m.RecordUnknownType("mystery-a", []byte(`{"type":"mystery-a","n":1}`))
	}
	m.RecordUnknownType("mystery-b", []byte(`{"type":"mystery-b"}`))

	metrics := m.Complete()
	if len(metrics.UnknownTypes) != 2 {
		t.Fatalf("unknown types = %v, want 2 entries", metrics.UnknownTypes)
	}
	// Sorted by type.
	if metrics.UnknownTypes[0].Type != "mystery-a" || metrics.UnknownTypes[0].Count != 5 {
		t.Errorf("first record = %+v", metrics.UnknownTypes[0])
	}
	if metrics.UnknownTypes[0].FirstSample == "" {
		t.Error("first sample must be retained")
	}
}

func TestMonitorUnknownTypeCap(t *testing.T) {
	m := NewMonitor("sess-3", MonitorConfig{MaxUnknownTypes: 3})
	for i := 0; i < 10; i++ {
		m.RecordUnknownType(string(rune('a'+i)), []byte("{}"))
	}
	metrics := m.Complete()
	if len(metrics.UnknownTypes) != 3 {
		t.Errorf("unknown types = %d, want capped at 3", len(metrics.UnknownTypes))
	}
}

func TestMonitorParseErrorsCapped(t *testing.T) {
	m := NewMonitor("sess-4", MonitorConfig{MaxParseErrors: 2})
	for i := 0; i < 5; i++ {
		m.RecordParseError(errors.New("bad chunk"), []byte("garbage"))
	}
	metrics := m.Complete()
	if len(metrics.ParseErrors) != 2 {
		t.Errorf("parse errors = %d, want capped at 2", len(metrics.ParseErrors))
	}
}

func TestMonitorFieldMismatch(t *testing.T) {
	m := NewMonitor("sess-5", MonitorConfig{})
	m.RecordFieldMismatch("delta", []string{"id", "textDelta"}, EventTextDelta)
	metrics := m.Complete()
	if len(metrics.FieldMismatches) != 1 {
		t.Fatalf("mismatches = %v", metrics.FieldMismatches)
	}
	rec := metrics.FieldMismatches[0]
	if rec.ExpectedField != "delta" || rec.Type != EventTextDelta {
		t.Errorf("mismatch record = %+v", rec)
	}
}

func TestMonitorCompleteIsFinal(t *testing.T) {
	m := NewMonitor("sess-6", MonitorConfig{})
	m.RecordEvent(EventTextDelta)
	first := m.Complete()

	// Recording after completion is a no-op; a second Complete returns the
	// identical snapshot.
	m.RecordEvent(EventTextDelta)
	m.RecordUnknownType("late", []byte("{}"))
	second := m.Complete()

	if second.TotalEvents != first.TotalEvents {
		t.Errorf("snapshot changed after completion: %d -> %d", first.TotalEvents, second.TotalEvents)
	}
	if !second.EndedAt.Equal(first.EndedAt) {
		t.Error("EndedAt changed on second Complete")
	}
}
