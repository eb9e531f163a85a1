package protocol

import (
	"sort"
	"sync"
	"time"
)

// ParseErrorSample is one recorded parse failure with a truncated payload.
type ParseErrorSample struct {
	Error  string
	Sample string
	At     time.Time
}

// UnknownTypeRecord deduplicates unknown discriminators: one record per type
// with a running occurrence count and the first payload seen.
type UnknownTypeRecord struct {
	Type        string
	Count       int
	FirstSample string
	FirstSeen   time.Time
}

// FieldMismatchRecord captures provider field-naming drift, e.g. a delta
// field renamed upstream.
type FieldMismatchRecord struct {
	Type          EventType
	ExpectedField string
	ActualFields  []string
	At            time.Time
}

// StreamMetrics is the immutable per-session snapshot returned by
// Monitor.Complete.
type StreamMetrics struct {
	SessionID string

	EventCounts     map[EventType]int
	TotalEvents     int
	ParseErrors     []ParseErrorSample
	UnknownTypes    []UnknownTypeRecord
	FieldMismatches []FieldMismatchRecord

	StartedAt   time.Time
	LastEventAt time.Time
	EndedAt     time.Time

	EventsPerSecond float64
}

const (
	defaultMaxUnknownTypes    = 50
	defaultMaxParseErrors     = 20
	defaultMaxFieldMismatches = 50
)

// MonitorConfig bounds sample retention so an adversarial or buggy stream
// cannot grow the accumulator without limit.
type MonitorConfig struct {
	MaxUnknownTypes    int
	MaxParseErrors     int
	MaxFieldMismatches int
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.MaxUnknownTypes <= 0 {
		c.MaxUnknownTypes = defaultMaxUnknownTypes
	}
	if c.MaxParseErrors <= 0 {
		c.MaxParseErrors = defaultMaxParseErrors
	}
	if c.MaxFieldMismatches <= 0 {
		c.MaxFieldMismatches = defaultMaxFieldMismatches
	}
	return c
}

// Monitor accumulates per-stream-session protocol health. One monitor per
// session, created at stream start, finalized exactly once at stream end.
// Never share a monitor across sessions.
type Monitor struct {
	mu  sync.Mutex
	cfg MonitorConfig

	sessionID   string
	counts      map[EventType]int
	total       int
	parseErrors []ParseErrorSample
	unknown     map[string]*UnknownTypeRecord
	mismatches  []FieldMismatchRecord

	startedAt   time.Time
	lastEventAt time.Time

	completed bool
	snapshot  StreamMetrics

	now func() time.Time
}

func NewMonitor(sessionID string, cfg MonitorConfig) *Monitor {
	m := &Monitor{
		cfg:       cfg.withDefaults(),
		sessionID: sessionID,
		counts:    make(map[EventType]int),
		unknown:   make(map[string]*UnknownTypeRecord),
		now:       time.Now,
	}
	m.startedAt = m.now()
	return m
}

func (m *Monitor) RecordEvent(t EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completed {
		return
	}
	m.counts[t]++
	m.total++
	m.lastEventAt = m.now()
}

func (m *Monitor) RecordParseError(err error, sample []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completed || len(m.parseErrors) >= m.cfg.MaxParseErrors {
		return
	}
	m.parseErrors = append(m.parseErrors, ParseErrorSample{
		Error:  err.Error(),
		Sample: truncate(sample),
		At:     m.now(),
	})
}

func (m *Monitor) RecordUnknownType(t string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completed {
		return
	}
	if rec, ok := m.unknown[t]; ok {
		rec.Count++
		return
	}
	if len(m.unknown) >= m.cfg.MaxUnknownTypes {
		return
	}
	m.unknown[t] = &UnknownTypeRecord{
		Type:        t,
		Count:       1,
		FirstSample: truncate(raw),
		FirstSeen:   m.now(),
	}
}

func (m *Monitor) RecordFieldMismatch(expectedField string, actualFields []string, t EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completed || len(m.mismatches) >= m.cfg.MaxFieldMismatches {
		return
	}
	m.mismatches = append(m.mismatches, FieldMismatchRecord{
		Type:          t,
		ExpectedField: expectedField,
		ActualFields:  actualFields,
		At:            m.now(),
	})
}

// Complete finalizes the session and returns the immutable snapshot. The
// first call wins; later calls return the same snapshot and record nothing
// further.
func (m *Monitor) Complete() StreamMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completed {
		return m.snapshot
	}
	m.completed = true

	ended := m.now()
	counts := make(map[EventType]int, len(m.counts))
	for k, v := range m.counts {
		counts[k] = v
	}
	unknown := make([]UnknownTypeRecord, 0, len(m.unknown))
	for _, rec := range m.unknown {
		unknown = append(unknown, *rec)
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i].Type < unknown[j].Type })

	var eps float64
	if d := ended.Sub(m.startedAt).Seconds(); d > 0 {
		eps = float64(m.total) / d
	}

	m.snapshot = StreamMetrics{
		SessionID:       m.sessionID,
		EventCounts:     counts,
		TotalEvents:     m.total,
		ParseErrors:     append([]ParseErrorSample(nil), m.parseErrors...),
		UnknownTypes:    unknown,
		FieldMismatches: append([]FieldMismatchRecord(nil), m.mismatches...),
		StartedAt:       m.startedAt,
		LastEventAt:     m.lastEventAt,
		EndedAt:         ended,
		EventsPerSecond: eps,
	}
	return m.snapshot
}
