package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	requestDuration map[string]time.Duration
	errorCount      map[string]int64
	approvalCount   map[string]int64
	sweepCount      map[string]int64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests          map[string]int64   `json:"requests"`
	AvgRequestMillis  map[string]float64 `json:"avgRequestMillis"`
	Errors            map[string]int64   `json:"errors"`
	ApprovalOutcomes  map[string]int64   `json:"approvalOutcomes"`
	EscalationActions map[string]int64   `json:"escalationActions"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		requestDuration: make(map[string]time.Duration),
		errorCount:      make(map[string]int64),
		approvalCount:   make(map[string]int64),
		sweepCount:      make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestDuration[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordApproval counts approve/reject outcomes per level. outcome is the
// action name or an error code.
func (m *Metrics) RecordApproval(action string, level int, outcome string) {
	if m == nil {
		return
	}
	key := action + "|" + strconv.Itoa(level) + "|" + outcome
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvalCount[key]++
}

// RecordEscalation counts sweep actions (remind, reassign, failed, skipped).
func (m *Metrics) RecordEscalation(action string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepCount[action]++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Requests:          map[string]int64{},
		AvgRequestMillis:  map[string]float64{},
		Errors:            map[string]int64{},
		ApprovalOutcomes:  map[string]int64{},
		EscalationActions: map[string]int64{},
	}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.requestCount {
		snap.Requests[k] = v
		if v > 0 {
			snap.AvgRequestMillis[k] = float64(m.requestDuration[k].Microseconds()) / 1000.0 / float64(v)
		}
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	for k, v := range m.approvalCount {
		snap.ApprovalOutcomes[k] = v
	}
	for k, v := range m.sweepCount {
		snap.EscalationActions[k] = v
	}
	return snap
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
