package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pterm/pterm"
)

// Outcome classifies how an ingested event ended
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected" // validation failure
	OutcomeFailed   Outcome = "failed"   // internal failure, degraded silently
	OutcomeIgnored  Outcome = "ignored"  // bots and blacklisted visitors
)

type eventSample struct {
	at      time.Time
	action  string
	outcome Outcome
}

// MetricsCollector collects ingestion metrics
type MetricsCollector struct {
	logger *pterm.Logger

	// In-memory buffer of the last minute of events
	eventBuffer []eventSample
	bufferMu    sync.Mutex

	// Lifetime counters per action and outcome
	countersMu sync.RWMutex
	counters   map[string]map[Outcome]int64

	// Current metrics
	mu            sync.RWMutex
	eventRate     float64 // events per second over the sliding window
	failureRate   float64 // failed events per second over the sliding window
	lastMinute    int64
	lastUpdate    time.Time
	lastEventTime time.Time

	// Cached JSON for metrics (optimization)
	cachedJSON []byte

	// Lifecycle management
	stopChan chan struct{}
	stopped  bool
}

// ActionMetrics holds lifetime counters for one dispatch action
type ActionMetrics struct {
	Action   string `json:"action"`
	Accepted int64  `json:"accepted"`
	Rejected int64  `json:"rejected"`
	Failed   int64  `json:"failed"`
	Ignored  int64  `json:"ignored"`
}

// IngestionMetrics represents current ingestion statistics
type IngestionMetrics struct {
	EventRate     float64         `json:"event_rate"`   // events/sec
	FailureRate   float64         `json:"failure_rate"` // failures/sec
	LastMinute    int64           `json:"last_minute"`
	LastEventTime time.Time       `json:"last_event_time"`
	Timestamp     time.Time       `json:"timestamp"`
	Totals        ActionMetrics   `json:"totals"`
	PerAction     []ActionMetrics `json:"per_action"`
}

// NewMetricsCollector creates a new ingestion metrics collector
func NewMetricsCollector(logger *pterm.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:      logger,
		lastUpdate:  time.Now(),
		stopChan:    make(chan struct{}),
		eventBuffer: make([]eventSample, 0, 1024),
		counters:    make(map[string]map[Outcome]int64),
	}
}

// Record counts one processed event
func (m *MetricsCollector) Record(action string, outcome Outcome) {
	now := time.Now()

	m.countersMu.Lock()
	perAction, ok := m.counters[action]
	if !ok {
		perAction = make(map[Outcome]int64, 4)
		m.counters[action] = perAction
	}
	perAction[outcome]++
	m.countersMu.Unlock()

	m.bufferMu.Lock()
	m.eventBuffer = append(m.eventBuffer, eventSample{at: now, action: action, outcome: outcome})
	m.bufferMu.Unlock()
}

// Start begins collecting metrics at regular intervals
func (m *MetricsCollector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.collectMetrics()
			case <-m.stopChan:
				m.logger.Info("Ingestion metrics collector stopped")
				return
			}
		}
	}()
	m.logger.Info("Ingestion metrics collector started",
		m.logger.Args("interval", interval.String()))
}

// Stop gracefully stops the metrics collector
func (m *MetricsCollector) Stop() {
	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		close(m.stopChan)
	}
	m.mu.Unlock()
}

// GetCachedJSON returns the cached JSON representation of the metrics
func (m *MetricsCollector) GetCachedJSON() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cachedJSON
}

// collectMetrics prunes the buffer and recomputes the sliding window rates
func (m *MetricsCollector) collectMetrics() {
	now := time.Now()

	// Use a 5-second sliding window for smoother rates
	windowDuration := 5 * time.Second
	windowStart := now.Add(-windowDuration)
	oneMinuteAgo := now.Add(-1 * time.Minute)

	m.bufferMu.Lock()
	// Samples are appended in arrival order, so the buffer is sorted by time
	firstValid := sort.Search(len(m.eventBuffer), func(i int) bool {
		return m.eventBuffer[i].at.After(oneMinuteAgo)
	})
	if firstValid > 0 {
		// Create a new slice to allow GC to collect the old array backing
		pruned := make([]eventSample, len(m.eventBuffer)-firstValid, cap(m.eventBuffer))
		copy(pruned, m.eventBuffer[firstValid:])
		m.eventBuffer = pruned
	}

	var windowEvents, windowFailures int64
	var lastEvent time.Time
	for _, sample := range m.eventBuffer {
		if sample.at.After(windowStart) {
			windowEvents++
			if sample.outcome == OutcomeFailed {
				windowFailures++
			}
		}
		lastEvent = sample.at
	}
	lastMinute := int64(len(m.eventBuffer))
	m.bufferMu.Unlock()

	m.mu.Lock()
	m.eventRate = float64(windowEvents) / windowDuration.Seconds()
	m.failureRate = float64(windowFailures) / windowDuration.Seconds()
	m.lastMinute = lastMinute
	if !lastEvent.IsZero() {
		m.lastEventTime = lastEvent
	}
	m.lastUpdate = now
	m.mu.Unlock()

	snapshot := m.GetMetrics()
	data, err := json.Marshal(snapshot)
	if err != nil {
		m.logger.Warn("Failed to encode ingestion metrics", m.logger.Args("error", err))
		return
	}

	m.mu.Lock()
	m.cachedJSON = data
	m.mu.Unlock()

	if windowFailures > 0 {
		m.logger.Debug("Ingestion failures in window",
			m.logger.Args("failures", windowFailures, "events", windowEvents))
	}
}

// GetMetrics returns the current metrics snapshot
func (m *MetricsCollector) GetMetrics() *IngestionMetrics {
	m.mu.RLock()
	metrics := &IngestionMetrics{
		EventRate:     m.eventRate,
		FailureRate:   m.failureRate,
		LastMinute:    m.lastMinute,
		LastEventTime: m.lastEventTime,
		Timestamp:     m.lastUpdate,
	}
	m.mu.RUnlock()

	metrics.PerAction = m.perAction()
	metrics.Totals.Action = "all"
	for _, action := range metrics.PerAction {
		metrics.Totals.Accepted += action.Accepted
		metrics.Totals.Rejected += action.Rejected
		metrics.Totals.Failed += action.Failed
		metrics.Totals.Ignored += action.Ignored
	}
	return metrics
}

// Failures returns the lifetime failed-event count across all actions
func (m *MetricsCollector) Failures() int64 {
	m.countersMu.RLock()
	defer m.countersMu.RUnlock()

	var total int64
	for _, perAction := range m.counters {
		total += perAction[OutcomeFailed]
	}
	return total
}

func (m *MetricsCollector) perAction() []ActionMetrics {
	m.countersMu.RLock()
	defer m.countersMu.RUnlock()

	result := make([]ActionMetrics, 0, len(m.counters))
	for action, perAction := range m.counters {
		result = append(result, ActionMetrics{
			Action:   action,
			Accepted: perAction[OutcomeAccepted],
			Rejected: perAction[OutcomeRejected],
			Failed:   perAction[OutcomeFailed],
			Ignored:  perAction[OutcomeIgnored],
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Action < result[j].Action })
	return result
}
