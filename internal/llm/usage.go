package llm

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// UsageRecord represents a single successful LLM call
type UsageRecord struct {
	ID           uuid.UUID `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Provider     Provider  `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	Duration     float64   `json:"duration_ms"`
}

// ProviderStats aggregates usage for one provider
type ProviderStats struct {
	Requests      int64   `json:"requests"`
	Failures      int64   `json:"failures"`
	InputTokens   int64   `json:"input_tokens"`
	OutputTokens  int64   `json:"output_tokens"`
	AvgDurationMs float64 `json:"avg_duration_ms"`

	totalDurationMs float64
}

// UsageStats provides aggregate usage statistics
type UsageStats struct {
	TotalRequests int64                      `json:"total_requests"`
	TotalFailures int64                      `json:"total_failures"`
	TotalTokens   int64                      `json:"total_tokens"`
	Providers     map[Provider]ProviderStats `json:"providers"`
	Since         time.Time                  `json:"since"`
}

// UsageTracker tracks LLM usage per provider
type UsageTracker struct {
	mu sync.RWMutex

	providers map[Provider]*ProviderStats
	since     time.Time

	// History (rolling window)
	records     []UsageRecord
	maxRecords  int
	recordIndex int
}

// NewUsageTracker creates a new usage tracker
func NewUsageTracker() *UsageTracker {
	const maxRecords = 1000
	return &UsageTracker{
		providers:  make(map[Provider]*ProviderStats),
		since:      time.Now(),
		records:    make([]UsageRecord, maxRecords),
		maxRecords: maxRecords,
	}
}

// Record records a successful call
func (t *UsageTracker) Record(resp *Response, duration time.Duration) {
	if resp == nil {
		return
	}

	record := UsageRecord{
		ID:           uuid.New(),
		Timestamp:    time.Now(),
		Provider:     resp.Provider,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		TotalTokens:  resp.InputTokens + resp.OutputTokens,
		Duration:     float64(duration.Milliseconds()),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.statsFor(resp.Provider)
	stats.Requests++
	stats.InputTokens += int64(resp.InputTokens)
	stats.OutputTokens += int64(resp.OutputTokens)
	stats.totalDurationMs += record.Duration
	stats.AvgDurationMs = stats.totalDurationMs / float64(stats.Requests)

	t.records[t.recordIndex] = record
	t.recordIndex = (t.recordIndex + 1) % t.maxRecords

	log.Debug().
		Str("provider", string(record.Provider)).
		Str("model", record.Model).
		Int("input_tokens", record.InputTokens).
		Int("output_tokens", record.OutputTokens).
		Float64("duration_ms", record.Duration).
		Msg("recorded LLM usage")
}

// RecordFailure counts a failed call against a provider
func (t *UsageTracker) RecordFailure(provider Provider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statsFor(provider).Failures++
}

// Stats returns a snapshot of usage statistics
func (t *UsageTracker) Stats() UsageStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := UsageStats{
		Providers: make(map[Provider]ProviderStats, len(t.providers)),
		Since:     t.since,
	}
	for p, s := range t.providers {
		out.Providers[p] = *s
		out.TotalRequests += s.Requests
		out.TotalFailures += s.Failures
		out.TotalTokens += s.InputTokens + s.OutputTokens
	}
	return out
}

// RecentRecords returns up to limit records, most recent first
func (t *UsageTracker) RecentRecords(limit int) []UsageRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || limit > t.maxRecords {
		limit = t.maxRecords
	}

	result := make([]UsageRecord, 0, limit)

	idx := (t.recordIndex - 1 + t.maxRecords) % t.maxRecords
	for i := 0; i < t.maxRecords && len(result) < limit; i++ {
		if t.records[idx].ID != uuid.Nil {
			result = append(result, t.records[idx])
		}
		idx = (idx - 1 + t.maxRecords) % t.maxRecords
	}

	return result
}

// statsFor must be called with the lock held
func (t *UsageTracker) statsFor(p Provider) *ProviderStats {
	s, ok := t.providers[p]
	if !ok {
		s = &ProviderStats{}
		t.providers[p] = s
	}
	return s
}
