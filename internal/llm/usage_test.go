package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsageTracker(t *testing.T) {
	tracker := NewUsageTracker()
	if tracker == nil {
		t.Fatal("Expected non-nil tracker")
	}
	if tracker.maxRecords != 1000 {
		t.Errorf("maxRecords = %d, want 1000", tracker.maxRecords)
	}

	stats := tracker.Stats()
	assert.Equal(t, int64(0), stats.TotalRequests)
	assert.Empty(t, stats.Providers)
}

func TestUsageTracker_Record(t *testing.T) {
	tracker := NewUsageTracker()

	tracker.Record(&Response{
		Provider:     ProviderGroq,
		Model:        "llama-3.3-70b-versatile",
		InputTokens:  100,
		OutputTokens: 50,
	}, 200*time.Millisecond)
	tracker.Record(&Response{
		Provider:     ProviderGroq,
		Model:        "llama-3.3-70b-versatile",
		InputTokens:  10,
		OutputTokens: 5,
	}, 400*time.Millisecond)

	stats := tracker.Stats()
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(165), stats.TotalTokens)

	groq := stats.Providers[ProviderGroq]
	assert.Equal(t, int64(2), groq.Requests)
	assert.Equal(t, int64(110), groq.InputTokens)
	assert.Equal(t, int64(55), groq.OutputTokens)
	assert.InDelta(t, 300.0, groq.AvgDurationMs, 0.001)
}

func TestUsageTracker_RecordNil(t *testing.T) {
	tracker := NewUsageTracker()
	tracker.Record(nil, time.Second)
	assert.Equal(t, int64(0), tracker.Stats().TotalRequests)
}

func TestUsageTracker_RecordFailure(t *testing.T) {
	tracker := NewUsageTracker()

	tracker.RecordFailure(ProviderGroq)
	tracker.RecordFailure(ProviderGroq)
	tracker.RecordFailure(ProviderGemini)

	stats := tracker.Stats()
	assert.Equal(t, int64(3), stats.TotalFailures)
	assert.Equal(t, int64(2), stats.Providers[ProviderGroq].Failures)
	assert.Equal(t, int64(0), stats.Providers[ProviderGroq].Requests)
}

func TestUsageTracker_RecentRecords(t *testing.T) {
	tracker := NewUsageTracker()

	for _, model := range []string{"first", "second", "third"} {
		tracker.Record(&Response{Provider: ProviderGemini, Model: model}, time.Millisecond)
	}

	records := tracker.RecentRecords(2)
	require.Len(t, records, 2)
	assert.Equal(t, "third", records[0].Model)
	assert.Equal(t, "second", records[1].Model)

	all := tracker.RecentRecords(0)
	assert.Len(t, all, 3)
}
