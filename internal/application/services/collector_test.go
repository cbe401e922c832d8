package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zatekoja/kpitelemetry/internal/adapters/events"
	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/providers"
	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
	"github.com/zatekoja/kpitelemetry/pkg/config"
)

func newTestCollector(sink repositories.EventSink, batchSize int) *Collector {
	return NewCollector(sink, nil, config.CollectorConfig{
		BatchSize:     batchSize,
		FlushInterval: time.Hour,
		ShutdownGrace: time.Second,
	}, zerolog.Nop(), nil)
}

func TestCollector_CollectValidAndInvalid(t *testing.T) {
	c := newTestCollector(newRecordingSink(), 100)
	ctx := context.Background()

	c.Collect(ctx, searchEvent("s1", "widgets", 120))
	assert.Equal(t, 1, c.QueueStatus().QueueLength)

	invalid := []*entities.Event{
		nil,
		{Kind: "purchase", Timestamp: time.Now(), SessionID: "s1", Source: entities.EventSourceAPI},
		{Kind: entities.EventKindSearch, Timestamp: time.Now(), SessionID: "", Source: entities.EventSourceAPI},
		{Kind: entities.EventKindSearch, Timestamp: time.Now(), SessionID: "s1", Source: "mobile"},
		{Kind: entities.EventKindSearch, SessionID: "s1", Source: entities.EventSourceAPI},
		{Kind: entities.EventKindReview, Timestamp: time.Now(), SessionID: "s1", Source: entities.EventSourceAPI,
			Payload: &entities.SearchPayload{Query: "mismatch"}},
		{Kind: entities.EventKindSearch, Timestamp: time.Now(), SessionID: "s1", Source: entities.EventSourceAPI,
			Payload: &entities.SearchPayload{Query: ""}},
	}
	for i, e := range invalid {
		c.Collect(ctx, e)
		assert.Equal(t, 1, c.QueueStatus().QueueLength, "invalid event %d was queued", i)
	}

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Received)
	assert.EqualValues(t, len(invalid), stats.Dropped)
}

func TestCollector_QueueGrowsByOne(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := newTestCollector(newRecordingSink(), 1<<20)
		ctx := context.Background()

		n := rapid.IntRange(0, 50).Draw(t, "n")
		for i := 0; i < n; i++ {
			before := c.QueueStatus().QueueLength
			kind := rapid.SampledFrom(entities.EventKinds()).Draw(t, "kind")
			c.Collect(ctx, &entities.Event{
				Kind:      kind,
				Timestamp: time.Now(),
				SessionID: rapid.StringMatching(`[a-z0-9]{1,12}`).Draw(t, "session"),
				Source:    rapid.SampledFrom([]entities.EventSource{entities.EventSourceAPI, entities.EventSourceDashboard, entities.EventSourceSystem, entities.EventSourceExternal}).Draw(t, "source"),
			})
			if got := c.QueueStatus().QueueLength; got != before+1 {
				t.Fatalf("queue length %d after collect, want %d", got, before+1)
			}
		}
	})
}

func TestCollector_AssignsIDAndAnonymizes(t *testing.T) {
	sink := newRecordingSink()
	c := newTestCollector(sink, 100)
	ctx := context.Background()

	e := searchEvent("s1", "a rather long search query", 100)
	e.UserID = "bob"
	c.Collect(ctx, e)
	require.NoError(t, c.ForceFlush(ctx))

	rows := sink.rows(repositories.TableKPIEvents)
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0]["id"])
	assert.Equal(t, HashUserID("bob"), rows[0]["user_id"])
	meta := rows[0]["metadata"].(map[string]any)
	assert.Equal(t, "a r...[26 chars]", meta["query"])
	assert.Equal(t, "", e.ID, "caller's event must not be mutated")
}

func TestCollector_ForceFlushSendsOneBatch(t *testing.T) {
	sink := newRecordingSink()
	c := newTestCollector(sink, 1000)
	ctx := context.Background()

	const n = 25
	for i := 0; i < n; i++ {
		c.Collect(ctx, searchEvent("s1", fmt.Sprintf("q%d", i), 10))
	}
	require.NoError(t, c.ForceFlush(ctx))

	batches := sink.tableBatches(repositories.TableKPIEvents)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], n)
	assert.Equal(t, 0, c.QueueStatus().QueueLength)
	assert.EqualValues(t, n, c.Stats().Flushed)

	// FIFO within the batch
	for i, r := range batches[0] {
		assert.Equal(t, fmt.Sprintf("q%d", i), r["metadata"].(map[string]any)["query"])
	}
}

func TestCollector_ForceFlushFailureRequeuesAhead(t *testing.T) {
	sink := newRecordingSink()
	sink.setFail(errors.New("database unavailable"))
	c := newTestCollector(sink, 1000)
	ctx := context.Background()

	const n = 10
	for i := 0; i < n; i++ {
		c.Collect(ctx, searchEvent("s1", fmt.Sprintf("old%d", i), 10))
	}
	require.Error(t, c.ForceFlush(ctx))
	assert.Equal(t, n, c.QueueStatus().QueueLength)
	assert.EqualValues(t, 1, c.Stats().FailedFlushes)
	assert.NotEmpty(t, c.Stats().LastError)

	c.Collect(ctx, searchEvent("s1", "new", 10))
	sink.setFail(nil)
	require.NoError(t, c.ForceFlush(ctx))

	batches := sink.tableBatches(repositories.TableKPIEvents)
	require.Len(t, batches, 1)
	require.Len(t, batches[0], n+1)
	assert.Equal(t, "old0", batches[0][0]["metadata"].(map[string]any)["query"])
	assert.Equal(t, "new", batches[0][n]["metadata"].(map[string]any)["query"])
}

func TestCollector_FlushesAtBatchSize(t *testing.T) {
	sink := newRecordingSink()
	c := newTestCollector(sink, 5)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c.Collect(ctx, searchEvent("s1", "q", 10))
	}
	assert.Empty(t, sink.tableBatches(repositories.TableKPIEvents))

	c.Collect(ctx, searchEvent("s1", "q", 10))
	batches := sink.tableBatches(repositories.TableKPIEvents)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 5)
	assert.Equal(t, 0, c.QueueStatus().QueueLength)
}

func TestCollector_SessionPartition(t *testing.T) {
	sink := newRecordingSink()
	c := newTestCollector(sink, 1000)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Collect(ctx, searchEvent("session-a", "q", 10))
	}

	var wg sync.WaitGroup
	for _, s := range []string{"session-b", "session-c"} {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(session string) {
				defer wg.Done()
				c.Collect(ctx, searchEvent(session, "q", 10))
			}(s)
		}
	}
	wg.Wait()
	require.NoError(t, c.ForceFlush(ctx))

	counts := map[string]int{}
	for _, r := range sink.rows(repositories.TableKPIEvents) {
		counts[r["session_id"].(string)]++
	}
	assert.Equal(t, map[string]int{"session-a": 3, "session-b": 4, "session-c": 4}, counts)
}

func TestCollector_ConcurrentCollectAndFlushLosesNothing(t *testing.T) {
	sink := newRecordingSink()
	c := newTestCollector(sink, 7)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.Collect(ctx, searchEvent("s", "q", 1))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, c.ForceFlush(ctx))

	ids := map[string]struct{}{}
	for _, r := range sink.rows(repositories.TableKPIEvents) {
		id := r["id"].(string)
		_, dup := ids[id]
		require.False(t, dup, "event %s sent twice", id)
		ids[id] = struct{}{}
	}
	assert.Len(t, ids, 400)
}

func TestCollector_TypedConstructors(t *testing.T) {
	sink := newRecordingSink()
	c := newTestCollector(sink, 1000)
	ctx := context.Background()

	c.CollectSearch(ctx, "shoes", 0, 80, "s1", "basic", "")
	c.CollectGeneration(ctx, "SKU-1", "description", 0.9, 2300, "gpt", "s1", "u1", TokenUsage{Prompt: 10, Completion: 20})
	c.CollectReview(ctx, "c1", entities.ReviewActionEdit, "s1", "u1", 4000, 4)
	c.CollectDataQuality(ctx, 100, 80, 70, 0.8, "")
	c.CollectSystemPerformance(ctx, "cpu_usage", 91, "percent", "", "api")
	c.CollectUserInteraction(ctx, "click", "result-card", "/search", "s1", "u1", 1200)
	require.NoError(t, c.ForceFlush(ctx))

	rows := sink.rows(repositories.TableKPIEvents)
	require.Len(t, rows, 6)

	want := []struct {
		kind    string
		source  string
		session string
	}{
		{"search", "api", "s1"},
		{"generation", "api", "s1"},
		{"review", "dashboard", "s1"},
		{"data_quality", "system", entities.SystemSessionID},
		{"system_performance", "system", entities.SystemSessionID},
		{"user_interaction", "dashboard", "s1"},
	}
	for i, w := range want {
		assert.Equal(t, w.kind, rows[i]["type"])
		assert.Equal(t, w.source, rows[i]["source"])
		assert.Equal(t, w.session, rows[i]["session_id"])
	}

	assert.Equal(t, false, rows[0]["metadata"].(map[string]any)["has_results"])
	assert.Equal(t, true, rows[2]["metadata"].(map[string]any)["changes_made"])
	assert.Equal(t, true, rows[4]["metadata"].(map[string]any)["threshold_breached"])
	assert.Equal(t, 20, rows[1]["metadata"].(map[string]any)["completion_tokens"])
}

func TestCollector_GenerateSessionID(t *testing.T) {
	c := newTestCollector(newRecordingSink(), 10)
	c.now = func() time.Time { return time.UnixMilli(1710498225000) }

	re := regexp.MustCompile(`^session_1710498225000_[0-9a-f]{16}$`)
	a, b := c.GenerateSessionID(), c.GenerateSessionID()
	assert.Regexp(t, re, a)
	assert.Regexp(t, re, b)
	assert.NotEqual(t, a, b)
}

func TestCollector_PublishesAcceptedEvents(t *testing.T) {
	bus := events.NewLocalEventBus(zerolog.Nop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx, providers.EventChannelKPIEvents)
	require.NoError(t, err)

	c := NewCollector(newRecordingSink(), bus, config.CollectorConfig{BatchSize: 10, FlushInterval: time.Hour, ShutdownGrace: time.Second}, zerolog.Nop(), nil)
	e := searchEvent("s1", "q", 10)
	e.UserID = "carol"
	c.Collect(ctx, e)

	select {
	case got := <-sub:
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, HashUserID("carol"), got.UserID)
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}
}

func TestCollector_ServeFlushesOnShutdown(t *testing.T) {
	sink := newRecordingSink()
	c := newTestCollector(sink, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	c.Collect(ctx, searchEvent("s1", "q", 10))

	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Len(t, sink.rows(repositories.TableKPIEvents), 1)
	assert.Equal(t, 0, c.QueueStatus().QueueLength)
}

func TestCollector_ServeFlushesOnTick(t *testing.T) {
	sink := newRecordingSink()
	c := NewCollector(sink, nil, config.CollectorConfig{BatchSize: 1000, FlushInterval: 20 * time.Millisecond, ShutdownGrace: time.Second}, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Serve(ctx) }()

	c.Collect(ctx, searchEvent("s1", "q", 10))
	require.Eventually(t, func() bool {
		return len(sink.rows(repositories.TableKPIEvents)) == 1
	}, time.Second, 10*time.Millisecond)
}
