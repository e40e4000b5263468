package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-service/models"
)

type fakeStore struct {
	mu        sync.Mutex
	pending   []models.OutboxEvent
	published []int64
	retries   map[int64]int
	nextAt    map[int64]time.Time
	failed    []int64
}

func newFakeStore(events ...models.OutboxEvent) *fakeStore {
	return &fakeStore{pending: events, retries: map[int64]int{}, nextAt: map[int64]time.Time{}}
}

func (s *fakeStore) FetchPending(_ context.Context, _ time.Time, limit int) ([]models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) > limit {
		return append([]models.OutboxEvent(nil), s.pending[:limit]...), nil
	}
	return append([]models.OutboxEvent(nil), s.pending...), nil
}

func (s *fakeStore) remove(id int64) {
	for i, ev := range s.pending {
		if ev.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

func (s *fakeStore) MarkPublished(_ context.Context, id int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, id)
	s.remove(id)
	return nil
}

func (s *fakeStore) MarkRetry(_ context.Context, id int64, attempts int, next time.Time, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[id] = attempts
	s.nextAt[id] = next
	for i := range s.pending {
		if s.pending[i].ID == id {
			s.pending[i].Attempts = attempts
		}
	}
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, _ time.Time, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	s.remove(id)
	return nil
}

func event(id int64) models.OutboxEvent {
	return models.OutboxEvent{Event: models.Event{ID: id, Type: models.EventOrderStatusChanged, OrderID: "o", Status: "shipped"}}
}

func TestFlushPublishesAndMarks(t *testing.T) {
	store := newFakeStore(event(1), event(2))
	var got []int64
	sink := SinkFunc(func(_ context.Context, ev models.Event) error {
		got = append(got, ev.ID)
		return nil
	})
	relay := NewRelay(store, sink, time.Second, 10, 3, Backoff{Base: time.Second, Max: time.Minute})

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, got)
	assert.Equal(t, []int64{1, 2}, store.published)
	assert.Empty(t, store.pending)
}

func TestFlushSchedulesRetryThenFails(t *testing.T) {
	store := newFakeStore(event(7))
	sink := SinkFunc(func(context.Context, models.Event) error { return errors.New("broker down") })
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	relay := NewRelay(store, sink, time.Second, 10, 3, Backoff{Base: 5 * time.Second, Max: time.Minute})
	relay.now = func() time.Time { return now }

	_, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.retries[7])
	assert.Equal(t, now.Add(5*time.Second), store.nextAt[7])

	_, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, store.retries[7])
	assert.Equal(t, now.Add(10*time.Second), store.nextAt[7])

	_, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, store.failed)
	assert.Empty(t, store.published)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 5 * time.Second, Max: 10 * time.Minute}
	assert.Equal(t, 5*time.Second, b.Delay(0))
	assert.Equal(t, 5*time.Second, b.Delay(1))
	assert.Equal(t, 10*time.Second, b.Delay(2))
	assert.Equal(t, 40*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Minute, b.Delay(10))
	assert.Equal(t, 10*time.Minute, b.Delay(200))
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newFakeStore()
	relay := NewRelay(store, SinkFunc(func(context.Context, models.Event) error { return nil }),
		10*time.Millisecond, 10, 3, Backoff{Base: time.Second, Max: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
