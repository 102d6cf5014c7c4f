package live

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// ---------------------------------------------------------------------------
// In-process dispatch
// ---------------------------------------------------------------------------

func TestTopics(t *testing.T) {
	assert.Equal(t, "board:b1", BoardTopic("b1"))
	assert.Equal(t, "changelog:org1", ChangelogTopic("org1"))
}

func TestLocalHub_ReadyAtCreation(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil, "", nil)
	assert.Equal(t, "lanehq:events", hub.Channel())
	select {
	case <-hub.Ready():
	default:
		t.Fatal("in-process hub should be ready immediately")
	}
}

func TestLocalHub_PublishDelivers(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil, "test", nil)
	sub := hub.Subscribe(BoardTopic("b1"))
	defer sub.Close()

	require.NoError(t, hub.Publish(context.Background(), Event{Topic: BoardTopic("b1"), Revision: 7}))

	ev := receive(t, sub)
	assert.Equal(t, BoardTopic("b1"), ev.Topic)
	assert.Equal(t, int64(7), ev.Revision)
}

func TestLocalHub_TopicIsolation(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil, "test", nil)
	board := hub.Subscribe(BoardTopic("b1"))
	defer board.Close()
	changelog := hub.Subscribe(ChangelogTopic("org1"))
	defer changelog.Close()

	require.NoError(t, hub.Publish(context.Background(), Event{Topic: ChangelogTopic("org1"), Revision: 1}))

	assert.Equal(t, int64(1), receive(t, changelog).Revision)
	assertNoEvent(t, board)
}

func TestLocalHub_CoalescesToNewest(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil, "test", nil)
	sub := hub.Subscribe(BoardTopic("b1"))
	defer sub.Close()

	ctx := context.Background()
	for rev := int64(1); rev <= 5; rev++ {
		require.NoError(t, hub.Publish(ctx, Event{Topic: BoardTopic("b1"), Revision: rev}))
	}

	assert.Equal(t, int64(5), receive(t, sub).Revision, "only the newest pending event survives")
	assertNoEvent(t, sub)
}

func TestLocalHub_FanOutToAllSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil, "test", nil)
	a := hub.Subscribe(BoardTopic("b1"))
	defer a.Close()
	b := hub.Subscribe(BoardTopic("b1"))
	defer b.Close()

	require.Equal(t, 2, hub.SubscriberCount(BoardTopic("b1")))
	require.NoError(t, hub.Publish(context.Background(), Event{Topic: BoardTopic("b1"), Revision: 3}))

	assert.Equal(t, int64(3), receive(t, a).Revision)
	assert.Equal(t, int64(3), receive(t, b).Revision)
}

func TestSubscription_CloseStopsDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil, "test", nil)
	sub := hub.Subscribe(BoardTopic("b1"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "second Close must be a no-op")
	assert.Equal(t, 0, hub.SubscriberCount(BoardTopic("b1")))

	// Publishing after close must not panic on the closed channel.
	require.NoError(t, hub.Publish(context.Background(), Event{Topic: BoardTopic("b1"), Revision: 1}))

	_, ok := <-sub.Events()
	assert.False(t, ok, "events channel should be closed")
}

func TestLocalHub_RunReturnsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil, "test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// ---------------------------------------------------------------------------
// Redis fan-out
// ---------------------------------------------------------------------------

func startRedisHub(t *testing.T, mr *miniredis.Miniredis) *Hub {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := NewHub(rdb, "test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-hub.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for hub subscription")
	}
	return hub
}

func TestRedisHub_FanOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	publisher := startRedisHub(t, mr)
	receiver := startRedisHub(t, mr)

	local := publisher.Subscribe(BoardTopic("b1"))
	defer local.Close()
	remote := receiver.Subscribe(BoardTopic("b1"))
	defer remote.Close()

	require.NoError(t, publisher.Publish(context.Background(), Event{Topic: BoardTopic("b1"), Revision: 42}))

	assert.Equal(t, int64(42), receive(t, local).Revision)
	assert.Equal(t, int64(42), receive(t, remote).Revision)
}

func TestRedisHub_SkipsMalformedPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	hub := startRedisHub(t, mr)

	sub := hub.Subscribe(ChangelogTopic("org1"))
	defer sub.Close()

	mr.Publish(hub.Channel(), "not json")
	require.NoError(t, hub.Publish(context.Background(), Event{Topic: ChangelogTopic("org1"), Revision: 2}))

	assert.Equal(t, int64(2), receive(t, sub).Revision)
}

func TestRedisHub_PublishError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	hub := NewHub(rdb, "test", nil)

	mr.Close()
	err := hub.Publish(context.Background(), Event{Topic: BoardTopic("b1"), Revision: 1})
	assert.Error(t, err)
}
