package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestNewMessageRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	msg, err := NewMessage(TypeAttendanceMarked, SessionEvent{SessionID: "sess-1", StudentID: "s1", Status: "present", At: at})
	require.NoError(t, err)
	assert.Equal(t, TypeAttendanceMarked, msg.Type)

	ev, err := msg.SessionEvent()
	require.NoError(t, err)
	assert.Equal(t, "sess-1", ev.SessionID)
	assert.True(t, at.Equal(ev.At))

	_, err = Message{Type: TypeSessionClosed, Body: []byte(`{}`)}.SessionEvent()
	assert.Error(t, err)
}

func TestInMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(4)
	msg, err := NewMessage(TypeSessionClosed, SessionEvent{SessionID: "sess-1"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	got := receive(t, ch)
	assert.Equal(t, TypeSessionClosed, got.Type)

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: TypeSessionClosed}), context.Canceled)
}

func TestRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, "", nil)
	q.wait = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := NewMessage(TypeAttendanceMarked, SessionEvent{SessionID: "sess-1", StudentID: "s1"})
	require.NoError(t, err)
	second, err := NewMessage(TypeSessionClosed, SessionEvent{SessionID: "sess-2"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, first))
	require.NoError(t, q.Publish(ctx, second))

	n, err := client.LLen(ctx, DefaultKey).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	got := receive(t, ch)
	assert.Equal(t, TypeAttendanceMarked, got.Type)
	ev, err := got.SessionEvent()
	require.NoError(t, err)
	assert.Equal(t, "sess-1", ev.SessionID)

	got = receive(t, ch)
	assert.Equal(t, TypeSessionClosed, got.Type)
}

func TestRedisQueueDropsMalformed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, "k", nil)
	q.wait = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := mr.Lpush("k", "Type|not json")
	require.NoError(t, err)
	msg, err := NewMessage(TypeSessionClosed, SessionEvent{SessionID: "sess-3"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	got := receive(t, ch)
	ev, err := got.SessionEvent()
	require.NoError(t, err)
	assert.Equal(t, "sess-3", ev.SessionID)
}
