package ingress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elevatorsim/core/internal/logging"
	"github.com/elevatorsim/core/internal/proto"
)

func TestQueuePriorityOrdering(t *testing.T) {
	q := NewQueue(8, logging.New("test"))
	q.Submit(Frame{Tag: proto.TagAcknowledge, Payload: []byte{byte(proto.TagAcknowledge)}})
	q.Submit(Frame{Tag: proto.TagStuck, Payload: []byte{byte(proto.TagStuck)}})
	q.Submit(Frame{Tag: proto.TagDoorIssue, Payload: []byte{byte(proto.TagDoorIssue)}})

	f, ok := q.PollNonBlocking()
	require.True(t, ok)
	require.Equal(t, proto.TagStuck, f.Tag)

	f, ok = q.PollNonBlocking()
	require.True(t, ok)
	require.Equal(t, proto.TagDoorIssue, f.Tag)

	f, ok = q.PollNonBlocking()
	require.True(t, ok)
	require.Equal(t, proto.TagAcknowledge, f.Tag)
}

func TestQueueFIFOWithinTag(t *testing.T) {
	q := NewQueue(8, logging.New("test"))
	q.Submit(Frame{Tag: proto.TagStuck, Payload: []byte{0}})
	q.Submit(Frame{Tag: proto.TagStuck, Payload: []byte{1}})
	q.Submit(Frame{Tag: proto.TagStuck, Payload: []byte{2}})

	for i := 0; i < 3; i++ {
		f, ok := q.PollNonBlocking()
		require.True(t, ok)
		require.Equal(t, byte(i), f.Payload[0])
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(2, logging.New("test"))
	q.Submit(Frame{Tag: proto.TagStuck})
	q.Submit(Frame{Tag: proto.TagStuck})
	q.Submit(Frame{Tag: proto.TagStuck})
	require.Equal(t, 2, q.Len())
}

func TestQueuePollBlocksThenReturns(t *testing.T) {
	q := NewQueue(8, logging.New("test"))
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Submit(Frame{Tag: proto.TagAcknowledge})
	}()
	f, ok := q.Poll(context.Background(), time.Second)
	require.True(t, ok)
	require.Equal(t, proto.TagAcknowledge, f.Tag)
}

func TestQueuePollTimesOut(t *testing.T) {
	q := NewQueue(8, logging.New("test"))
	_, ok := q.Poll(context.Background(), 10*time.Millisecond)
	require.False(t, ok)
}

func TestPopIfTag(t *testing.T) {
	q := NewQueue(8, logging.New("test"))
	q.Submit(Frame{Tag: proto.TagRequestElevator})

	_, ok := q.PopIfTag(proto.TagStuck)
	require.False(t, ok)
	require.Equal(t, 1, q.Len())

	f, ok := q.PopIfTag(proto.TagRequestElevator)
	require.True(t, ok)
	require.Equal(t, proto.TagRequestElevator, f.Tag)
}

func TestIsEmpty(t *testing.T) {
	q := NewQueue(8, logging.New("test"))
	require.True(t, q.IsEmpty())
	q.Submit(Frame{Tag: proto.TagAcknowledge})
	require.False(t, q.IsEmpty())
}
