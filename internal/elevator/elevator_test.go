package elevator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elevatorsim/core/internal/config"
	"github.com/elevatorsim/core/internal/domain"
	"github.com/elevatorsim/core/internal/ingress"
	"github.com/elevatorsim/core/internal/logging"
	"github.com/elevatorsim/core/internal/proto"
)

func newTestElevator(t *testing.T) *Elevator {
	t.Helper()
	cfg := config.Default()
	cfg.Elevators = 2
	cfg.Floors = 10
	recv, err := ingress.Listen(0, cfg.QueueCapacity, logging.New("test"))
	require.NoError(t, err)
	t.Cleanup(func() { recv.Close() })

	e, err := New(0, cfg, recv, logging.New("test"))
	require.NoError(t, err)
	return e
}

func TestAddStopDeduplicates(t *testing.T) {
	e := newTestElevator(t)
	e.addStop(5)
	e.addStop(5)
	require.Equal(t, []int{5}, e.stops)
}

func TestSweepOrderingUpDirection(t *testing.T) {
	e := newTestElevator(t)
	e.floor = 3
	e.direction = proto.Up
	e.addStop(7)
	e.addStop(1)
	e.addStop(5)
	// ahead (>=3) ascending first, then behind descending
	require.Equal(t, []int{5, 7, 1}, e.stops)
}

func TestSweepOrderingDownDirection(t *testing.T) {
	e := newTestElevator(t)
	e.floor = 6
	e.direction = proto.Down
	e.addStop(2)
	e.addStop(9)
	e.addStop(4)
	// ahead (<=6) descending first, then behind ascending
	require.Equal(t, []int{4, 2, 9}, e.stops)
}

func TestReceiveOneIgnoresFramesForOtherCars(t *testing.T) {
	e := newTestElevator(t)
	e.recv.Queue.Submit(ingress.Frame{
		Tag:     proto.TagRequestElevator,
		Payload: proto.EncodeCarFloorFrame(proto.TagRequestElevator, 1, 4),
	})
	e.receiveOne(context.Background())
	require.Empty(t, e.stops)
}

func TestReceiveOneAddsStopForThisCar(t *testing.T) {
	e := newTestElevator(t)
	e.recv.Queue.Submit(ingress.Frame{
		Tag:     proto.TagRequestElevator,
		Payload: proto.EncodeCarFloorFrame(proto.TagRequestElevator, 0, 4),
	})
	e.receiveOne(context.Background())
	require.Equal(t, []int{4}, e.stops)
}

func TestReceiveOneTracksHealthTransitions(t *testing.T) {
	e := newTestElevator(t)
	e.recv.Queue.Submit(ingress.Frame{Tag: proto.TagDoorIssue, Payload: proto.EncodeCarFrame(proto.TagDoorIssue, 0)})
	e.receiveOne(context.Background())
	require.Equal(t, domain.OutOfService, e.health)

	e.recv.Queue.Submit(ingress.Frame{Tag: proto.TagIssueFixed, Payload: proto.EncodeCarFrame(proto.TagIssueFixed, 0)})
	e.receiveOne(context.Background())
	require.Equal(t, domain.InService, e.health)
}

func TestReceiveOneDoorIssueRequestsRepair(t *testing.T) {
	e := newTestElevator(t)
	sched, err := ingress.Listen(0, 8, logging.New("test"))
	require.NoError(t, err)
	schedCtx, cancelSched := context.WithCancel(context.Background())
	t.Cleanup(func() { cancelSched(); sched.Close() })
	e.schedulerAddr = sched.LocalAddr()

	e.recv.Queue.Submit(ingress.Frame{Tag: proto.TagDoorIssue, Payload: proto.EncodeCarFrame(proto.TagDoorIssue, 0)})
	e.receiveOne(context.Background())
	require.Equal(t, domain.OutOfService, e.health)

	go sched.Run(schedCtx)
	frame, ok := sched.Queue.Poll(context.Background(), time.Second)
	require.True(t, ok)
	require.Equal(t, proto.TagFixElevatorError, frame.Tag)
}

func TestAbsorbRequestsDrainsAllQueuedDispatches(t *testing.T) {
	e := newTestElevator(t)
	for _, floor := range []int{4, 7, 2} {
		e.recv.Queue.Submit(ingress.Frame{
			Tag:     proto.TagRequestElevator,
			Payload: proto.EncodeCarFloorFrame(proto.TagRequestElevator, 0, floor),
		})
	}
	e.absorbRequests()
	require.True(t, e.recv.Queue.IsEmpty())
	require.ElementsMatch(t, []int{4, 7, 2}, e.stops)
}

func TestAbsorbRequestsStopsAtHigherPriorityTraffic(t *testing.T) {
	e := newTestElevator(t)
	e.recv.Queue.Submit(ingress.Frame{
		Tag:     proto.TagRequestElevator,
		Payload: proto.EncodeCarFloorFrame(proto.TagRequestElevator, 0, 4),
	})
	e.recv.Queue.Submit(ingress.Frame{Tag: proto.TagStuck, Payload: proto.EncodeCarFrame(proto.TagStuck, 0)})

	// STUCK sorts ahead of REQUEST_ELEVATOR, so the drain must leave it
	// (and everything behind it) for receiveOne.
	e.absorbRequests()
	require.Empty(t, e.stops)
	require.Equal(t, 2, e.recv.Queue.Len())
}

func TestReceiveOneGetElevatorRequestResynthesizesAndClearsStops(t *testing.T) {
	e := newTestElevator(t)
	e.stops = []int{3, 7}
	e.recv.Queue.Submit(ingress.Frame{Tag: proto.TagGetElevatorRequest, Payload: proto.EncodeTagOnly(proto.TagGetElevatorRequest)})
	e.receiveOne(context.Background())
	require.Empty(t, e.stops)
}
