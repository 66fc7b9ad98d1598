// Package elevator implements a single car's subsystem: a state machine
// that drains dispatch and fault traffic, sequences stops along the current
// direction of travel, simulates motion and door timing, and reports every
// arrival back to the scheduler.
package elevator

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elevatorsim/core/internal/config"
	"github.com/elevatorsim/core/internal/domain"
	"github.com/elevatorsim/core/internal/ingress"
	"github.com/elevatorsim/core/internal/kinematics"
	"github.com/elevatorsim/core/internal/proto"
)

const pollTimeout = 200 * time.Millisecond

// Elevator is one car's subsystem state.
type Elevator struct {
	car    int
	cfg    config.Building
	recv   *ingress.Receiver
	logger zerolog.Logger

	schedulerAddr *net.UDPAddr
	floorAddr     *net.UDPAddr
	vizAddr       *net.UDPAddr

	floor     int
	direction proto.Direction
	health    domain.Health
	door      domain.DoorState
	motion    domain.Motion
	stops     []int // pending destinations, kept sorted per the sweep policy

	travelSum   time.Duration
	travelCount int
}

// New builds the subsystem for car, starting at the ground floor with its
// doors closed and in service.
func New(car int, cfg config.Building, recv *ingress.Receiver, logger zerolog.Logger) (*Elevator, error) {
	schedulerAddr, err := ingress.ResolveUDP(cfg.SchedulerAddr())
	if err != nil {
		return nil, err
	}
	floorAddr, err := ingress.ResolveUDP(cfg.FloorAddr())
	if err != nil {
		return nil, err
	}
	vizAddr, err := ingress.ResolveUDP(cfg.VisualizationAddr())
	if err != nil {
		return nil, err
	}
	return &Elevator{
		car:           car,
		cfg:           cfg,
		recv:          recv,
		logger:        logger,
		schedulerAddr: schedulerAddr,
		floorAddr:     floorAddr,
		vizAddr:       vizAddr,
		direction:     proto.Up,
		health:        domain.InService,
		door:          domain.DoorClosed,
	}, nil
}

// Run alternates between draining ingress traffic and servicing the next
// pending stop until ctx is cancelled. An out-of-service car keeps draining
// messages but never moves.
func (e *Elevator) Run(ctx context.Context) {
	e.logger.Info().Msg("elevator subsystem starting")
	for ctx.Err() == nil {
		e.receiveOne(ctx)
		e.absorbRequests()
		if e.health == domain.InService && len(e.stops) > 0 {
			e.serviceNextStop(ctx)
		}
	}
	e.logger.Info().Msg("elevator subsystem stopped")
}

// receiveOne handles a single ingress frame.
func (e *Elevator) receiveOne(ctx context.Context) {
	frame, ok := e.recv.Queue.Poll(ctx, pollTimeout)
	if !ok {
		return
	}
	switch frame.Tag {
	case proto.TagRequestElevator:
		car, floor, err := proto.DecodeCarFloor(frame.Payload, e.cfg.Elevators, e.cfg.Floors)
		if err != nil {
			e.logger.Debug().Err(err).Msg("dropping malformed REQUEST_ELEVATOR")
			return
		}
		if car != e.car {
			return
		}
		e.addStop(floor)

	case proto.TagGetElevatorRequest:
		// The scheduler is asking this car to re-surface its orphaned
		// stops after a stuck/repair cycle; nothing to decode, the car's
		// own stop list is already authoritative. Each orphaned stop is
		// re-synthesized as a fresh external Request, not replayed as a
		// REQUEST_ELEVATOR dispatch frame, since this car no longer owns
		// the decision of who services it.
		now := time.Now()
		for _, f := range e.stops {
			req := proto.Request{
				ID:             uuid.New(),
				Floor:          f,
				ElevatorNumber: e.car,
				Direction:      proto.Up,
				RequestTime:    now,
				Type:           proto.External,
			}
			e.send(proto.EncodeRequest(req), e.schedulerAddr)
		}
		e.stops = nil

	case proto.TagDoorIssue:
		car, err := proto.DecodeCar(frame.Payload, e.cfg.Elevators)
		if err != nil || car != e.car {
			return
		}
		e.health = domain.OutOfService
		e.logger.Warn().Msg("door issue acknowledged, going out of service")
		e.send(frame.Payload, e.vizAddr)
		e.send(proto.EncodeCarFrame(proto.TagFixElevatorError, e.car), e.schedulerAddr)

	case proto.TagStuck:
		car, err := proto.DecodeCar(frame.Payload, e.cfg.Elevators)
		if err != nil || car != e.car {
			return
		}
		e.health = domain.OutOfService
		e.logger.Warn().Msg("stuck acknowledged, going out of service")
		e.send(frame.Payload, e.vizAddr)

	case proto.TagIssueFixed:
		car, err := proto.DecodeCar(frame.Payload, e.cfg.Elevators)
		if err != nil || car != e.car {
			return
		}
		e.health = domain.InService
		e.logger.Info().Msg("repair acknowledged, back in service")
		e.send(frame.Payload, e.vizAddr)

	case proto.TagAcknowledge:
		// no action

	default:
		e.logger.Debug().Str("tag", frame.Tag.String()).Msg("dropping unrecognized frame")
	}
}

// absorbRequests pulls every REQUEST_ELEVATOR currently queued into the
// stop list before the car commits to its next movement. REQUEST_ELEVATOR
// sorts below all fault and recovery tags, so anything still ahead of it in
// the queue is traffic receiveOne must see first — PopIfTag leaves that
// untouched.
func (e *Elevator) absorbRequests() {
	for {
		frame, ok := e.recv.Queue.PopIfTag(proto.TagRequestElevator)
		if !ok {
			return
		}
		car, floor, err := proto.DecodeCarFloor(frame.Payload, e.cfg.Elevators, e.cfg.Floors)
		if err != nil {
			e.logger.Debug().Err(err).Msg("dropping malformed REQUEST_ELEVATOR")
			continue
		}
		if car != e.car {
			continue
		}
		e.addStop(floor)
	}
}

// addStop inserts floor into the sweep-ordered stop list, deduplicating
// against an identical pending stop.
func (e *Elevator) addStop(floor int) {
	for _, f := range e.stops {
		if f == floor {
			return
		}
	}
	e.stops = append(e.stops, floor)
	e.resweep()
}

// resweep reorders pending stops: while moving UP, visit stops ascending
// from the current floor first, then any stops below descending; while
// moving DOWN, the mirror image.
func (e *Elevator) resweep() {
	ahead := e.stops[:0:0]
	behind := []int{}
	for _, f := range e.stops {
		if (e.direction == proto.Up && f >= e.floor) || (e.direction == proto.Down && f <= e.floor) {
			ahead = append(ahead, f)
		} else {
			behind = append(behind, f)
		}
	}
	if e.direction == proto.Up {
		sort.Ints(ahead)
		sort.Sort(sort.Reverse(sort.IntSlice(behind)))
	} else {
		sort.Sort(sort.Reverse(sort.IntSlice(ahead)))
		sort.Ints(behind)
	}
	e.stops = append(ahead, behind...)
}

// serviceNextStop drives the car to the head of the stop list: it sleeps
// for the kinematic travel time, arrives and pops the stop, holds the door
// open for one door duration and then closes it, and finally reports the
// arrival and the rolling average travel time.
func (e *Elevator) serviceNextStop(ctx context.Context) {
	dest := e.stops[0]
	delta := dest - e.floor
	if delta == 0 {
		e.stops = e.stops[1:]
		return
	}
	if delta > 0 {
		e.direction = proto.Up
	} else {
		e.direction = proto.Down
	}

	start := time.Now()
	travel := kinematics.TravelTime(abs(delta), e.cfg.MaxSpeed, e.cfg.Acceleration)
	e.logger.Info().Int("from", e.floor).Int("to", dest).Dur("eta", travel).Msg("moving")

	e.motion = domain.Moving
	select {
	case <-time.After(travel):
	case <-ctx.Done():
		e.motion = domain.Idle
		return
	}

	e.floor = dest
	e.stops = e.stops[1:]
	e.resweep()

	e.motion = domain.ServicingStop
	e.door = domain.DoorOpen
	select {
	case <-time.After(e.cfg.DoorDuration()):
	case <-ctx.Done():
		e.motion = domain.Idle
		return
	}
	e.door = domain.DoorClosed
	e.motion = domain.Idle

	elapsed := time.Since(start)
	e.travelSum += elapsed
	e.travelCount++
	avg := int(e.travelSum.Seconds()) / e.travelCount

	// ELEVATOR_ARRIVAL goes only to the scheduler: it forwards the
	// arrival on to the floor subsystem and visualization itself.
	e.send(proto.EncodeCarFloorFrame(proto.TagElevatorArrival, e.car, e.floor), e.schedulerAddr)
	e.send(proto.EncodeAverageTravelTime(e.car, avg), e.vizAddr)

	e.logger.Info().Int("floor", e.floor).Int("avg_travel_seconds", avg).Msg("arrived")
}

func (e *Elevator) send(payload []byte, addr *net.UDPAddr) {
	if err := e.recv.Send(payload, addr); err != nil {
		e.logger.Error().Err(err).Str("addr", addr.String()).Msg("send failed")
	}
}

// Snapshot is an in-process, test- and observability-facing view of the
// car's current state. It is never sent over the wire.
type Snapshot struct {
	Car       int
	Floor     int
	Direction proto.Direction
	Health    domain.Health
	Door      domain.DoorState
	Motion    domain.Motion
	Stops     []int
}

// Snapshot returns the car's current state.
func (e *Elevator) Snapshot() Snapshot {
	stops := make([]int, len(e.stops))
	copy(stops, e.stops)
	return Snapshot{
		Car:       e.car,
		Floor:     e.floor,
		Direction: e.direction,
		Health:    e.health,
		Door:      e.door,
		Motion:    e.motion,
		Stops:     stops,
	}
}

// AverageTravelTime returns the running mean of completed trip durations,
// in whole seconds. It returns 0 before the car's first completed trip.
func (e *Elevator) AverageTravelTime() int {
	if e.travelCount == 0 {
		return 0
	}
	return int(e.travelSum.Seconds()) / e.travelCount
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
