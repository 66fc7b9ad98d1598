// Package scheduler implements the global dispatcher: it mirrors every
// car's position and health, runs the nearest-car dispatch policy,
// estimates arrivals from the kinematic model, and declares cars stuck when
// those estimates are exceeded. The mirror is owned exclusively by this
// package — every peer learns of a change only via messages.
package scheduler

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/elevatorsim/core/internal/config"
	"github.com/elevatorsim/core/internal/domain"
	"github.com/elevatorsim/core/internal/ingress"
	"github.com/elevatorsim/core/internal/kinematics"
	"github.com/elevatorsim/core/internal/proto"
)

// pollTimeout bounds how long the receive state blocks before the state
// machine falls through to the stuck check anyway. Without this, the ETA
// watchdog would only ever run in the instant a new message arrives.
const pollTimeout = 200 * time.Millisecond

// mirror is the scheduler's private picture of every car: parallel arrays
// over car indexes. currentFloor == nextFloor means the car is at rest from
// the scheduler's viewpoint.
type mirror struct {
	currentFloor     []int
	nextFloor        []int
	health           []domain.Health
	estimatedArrival []time.Time // zero value means "not consulted"
}

func newMirror(cars int) mirror {
	return mirror{
		currentFloor:     make([]int, cars),
		nextFloor:        make([]int, cars),
		health:           make([]domain.Health, cars),
		estimatedArrival: make([]time.Time, cars),
	}
}

// Scheduler is the single-threaded dispatcher. All of its fields other than
// receiver are confined to the goroutine running Run — there is
// no synchronization inside Scheduler itself because nothing else ever
// touches it.
type Scheduler struct {
	cfg      config.Building
	receiver *ingress.Receiver
	logger   zerolog.Logger
	rng      *rand.Rand

	mirror  mirror
	pending []proto.Request

	elevatorAddrs []*net.UDPAddr
	floorAddr     *net.UDPAddr
	vizAddr       *net.UDPAddr

	start time.Time
}

// New builds a Scheduler bound to receiver. Peer addresses are resolved
// once at construction; the scheduler never re-resolves them.
func New(cfg config.Building, receiver *ingress.Receiver, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cfg:      cfg,
		receiver: receiver,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		mirror:   newMirror(cfg.Elevators),
		start:    time.Now(),
	}
	for i := 0; i < cfg.Elevators; i++ {
		addr, err := ingress.ResolveUDP(cfg.ElevatorAddr(i))
		if err != nil {
			return nil, err
		}
		s.elevatorAddrs = append(s.elevatorAddrs, addr)
	}
	floorAddr, err := ingress.ResolveUDP(cfg.FloorAddr())
	if err != nil {
		return nil, err
	}
	s.floorAddr = floorAddr
	vizAddr, err := ingress.ResolveUDP(cfg.VisualizationAddr())
	if err != nil {
		return nil, err
	}
	s.vizAddr = vizAddr
	return s, nil
}

// Run executes the receive / dispatch / stuck-check loop until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Int("elevators", s.cfg.Elevators).Msg("scheduler starting")
	for ctx.Err() == nil {
		s.receiveOne(ctx)
		s.drainScheduling()
		s.checkStuck()
	}
	s.logger.Info().Msg("scheduler stopped")
}

// receiveOne polls for one frame and classifies/dispatches its side
// effects.
func (s *Scheduler) receiveOne(ctx context.Context) {
	frame, ok := s.receiver.Queue.Poll(ctx, pollTimeout)
	if !ok {
		return
	}

	if proto.LooksLikeRequest(frame.Payload) {
		req, err := proto.DecodeRequest(frame.Payload)
		if err != nil {
			s.logger.Debug().Err(err).Msg("dropping malformed request frame")
			return
		}
		s.pending = append(s.pending, req)
		return
	}

	switch frame.Tag {
	case proto.TagDoorIssue:
		car, err := proto.DecodeCar(frame.Payload, s.cfg.Elevators)
		if err != nil {
			s.logger.Debug().Err(err).Msg("dropping malformed DOOR_ISSUE")
			return
		}
		s.markOutOfService(car)
		s.logger.Info().Int("car", car).Msg("car marked out of service (door issue)")
		s.send(proto.EncodeCarFrame(proto.TagDoorIssue, car), s.elevatorAddrs[car])

	case proto.TagStuck:
		car, err := proto.DecodeCar(frame.Payload, s.cfg.Elevators)
		if err != nil {
			s.logger.Debug().Err(err).Msg("dropping malformed STUCK")
			return
		}
		s.declareStuck(car)

	case proto.TagElevatorArrival:
		car, floor, err := proto.DecodeCarFloor(frame.Payload, s.cfg.Elevators, s.cfg.Floors)
		if err != nil {
			s.logger.Debug().Err(err).Msg("dropping malformed ELEVATOR_ARRIVAL")
			return
		}
		s.mirror.currentFloor[car] = floor
		// Reset the ETA on every arrival so a stale estimate can never
		// trigger a spurious stuck declaration before the next dispatch
		// overwrites it.
		s.mirror.estimatedArrival[car] = time.Time{}
		s.logger.Info().Int("car", car).Int("floor", floor).Msg("arrival")
		s.send(frame.Payload, s.floorAddr)
		s.send(frame.Payload, s.vizAddr)
		s.maybeEmitTotalSimulationTime()

	case proto.TagFixElevatorError:
		car, err := proto.DecodeCar(frame.Payload, s.cfg.Elevators)
		if err != nil {
			s.logger.Debug().Err(err).Msg("dropping malformed FIX_ELEVATOR_ERROR")
			return
		}
		s.fixElevatorError(car)

	case proto.TagAcknowledge:
		// Informational only; nothing to do.

	default:
		s.logger.Debug().Str("tag", frame.Tag.String()).Msg("dropping unrecognized frame")
	}
}

// drainScheduling dispatches every pending request, FIFO.
func (s *Scheduler) drainScheduling() {
	for len(s.pending) > 0 {
		req := s.pending[0]
		s.pending = s.pending[1:]
		s.schedule(req)
	}
}

// schedule picks a car for req and dispatches it. Internal requests name
// their car; external requests go to the in-service car whose next floor is
// closest to the requested floor, lowest index winning ties.
func (s *Scheduler) schedule(req proto.Request) {
	var car int
	if req.Type == proto.Internal {
		car = req.ElevatorNumber
		if car < 0 || car >= s.cfg.Elevators {
			s.logger.Warn().Int("car", car).Msg("policy error: internal request names unknown car, dropping")
			return
		}
		if s.mirror.health[car] == domain.OutOfService {
			s.logger.Warn().Int("car", car).Msg("policy error: internal request to out-of-service car, dropping")
			return
		}
	} else {
		var found bool
		best := -1
		for i := 0; i < s.cfg.Elevators; i++ {
			if s.mirror.health[i] != domain.InService {
				continue
			}
			dist := abs(s.mirror.nextFloor[i] - req.Floor)
			if !found || dist < best {
				found = true
				best = dist
				car = i
			}
		}
		if !found {
			s.logger.Warn().Int("floor", req.Floor).Msg("policy error: no in-service car available, dropping request")
			return
		}
	}

	payload := proto.EncodeCarFloorFrame(proto.TagRequestElevator, car, req.Floor)
	s.send(payload, s.elevatorAddrs[car])
	s.send(payload, s.floorAddr)

	now := time.Now()
	delta := abs(req.Floor - s.mirror.currentFloor[car])
	eta := now.Add(kinematics.TravelTime(delta, s.cfg.MaxSpeed, s.cfg.Acceleration)).Add(config.NetworkSlack)
	if s.mirror.currentFloor[car] != s.mirror.nextFloor[car] {
		// Car is already mid-trip: queue this ETA behind the remaining
		// time on its current trip, counted exactly once.
		if remaining := s.mirror.estimatedArrival[car].Sub(now); remaining > 0 {
			eta = eta.Add(remaining)
		}
	}
	s.mirror.nextFloor[car] = req.Floor
	s.mirror.estimatedArrival[car] = eta

	s.logger.Info().
		Str("request_id", req.ID.String()).
		Int("car", car).
		Int("floor", req.Floor).
		Str("type", req.Type.String()).
		Time("eta", eta).
		Msg("dispatched")
}

// checkStuck is the ETA watchdog: any in-service car still in motion past
// its estimated arrival is declared stuck.
func (s *Scheduler) checkStuck() {
	now := time.Now()
	for i := 0; i < s.cfg.Elevators; i++ {
		if s.mirror.currentFloor[i] == s.mirror.nextFloor[i] {
			continue // estimatedArrival is never consulted at rest
		}
		if s.mirror.health[i] != domain.InService {
			continue
		}
		if s.mirror.estimatedArrival[i].IsZero() || now.Before(s.mirror.estimatedArrival[i]) {
			continue
		}
		s.logger.Warn().Int("car", i).Msg("ETA exceeded, declaring car stuck")
		s.declareStuck(i)
	}
}

// markOutOfService takes car out of the dispatchable pool. A broken car is
// at rest from the mirror's viewpoint: the next-floor target collapses onto
// the current floor and the ETA is cleared, so neither the watchdog nor the
// all-at-rest check ever consults a trip the car will not finish.
func (s *Scheduler) markOutOfService(car int) {
	s.mirror.health[car] = domain.OutOfService
	s.mirror.nextFloor[car] = s.mirror.currentFloor[car]
	s.mirror.estimatedArrival[car] = time.Time{}
}

// declareStuck marks car out of service, forwards STUCK to its subsystem
// and the visualization, then re-surfaces its orphaned stops. Used both by
// the STUCK message branch and by the ETA watchdog, which must behave
// identically.
func (s *Scheduler) declareStuck(car int) {
	s.markOutOfService(car)
	frame := proto.EncodeCarFrame(proto.TagStuck, car)
	s.send(frame, s.elevatorAddrs[car])
	s.send(frame, s.vizAddr)
	s.send(proto.EncodeTagOnly(proto.TagGetElevatorRequest), s.elevatorAddrs[car])
}

// fixElevatorError rolls the repair dice for car after its subsystem
// requested a fix: on success the car returns to service, otherwise it is
// told to re-surface its orphaned stops for redistribution.
func (s *Scheduler) fixElevatorError(car int) {
	r := s.rng.Float64()
	if r <= s.cfg.RepairProbability {
		s.mirror.health[car] = domain.InService
		s.logger.Info().Int("car", car).Float64("roll", r).Msg("repair succeeded")
		s.send(proto.EncodeCarFrame(proto.TagIssueFixed, car), s.elevatorAddrs[car])
	} else {
		s.logger.Info().Int("car", car).Float64("roll", r).Msg("repair failed, re-surfacing orphaned stops")
		s.send(proto.EncodeTagOnly(proto.TagGetElevatorRequest), s.elevatorAddrs[car])
	}
}

// maybeEmitTotalSimulationTime reports the elapsed seconds since scheduler
// start to the visualization whenever an arrival leaves every car at rest.
// Later quiescent arrivals re-emit with the updated elapsed time; the
// visualization keeps the latest value.
func (s *Scheduler) maybeEmitTotalSimulationTime() {
	for i := 0; i < s.cfg.Elevators; i++ {
		if s.mirror.currentFloor[i] != s.mirror.nextFloor[i] {
			return
		}
	}
	elapsed := int(time.Since(s.start).Seconds())
	s.send(proto.EncodeTotalSimulationTime(elapsed), s.vizAddr)
}

func (s *Scheduler) send(payload []byte, addr *net.UDPAddr) {
	if err := s.receiver.Send(payload, addr); err != nil {
		s.logger.Error().Err(err).Str("addr", addr.String()).Msg("send failed")
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Snapshot is an in-process, test- and observability-facing view of the
// scheduler's mirror. It is never sent over the wire.
type Snapshot struct {
	CurrentFloor     []int
	NextFloor        []int
	Health           []domain.Health
	EstimatedArrival []time.Time
}

// Snapshot returns a copy of the scheduler's current mirror state.
func (s *Scheduler) Snapshot() Snapshot {
	snap := Snapshot{
		CurrentFloor:     make([]int, len(s.mirror.currentFloor)),
		NextFloor:        make([]int, len(s.mirror.nextFloor)),
		Health:           make([]domain.Health, len(s.mirror.health)),
		EstimatedArrival: make([]time.Time, len(s.mirror.estimatedArrival)),
	}
	copy(snap.CurrentFloor, s.mirror.currentFloor)
	copy(snap.NextFloor, s.mirror.nextFloor)
	copy(snap.Health, s.mirror.health)
	copy(snap.EstimatedArrival, s.mirror.estimatedArrival)
	return snap
}
