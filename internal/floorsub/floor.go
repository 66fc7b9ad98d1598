// Package floorsub implements the floor subsystem: it replays a scenario
// file's calls and faults at their scheduled offsets, maintains the
// building's call-button lamp matrix from arrival traffic, and forwards
// every lamp change to the visualization port.
package floorsub

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/elevatorsim/core/internal/config"
	"github.com/elevatorsim/core/internal/ingress"
	"github.com/elevatorsim/core/internal/proto"
	"github.com/elevatorsim/core/internal/scenario"
)

const pollTimeout = 200 * time.Millisecond

// Floor is the floor subsystem. It owns the building-wide lamp matrix: the
// scheduler and elevator subsystems never see it, they only send the
// messages that toggle it. A lamp lights only once a call has actually been
// dispatched to a car (on REQUEST_ELEVATOR), not at the moment the call is
// placed, so an ON lamp always corresponds to an outstanding dispatch
// rather than raw demand.
type Floor struct {
	cfg    config.Building
	sc     scenario.Scenario
	recv   *ingress.Receiver
	logger zerolog.Logger

	schedulerAddr *net.UDPAddr
	vizAddr       *net.UDPAddr

	lampsMu sync.Mutex
	lamps   [][]bool // [floor][car]

	start    time.Time
	nextCall int // index into sc.Calls of the next unsent call
	nextFlt  int // index into sc.Faults of the next unsent fault
}

// New builds the floor subsystem from an already-loaded scenario.
func New(cfg config.Building, sc scenario.Scenario, recv *ingress.Receiver, logger zerolog.Logger) (*Floor, error) {
	schedulerAddr, err := ingress.ResolveUDP(cfg.SchedulerAddr())
	if err != nil {
		return nil, err
	}
	vizAddr, err := ingress.ResolveUDP(cfg.VisualizationAddr())
	if err != nil {
		return nil, err
	}
	lamps := make([][]bool, cfg.Floors)
	for i := range lamps {
		lamps[i] = make([]bool, cfg.Elevators)
	}
	return &Floor{
		cfg:           cfg,
		sc:            sc,
		recv:          recv,
		logger:        logger,
		schedulerAddr: schedulerAddr,
		vizAddr:       vizAddr,
		lamps:         lamps,
	}, nil
}

// Run executes the subsystem's single-threaded tick loop until ctx is
// cancelled. Each tick services one queued ingress message if any is
// waiting; only an empty queue lets a due scenario call or fault go out, so
// arrival and dispatch traffic always drains ahead of new scenario load.
// The loop first waits out a startup grace period so the scheduler and
// elevator subsystems have time to bind their sockets.
func (f *Floor) Run(ctx context.Context) {
	f.logger.Info().Int("calls", len(f.sc.Calls)).Int("faults", len(f.sc.Faults)).Msg("floor subsystem starting")

	select {
	case <-time.After(config.StartupGrace):
	case <-ctx.Done():
		f.logger.Info().Msg("floor subsystem stopped")
		return
	}
	f.start = time.Now()

	for ctx.Err() == nil {
		f.tick(ctx)
	}
	f.logger.Info().Msg("floor subsystem stopped")
}

// tick is one pass of the main loop: drain one queued message, or failing
// that emit one due scenario event, or failing that block briefly for the
// next message.
func (f *Floor) tick(ctx context.Context) {
	if frame, ok := f.recv.Queue.PollNonBlocking(); ok {
		f.handle(frame)
		return
	}
	if f.emitDue() {
		return
	}
	if frame, ok := f.recv.Queue.Poll(ctx, pollTimeout); ok {
		f.handle(frame)
	}
}

// emitDue sends the next scenario call whose offset has elapsed, or,
// lacking one, the next due fault. At most one event goes out per tick so a
// burst of simultaneous records never starves the ingress queue. Reports
// whether anything was sent.
func (f *Floor) emitDue() bool {
	elapsed := time.Since(f.start)

	if f.nextCall < len(f.sc.Calls) {
		req := f.sc.Calls[f.nextCall]
		if req.RequestTime.Sub(time.Time{}) <= elapsed {
			f.nextCall++
			f.send(proto.EncodeRequest(req), f.schedulerAddr)
			f.logger.Info().Str("request_id", req.ID.String()).Int("floor", req.Floor).Str("type", req.Type.String()).Msg("call issued")
			return true
		}
	}

	if f.nextFlt < len(f.sc.Faults) {
		fault := f.sc.Faults[f.nextFlt]
		if fault.ScheduledTime <= elapsed {
			f.nextFlt++
			tag := proto.TagDoorIssue
			if fault.Kind == proto.Stuck {
				tag = proto.TagStuck
			}
			f.send(proto.EncodeCarFrame(tag, fault.ElevatorNumber), f.schedulerAddr)
			f.logger.Info().Int("car", fault.ElevatorNumber).Str("tag", tag.String()).Msg("fault injected")
			return true
		}
	}
	return false
}

// handle dispatches one ingress frame: arrivals clear lamps, dispatches
// light them, and every update is forwarded to the visualization port.
func (f *Floor) handle(frame ingress.Frame) {
	switch frame.Tag {
	case proto.TagElevatorArrival:
		car, floor, err := proto.DecodeCarFloor(frame.Payload, f.cfg.Elevators, f.cfg.Floors)
		if err != nil {
			f.logger.Debug().Err(err).Msg("dropping malformed ELEVATOR_ARRIVAL")
			return
		}
		f.lampsMu.Lock()
		f.lamps[floor][car] = false
		f.lampsMu.Unlock()
		f.send(frame.Payload, f.vizAddr)

	case proto.TagRequestElevator:
		car, floor, err := proto.DecodeCarFloor(frame.Payload, f.cfg.Elevators, f.cfg.Floors)
		if err != nil {
			f.logger.Debug().Err(err).Msg("dropping malformed REQUEST_ELEVATOR")
			return
		}
		f.lampsMu.Lock()
		f.lamps[floor][car] = true
		f.lampsMu.Unlock()
		f.send(frame.Payload, f.vizAddr)

	case proto.TagAverageTravelTime, proto.TagTotalSimulationTime:
		f.send(frame.Payload, f.vizAddr)

	case proto.TagAcknowledge:
		// no action

	default:
		f.logger.Debug().Str("tag", frame.Tag.String()).Msg("dropping unrecognized frame")
	}
}

func (f *Floor) send(payload []byte, addr *net.UDPAddr) {
	if err := f.recv.Send(payload, addr); err != nil {
		f.logger.Error().Err(err).Str("addr", addr.String()).Msg("send failed")
	}
}

// LampRef identifies one lit (floor, car) cell of the lamp matrix.
type LampRef struct {
	Floor int
	Car   int
}

// Snapshot is an in-process, test- and observability-facing view of the
// building's lamp matrix. It is never sent over the wire.
type Snapshot struct {
	Lit []LampRef
}

// Snapshot returns every currently-lit (floor, car) lamp cell.
func (f *Floor) Snapshot() Snapshot {
	f.lampsMu.Lock()
	defer f.lampsMu.Unlock()
	var snap Snapshot
	for floor, row := range f.lamps {
		for car, on := range row {
			if on {
				snap.Lit = append(snap.Lit, LampRef{Floor: floor, Car: car})
			}
		}
	}
	return snap
}
