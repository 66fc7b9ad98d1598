// Package config centralizes the building parameters from which every
// subsystem binary is built: floor/car counts, the kinematic model, door
// timing, repair probability, and queue capacity. All are compile-time
// defaults that remain rebindable from the command line or from scenario
// front matter, per the simulation's data model.
package config

import (
	"flag"
	"fmt"
	"time"
)

// Default building parameters. Every subsystem binary can override them
// with flags or scenario front matter.
const (
	DefaultFloors            = 10
	DefaultElevators         = 2
	DefaultMaxSpeed          = 1.5  // floors/sec
	DefaultAcceleration      = 0.4  // floors/sec^2
	DefaultDoorSeconds       = 2.0  // sec the door is held open at each stop; closing adds no further time
	DefaultRepairProbability = 0.8
	DefaultQueueCapacity     = 256

	// NetworkSlack is the fixed allowance added to every ETA to account
	// for dispatch and acknowledgement round trips over the network.
	NetworkSlack = 3 * time.Second

	// StartupGrace is how long the floor subsystem waits before replaying
	// its scenario, giving the scheduler and elevator subsystems time to
	// bind their sockets first.
	StartupGrace = 1 * time.Second
)

// Fixed well-known loopback ports.
const (
	SchedulerPort     = 23
	FloorPort         = 667
	VisualizationPort = 22
	ElevatorPortBase  = 69
)

// ElevatorPort returns the UDP port owned by car k's subsystem.
func ElevatorPort(car int) int {
	return ElevatorPortBase + car
}

// Building holds the rebindable simulation parameters.
type Building struct {
	Floors            int
	Elevators         int
	MaxSpeed          float64
	Acceleration      float64
	DoorSeconds       float64
	RepairProbability float64
	QueueCapacity     int

	SchedulerPort     int
	FloorPort         int
	VisualizationPort int
	ElevatorPortBase  int

	ScenarioPath string
}

// Default returns the building configuration implied by the constants above.
func Default() Building {
	return Building{
		Floors:            DefaultFloors,
		Elevators:         DefaultElevators,
		MaxSpeed:          DefaultMaxSpeed,
		Acceleration:      DefaultAcceleration,
		DoorSeconds:       DefaultDoorSeconds,
		RepairProbability: DefaultRepairProbability,
		QueueCapacity:     DefaultQueueCapacity,
		SchedulerPort:     SchedulerPort,
		FloorPort:         FloorPort,
		VisualizationPort: VisualizationPort,
		ElevatorPortBase:  ElevatorPortBase,
		ScenarioPath:      "scenario.txt",
	}
}

// DoorDuration returns the door open/close hold as a time.Duration.
func (b Building) DoorDuration() time.Duration {
	return time.Duration(b.DoorSeconds * float64(time.Second))
}

// ElevatorAddr returns "127.0.0.1:port" for car k's subsystem.
func (b Building) ElevatorAddr(car int) string {
	return fmt.Sprintf("127.0.0.1:%d", b.ElevatorPortBase+car)
}

// SchedulerAddr returns the scheduler's loopback address.
func (b Building) SchedulerAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", b.SchedulerPort)
}

// FloorAddr returns the floor subsystem's loopback address.
func (b Building) FloorAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", b.FloorPort)
}

// VisualizationAddr returns the (out-of-scope) visualization listener address.
func (b Building) VisualizationAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", b.VisualizationPort)
}

// BindFlags registers every Building field on fs. Call Parse on fs after
// BindFlags.
func (b *Building) BindFlags(fs *flag.FlagSet) {
	fs.IntVar(&b.Floors, "floors", b.Floors, "number of floors in the building")
	fs.IntVar(&b.Elevators, "elevators", b.Elevators, "number of elevator cars")
	fs.Float64Var(&b.MaxSpeed, "max-speed", b.MaxSpeed, "max car speed, floors/sec")
	fs.Float64Var(&b.Acceleration, "acceleration", b.Acceleration, "car acceleration, floors/sec^2")
	fs.Float64Var(&b.DoorSeconds, "door-seconds", b.DoorSeconds, "time the door is held open at each stop, seconds")
	fs.Float64Var(&b.RepairProbability, "repair-probability", b.RepairProbability, "probability a DOOR_ISSUE is repaired")
	fs.IntVar(&b.QueueCapacity, "queue-capacity", b.QueueCapacity, "max queued ingress messages per subsystem")
	fs.IntVar(&b.SchedulerPort, "scheduler-port", b.SchedulerPort, "scheduler UDP port")
	fs.IntVar(&b.FloorPort, "floor-port", b.FloorPort, "floor subsystem UDP port")
	fs.IntVar(&b.VisualizationPort, "viz-port", b.VisualizationPort, "visualization UDP port")
	fs.IntVar(&b.ElevatorPortBase, "elevator-port-base", b.ElevatorPortBase, "base UDP port for elevator subsystems (car k binds base+k)")
	fs.StringVar(&b.ScenarioPath, "scenario", b.ScenarioPath, "path to the scenario file")
}

// Validate rejects nonsensical building configurations before any socket is
// bound, so malformed configuration fails the way a malformed scenario does:
// fatally, at startup, before any side effects.
func (b Building) Validate() error {
	if b.Floors <= 0 {
		return fmt.Errorf("floors must be positive, got %d", b.Floors)
	}
	if b.Elevators <= 0 {
		return fmt.Errorf("elevators must be positive, got %d", b.Elevators)
	}
	if b.MaxSpeed <= 0 {
		return fmt.Errorf("max-speed must be positive, got %f", b.MaxSpeed)
	}
	if b.Acceleration <= 0 {
		return fmt.Errorf("acceleration must be positive, got %f", b.Acceleration)
	}
	if b.RepairProbability < 0 || b.RepairProbability > 1 {
		return fmt.Errorf("repair-probability must be in [0,1], got %f", b.RepairProbability)
	}
	if b.QueueCapacity <= 0 {
		return fmt.Errorf("queue-capacity must be positive, got %d", b.QueueCapacity)
	}
	return nil
}
