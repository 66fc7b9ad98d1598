// Package scenario parses the floor subsystem's scenario file: an optional
// YAML front-matter block of building overrides, followed by
// whitespace-separated call and fault records, one per line.
package scenario

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/elevatorsim/core/internal/config"
	"github.com/elevatorsim/core/internal/proto"
)

// Overrides is the optional scenario front-matter block. Any zero field is
// left at the building configuration's existing value.
type Overrides struct {
	Floors            int     `yaml:"floors"`
	Elevators         int     `yaml:"elevators"`
	MaxSpeed          float64 `yaml:"maxSpeed"`
	Acceleration      float64 `yaml:"acceleration"`
	DoorSeconds       float64 `yaml:"doorSeconds"`
	RepairProbability float64 `yaml:"repairProbability"`
	QueueCapacity     int     `yaml:"queueCapacity"`
}

// Fault is a scheduled fault injection event.
type Fault struct {
	Kind           proto.FaultKind
	ElevatorNumber int
	ScheduledTime  time.Duration // offset from simulation start
	FloorLabel     int           // diagnostic only
}

// Scenario is the fully parsed, chronologically sorted scenario file.
type Scenario struct {
	Overrides Overrides
	Calls     []proto.Request
	Faults    []Fault
}

// Load reads and parses path. Parse errors are fatal at startup: the
// caller should treat a non-nil error as unrecoverable before any socket is
// bound.
func Load(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario: open %s: %w", path, err)
	}
	defer f.Close()

	lines, overrides, err := splitFrontMatter(f)
	if err != nil {
		return Scenario{}, err
	}

	var sc Scenario
	sc.Overrides = overrides

	for lineNo, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return Scenario{}, fmt.Errorf("scenario: line %d: expected at least 3 fields, got %d: %q", lineNo+1, len(fields), raw)
		}
		offset, err := parseTimeOfDay(fields[0])
		if err != nil {
			return Scenario{}, fmt.Errorf("scenario: line %d: %w", lineNo+1, err)
		}
		floorLabel, err := strconv.Atoi(fields[1])
		if err != nil {
			return Scenario{}, fmt.Errorf("scenario: line %d: bad floor %q: %w", lineNo+1, fields[1], err)
		}

		switch strings.ToUpper(fields[2]) {
		case "UP", "DOWN":
			if len(fields) != 5 {
				return Scenario{}, fmt.Errorf("scenario: line %d: call record needs 5 fields, got %d: %q", lineNo+1, len(fields), raw)
			}
			dir := proto.Up
			if strings.ToUpper(fields[2]) == "DOWN" {
				dir = proto.Down
			}
			elevNum, err := strconv.Atoi(fields[3])
			if err != nil {
				return Scenario{}, fmt.Errorf("scenario: line %d: bad elevator number %q: %w", lineNo+1, fields[3], err)
			}
			var reqType proto.RequestType
			switch strings.ToUpper(fields[4]) {
			case "INTERNAL":
				reqType = proto.Internal
			case "EXTERNAL":
				reqType = proto.External
			default:
				return Scenario{}, fmt.Errorf("scenario: line %d: bad request type %q", lineNo+1, fields[4])
			}
			sc.Calls = append(sc.Calls, proto.Request{
				ID:             uuid.New(),
				Floor:          floorLabel,
				ElevatorNumber: elevNum,
				Direction:      dir,
				Type:           reqType,
				RequestTime:    time.Time{}.Add(offset),
			})
		case "DOOR_ISSUE", "ELEVATOR_STUCK":
			if len(fields) != 3 {
				return Scenario{}, fmt.Errorf("scenario: line %d: fault record needs 3 fields, got %d: %q", lineNo+1, len(fields), raw)
			}
			kind := proto.DoorIssue
			if strings.ToUpper(fields[2]) == "ELEVATOR_STUCK" {
				kind = proto.Stuck
			}
			// A fault record carries a single numeric column. It doubles
			// as the targeted car index: a fault must name a car to be
			// injectable, and the grammar gives it nowhere else to live.
			sc.Faults = append(sc.Faults, Fault{
				Kind:           kind,
				ElevatorNumber: floorLabel,
				FloorLabel:     floorLabel,
				ScheduledTime:  offset,
			})
		default:
			return Scenario{}, fmt.Errorf("scenario: line %d: unrecognized record kind %q", lineNo+1, fields[2])
		}
	}

	sort.SliceStable(sc.Calls, func(i, j int) bool {
		return sc.Calls[i].RequestTime.Before(sc.Calls[j].RequestTime)
	})
	sort.SliceStable(sc.Faults, func(i, j int) bool {
		return sc.Faults[i].ScheduledTime < sc.Faults[j].ScheduledTime
	})
	return sc, nil
}

// Apply overlays non-zero override fields onto b, returning the effective
// building configuration for this scenario run.
func (o Overrides) Apply(b config.Building) config.Building {
	if o.Floors != 0 {
		b.Floors = o.Floors
	}
	if o.Elevators != 0 {
		b.Elevators = o.Elevators
	}
	if o.MaxSpeed != 0 {
		b.MaxSpeed = o.MaxSpeed
	}
	if o.Acceleration != 0 {
		b.Acceleration = o.Acceleration
	}
	if o.DoorSeconds != 0 {
		b.DoorSeconds = o.DoorSeconds
	}
	if o.RepairProbability != 0 {
		b.RepairProbability = o.RepairProbability
	}
	if o.QueueCapacity != 0 {
		b.QueueCapacity = o.QueueCapacity
	}
	return b
}

// splitFrontMatter separates an optional leading "---\n...\n---\n" YAML
// block from the record lines that follow.
func splitFrontMatter(f *os.File) ([]string, Overrides, error) {
	scanner := bufio.NewScanner(f)
	var all []string
	for scanner.Scan() {
		all = append(all, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, Overrides{}, fmt.Errorf("scenario: read: %w", err)
	}

	if len(all) == 0 || strings.TrimSpace(all[0]) != "---" {
		return all, Overrides{}, nil
	}
	end := -1
	for i := 1; i < len(all); i++ {
		if strings.TrimSpace(all[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, Overrides{}, fmt.Errorf("scenario: unterminated front-matter block")
	}
	var overrides Overrides
	if err := yaml.Unmarshal([]byte(strings.Join(all[1:end], "\n")), &overrides); err != nil {
		return nil, Overrides{}, fmt.Errorf("scenario: invalid front matter: %w", err)
	}
	return all[end+1:], overrides, nil
}

// parseTimeOfDay parses "HH:MM:SS.mmm" into a time.Duration offset from
// simulation start. The grammar spells out a wall-clock time-of-day, but
// anchoring to calendar midnight would make every scenario file's timing
// depend on what minute the operator launched the simulation, so the value
// is treated as an offset with t=0 at simulation start.
func parseTimeOfDay(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad timestamp %q: want HH:MM:SS.mmm", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("bad hour in %q: %w", s, err)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("bad minute in %q: %w", s, err)
	}
	secParts := strings.SplitN(parts[2], ".", 2)
	ss, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0, fmt.Errorf("bad second in %q: %w", s, err)
	}
	var ms int
	if len(secParts) == 2 {
		msStr := secParts[1]
		for len(msStr) < 3 {
			msStr += "0"
		}
		ms, err = strconv.Atoi(msStr[:3])
		if err != nil {
			return 0, fmt.Errorf("bad millisecond in %q: %w", s, err)
		}
	}
	return time.Duration(hh)*time.Hour +
		time.Duration(mm)*time.Minute +
		time.Duration(ss)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}
