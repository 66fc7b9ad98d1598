// Package proto defines the wire format exchanged between subsystems: the
// single-byte message tags, their compact fixed-width payloads, and the
// serialized form of a call Request. The tag doubles as the priority key the
// ingress queue (internal/ingress) sorts on, so its value carries real
// scheduling weight — fault and recovery traffic preempts routine dispatch
// and arrival traffic. Do not renumber tags.
package proto

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tag is the first byte of every datagram. Lower values are higher
// priority in the ingress queue.
type Tag byte

const (
	TagStuck               Tag = 0
	TagDoorIssue           Tag = 1
	TagGetElevatorRequest  Tag = 2
	TagIssueFixed          Tag = 3
	TagFixElevatorError    Tag = 4
	TagElevatorArrival     Tag = 5
	TagRequestElevator     Tag = 6
	TagAcknowledge         Tag = 7
	TagAverageTravelTime   Tag = 8
	TagTotalSimulationTime Tag = 9
	// TagRequest carries an opaque serialized Request. Giving request
	// payloads their own tag, below ACKNOWLEDGE in priority, keeps the
	// bounded priority queue's key space uniform: every datagram sorts on
	// its first byte.
	TagRequest Tag = 10
)

func (t Tag) String() string {
	switch t {
	case TagStuck:
		return "STUCK"
	case TagDoorIssue:
		return "DOOR_ISSUE"
	case TagGetElevatorRequest:
		return "GET_ELEVATOR_REQUEST"
	case TagIssueFixed:
		return "ISSUE_FIXED"
	case TagFixElevatorError:
		return "FIX_ELEVATOR_ERROR"
	case TagElevatorArrival:
		return "ELEVATOR_ARRIVAL"
	case TagRequestElevator:
		return "REQUEST_ELEVATOR"
	case TagAcknowledge:
		return "ACKNOWLEDGE"
	case TagAverageTravelTime:
		return "AVERAGE_TRAVEL_TIME"
	case TagTotalSimulationTime:
		return "TOTAL_SIMULATION_TIME"
	case TagRequest:
		return "REQUEST"
	default:
		return fmt.Sprintf("TAG(%d)", byte(t))
	}
}

// Direction of travel or of a call.
type Direction byte

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "UP"
	}
	return "DOWN"
}

// RequestType distinguishes internal (in-car) destination requests from
// external (floor call) requests.
type RequestType byte

const (
	Internal RequestType = iota
	External
)

func (rt RequestType) String() string {
	if rt == Internal {
		return "INTERNAL"
	}
	return "EXTERNAL"
}

// FaultKind distinguishes the two injectable fault events.
type FaultKind byte

const (
	DoorIssue FaultKind = iota
	Stuck
)

// Request is an immutable call record. Internal requests name a specific
// car; external requests leave dispatch to the scheduler. ID is a
// correlation id that lets a single scenario event be traced across all
// three subsystems' independent log streams.
type Request struct {
	ID             uuid.UUID
	Floor          int
	ElevatorNumber int
	Direction      Direction
	RequestTime    time.Time
	Type           RequestType
}

// requestWireLen is the fixed encoded size of a Request: tag(1) + id(16) +
// floor(2) + elevatorNumber(1) + direction(1) + requestTime(8) + type(1).
const requestWireLen = 1 + 16 + 2 + 1 + 1 + 8 + 1

// EncodeRequest serializes r with a leading TagRequest byte so the ingress
// queue can key it like any other datagram. Encoding is plain
// encoding/binary, not gob: the frame is small, fixed width, and must stay
// distinguishable by length from the short tag-byte frames below.
func EncodeRequest(r Request) []byte {
	buf := make([]byte, requestWireLen)
	buf[0] = byte(TagRequest)
	copy(buf[1:17], r.ID[:])
	binary.BigEndian.PutUint16(buf[17:19], uint16(r.Floor))
	buf[19] = byte(r.ElevatorNumber)
	buf[20] = byte(r.Direction)
	binary.BigEndian.PutUint64(buf[21:29], uint64(r.RequestTime.UnixNano()))
	buf[29] = byte(r.Type)
	return buf
}

// DecodeRequest is the inverse of EncodeRequest. It returns an error on any
// length mismatch rather than panicking: the caller drops the frame and
// logs at debug level.
func DecodeRequest(payload []byte) (Request, error) {
	var r Request
	if len(payload) != requestWireLen {
		return r, fmt.Errorf("proto: request frame has length %d, want %d", len(payload), requestWireLen)
	}
	if Tag(payload[0]) != TagRequest {
		return r, fmt.Errorf("proto: request frame has tag %d, want %d", payload[0], TagRequest)
	}
	copy(r.ID[:], payload[1:17])
	r.Floor = int(binary.BigEndian.Uint16(payload[17:19]))
	r.ElevatorNumber = int(payload[19])
	r.Direction = Direction(payload[20])
	r.RequestTime = time.Unix(0, int64(binary.BigEndian.Uint64(payload[21:29])))
	r.Type = RequestType(payload[29])
	return r, nil
}

// LooksLikeRequest reports whether payload is long enough to be a
// serialized Request rather than one of the fixed short frames: anything
// longer than 3 bytes carrying the request tag is treated as a call.
func LooksLikeRequest(payload []byte) bool {
	return len(payload) > 3 && Tag(payload[0]) == TagRequest
}

// --- Fixed tag-byte frames ---

func EncodeCarFrame(tag Tag, car int) []byte {
	return []byte{byte(tag), byte(car)}
}

func EncodeCarFloorFrame(tag Tag, car, floor int) []byte {
	return []byte{byte(tag), byte(car), byte(floor)}
}

func EncodeTagOnly(tag Tag) []byte {
	return []byte{byte(tag)}
}

func EncodeAverageTravelTime(car int, seconds int) []byte {
	return []byte{byte(TagAverageTravelTime), byte(car), byte(clampByte(seconds))}
}

func EncodeTotalSimulationTime(seconds int) []byte {
	return []byte{byte(TagTotalSimulationTime), byte(clampByte(seconds))}
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// DecodeCar reads the single-byte car field shared by STUCK, DOOR_ISSUE,
// ISSUE_FIXED, and FIX_ELEVATOR_ERROR frames.
func DecodeCar(payload []byte, maxCar int) (car int, err error) {
	if len(payload) != 2 {
		return 0, fmt.Errorf("proto: car frame has length %d, want 2", len(payload))
	}
	car = int(payload[1])
	if car < 0 || car >= maxCar {
		return 0, fmt.Errorf("proto: car index %d out of range [0,%d)", car, maxCar)
	}
	return car, nil
}

// DecodeCarFloor reads the two-byte car+floor field shared by
// ELEVATOR_ARRIVAL and REQUEST_ELEVATOR frames.
func DecodeCarFloor(payload []byte, maxCar, maxFloor int) (car, floor int, err error) {
	if len(payload) != 3 {
		return 0, 0, fmt.Errorf("proto: car/floor frame has length %d, want 3", len(payload))
	}
	car = int(payload[1])
	floor = int(payload[2])
	if car < 0 || car >= maxCar {
		return 0, 0, fmt.Errorf("proto: car index %d out of range [0,%d)", car, maxCar)
	}
	if floor < 0 || floor >= maxFloor {
		return 0, 0, fmt.Errorf("proto: floor index %d out of range [0,%d)", floor, maxFloor)
	}
	return car, floor, nil
}
