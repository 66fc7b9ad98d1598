package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthString(t *testing.T) {
	require.Equal(t, "IN_SERVICE", InService.String())
	require.Equal(t, "OUT_OF_SERVICE", OutOfService.String())
}

func TestDoorStateString(t *testing.T) {
	require.Equal(t, "CLOSED", DoorClosed.String())
	require.Equal(t, "OPEN", DoorOpen.String())
}

func TestMotionString(t *testing.T) {
	require.Equal(t, "IDLE", Idle.String())
	require.Equal(t, "MOVING", Moving.String())
	require.Equal(t, "SERVICING_STOP", ServicingStop.String())
	require.Equal(t, "UNKNOWN", Motion(99).String())
}
