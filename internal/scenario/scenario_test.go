package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elevatorsim/core/internal/config"
	"github.com/elevatorsim/core/internal/proto"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPlainRecords(t *testing.T) {
	path := writeScenario(t, ""+
		"00:00:05.000 3 UP 0 EXTERNAL\n"+
		"00:00:01.500 7 DOWN 1 INTERNAL\n"+
		"00:00:10.000 2 DOOR_ISSUE\n",
	)
	sc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, sc.Calls, 2)
	require.Len(t, sc.Faults, 1)

	// sorted chronologically: the 1.5s call precedes the 5s call
	require.Equal(t, 7, sc.Calls[0].Floor)
	require.Equal(t, proto.Down, sc.Calls[0].Direction)
	require.Equal(t, proto.Internal, sc.Calls[0].Type)
	require.Equal(t, 3, sc.Calls[1].Floor)

	require.Equal(t, proto.DoorIssue, sc.Faults[0].Kind)
	require.Equal(t, 2, sc.Faults[0].ElevatorNumber)
	require.Equal(t, 10*time.Second, sc.Faults[0].ScheduledTime)
}

func TestLoadWithFrontMatter(t *testing.T) {
	path := writeScenario(t, ""+
		"---\n"+
		"floors: 20\n"+
		"elevators: 5\n"+
		"---\n"+
		"00:00:00.000 1 UP 0 EXTERNAL\n",
	)
	sc, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 20, sc.Overrides.Floors)
	require.Equal(t, 5, sc.Overrides.Elevators)
	require.Len(t, sc.Calls, 1)
}

func TestLoadRejectsUnterminatedFrontMatter(t *testing.T) {
	path := writeScenario(t, "---\nfloors: 20\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadRecordKind(t *testing.T) {
	path := writeScenario(t, "00:00:00.000 1 SIDEWAYS 0 EXTERNAL\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/scenario.txt")
	require.Error(t, err)
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := parseTimeOfDay("01:02:03.456")
	require.NoError(t, err)
	want := time.Hour + 2*time.Minute + 3*time.Second + 456*time.Millisecond
	require.Equal(t, want, got)
}

func TestParseTimeOfDayWithoutMillis(t *testing.T) {
	got, err := parseTimeOfDay("00:00:02")
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, got)
}

func TestOverridesApplyOnlyOverridesNonZero(t *testing.T) {
	base := config.Default()
	o := Overrides{Floors: 30}
	got := o.Apply(base)
	require.Equal(t, 30, got.Floors)
	require.Equal(t, base.Elevators, got.Elevators)
	require.Equal(t, base.MaxSpeed, got.MaxSpeed)
}
