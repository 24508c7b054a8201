package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSlots_PrintsGrid(t *testing.T) {
	out, err := run(t, "slots", "--date", "2025-11-28", "--timezone", "America/Phoenix",
		"--busy", "2025-11-28T09:00:00-07:00/2025-11-28T10:00:00-07:00")
	require.NoError(t, err)

	assert.Contains(t, out, "(26 slots)")
	assert.Contains(t, out, "07:00  open")
	assert.Contains(t, out, "08:30  open")
	assert.Contains(t, out, "09:00  busy")
	assert.Contains(t, out, "09:30  busy")
	assert.Contains(t, out, "10:00  open")
	assert.True(t, strings.HasPrefix(out, "2025-11-28 in America/Phoenix"))
}

func TestReserve_Outcomes(t *testing.T) {
	busy := "2025-11-28T09:00:00-07:00/2025-11-28T10:00:00-07:00"

	out, err := run(t, "reserve", "--date", "2025-11-28", "--timezone", "America/New_York", "--time", "13:00", "--busy", busy)
	require.NoError(t, err)
	assert.Equal(t, "confirmed: 2025-11-28 13:00-14:00 (America/New_York)\n", out)

	out, err = run(t, "reserve", "--date", "2025-11-28", "--timezone", "America/Phoenix", "--time", "09:00", "--busy", busy)
	require.NoError(t, err)
	assert.Equal(t, "rejected: ALREADY_BOOKED\n", out)

	out, err = run(t, "reserve", "--date", "2025-11-28", "--timezone", "America/Phoenix", "--time", "09:15")
	require.NoError(t, err)
	assert.Equal(t, "rejected: INVALID_SLOT_ALIGNMENT\n", out)
}

func TestLoad_Errors(t *testing.T) {
	_, err := run(t, "slots", "--date", "28/11/2025")
	assert.Error(t, err)

	_, err = run(t, "slots", "--date", "2025-11-28", "--timezone", "Mars/Olympus")
	assert.Error(t, err)

	_, err = run(t, "slots", "--date", "2025-11-28", "--busy", "not-an-interval")
	assert.Error(t, err)
}
