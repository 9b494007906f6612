package roadtrip

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCarDrive(t *testing.T) {
	tr := testTrack()
	car := newCar("p1", "Ada", "#ff0000", tr)
	assert.Equal(t, "Welcome!", car.Message)

	step, err := car.drive("right", tr)
	require.NoError(t, err)
	assert.Equal(t, Position{0, 0}, step.From)
	assert.Equal(t, Position{1, 0}, step.To)
	assert.Equal(t, Road, step.Cell)
	assert.Equal(t, 10, step.BatteryBefore)
	assert.Equal(t, 9, step.BatteryAfter)
	assert.Equal(t, "Battery: 9/10", car.Message)

	step, err = car.drive("right", tr)
	require.NoError(t, err)
	assert.True(t, step.Scored)
	assert.Equal(t, 1, car.Score)
	assert.Equal(t, "Park visited! Score: 1", car.Message)

	_, err = car.drive("left", tr)
	require.NoError(t, err)
	step, err = car.drive("right", tr)
	require.NoError(t, err)
	assert.False(t, step.Scored)
	assert.Equal(t, 1, car.Score)
	assert.Equal(t, "Already visited", car.Message)
	assert.Equal(t, 4, car.Moves)
}

func TestCarDrive_Blocked(t *testing.T) {
	tr := testTrack()
	car := newCar("p1", "Ada", "", tr)

	_, err := car.drive("up", tr)
	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, Boundary, blocked.Obstacle)
	assert.Equal(t, Position{0, -1}, blocked.At)

	_, err = car.drive("down", tr)
	require.NoError(t, err)
	_, err = car.drive("right", tr)
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, Water, blocked.Obstacle)

	assert.Equal(t, Position{0, 1}, car.Pos)
	assert.Equal(t, 9, car.Battery)
	assert.Equal(t, 1, car.Moves)
	assert.Equal(t, "Can't move!", car.Message)
}

func TestCarDrive_BadDirection(t *testing.T) {
	tr := testTrack()
	car := newCar("p1", "Ada", "", tr)
	_, err := car.drive("sideways", tr)
	assert.ErrorIs(t, err, errBadDirection)
}

func TestCarDrive_HomeRecharges(t *testing.T) {
	tr := testTrack()
	car := newCar("p1", "Ada", "", tr)
	_, err := car.drive("right", tr)
	require.NoError(t, err)
	step, err := car.drive("left", tr)
	require.NoError(t, err)
	assert.Equal(t, Home, step.Cell)
	assert.Equal(t, tr.MaxBattery, car.Battery)
	assert.Equal(t, "Home charged!", car.Message)
}

func TestCarDrive_Stranded(t *testing.T) {
	tr := testTrack()
	tr.StartingBattery = 2
	car := newCar("p1", "Ada", "", tr)

	_, err := car.drive("down", tr)
	require.NoError(t, err)
	_, err = car.drive("down", tr)
	require.NoError(t, err)
	assert.True(t, car.Stranded)
	assert.Equal(t, 0, car.Battery)
	assert.Equal(t, "Stranded!", car.Message)

	// walls are reported before the empty battery
	_, err = car.drive("left", tr)
	var blocked *BlockedError
	assert.True(t, errors.As(err, &blocked))

	_, err = car.drive("right", tr)
	assert.ErrorIs(t, err, errOutOfBattery)
	assert.Equal(t, Position{0, 2}, car.Pos)
	assert.Equal(t, "No battery!", car.Message)
}

func TestCarTow(t *testing.T) {
	tr := testTrack()
	car := newCar("p1", "Ada", "", tr)
	car.Battery = 0
	car.Stranded = true

	car.tow(tr)
	assert.False(t, car.Stranded)
	assert.Equal(t, tr.MaxBattery, car.Battery)
	assert.Equal(t, "Towed!", car.Message)
}
