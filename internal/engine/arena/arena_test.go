package arena

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourneyhub/gamecore/internal/engine"
	"github.com/tourneyhub/gamecore/internal/randutil"
)

func testConfig() Config {
	return Config{
		TickMs:          50,
		InitialSize:     1000,
		MaxSize:         3000,
		ExpansionStep:   400,
		StartRadius:     20,
		PelletValue:     100,
		PelletCount:     120,
		ExpansionPellet: 25,
		EdgeDwellMs:     2000,
		MaxDurationSec:  300,
		BaseSpeed:       220,
		AbsorbRatio:     1.10,
		AbsorbDepth:     0.4,
	}
}

func newTestEngine(t *testing.T, seats int) (*Engine, time.Time) {
	t.Helper()
	e := New(testConfig(), seats, randutil.New(21))
	start := time.Unix(0, 0)
	e.Start(start)
	return e, start
}

func aim(t *testing.T, e *Engine, seat int, x, y float64, now time.Time) error {
	t.Helper()
	payload, err := json.Marshal(MovePayload{X: x, Y: y})
	require.NoError(t, err)
	return e.ApplyMove(seat, payload, now)
}

func TestNewScattersPelletsAndSeats(t *testing.T) {
	e, _ := newTestEngine(t, 3)
	assert.Len(t, e.pellets, 120)
	require.Len(t, e.cells, 3)
	for _, c := range e.cells {
		assert.True(t, c.Alive)
		assert.Equal(t, 20.0, c.Radius)
	}
}

func TestAimMovesCellTowardCursor(t *testing.T) {
	e, start := newTestEngine(t, 2)
	e.pellets = nil
	e.cells[0].X, e.cells[0].Y = 200, 500
	e.cells[1].X, e.cells[1].Y = 900, 900

	require.NoError(t, aim(t, e, 0, 800, 500, start))
	now := start
	for i := 0; i < 20; i++ {
		now = now.Add(50 * time.Millisecond)
		e.Tick(now)
	}
	assert.Greater(t, e.cells[0].X, 250.0)
	assert.InDelta(t, 500.0, e.cells[0].Y, 1.0)
}

func TestAimRateLimitedToOnePerTickWindow(t *testing.T) {
	e, start := newTestEngine(t, 2)

	require.NoError(t, aim(t, e, 0, 10, 10, start))
	require.NoError(t, aim(t, e, 0, 900, 900, start.Add(10*time.Millisecond)))
	assert.Equal(t, 10.0, e.cells[0].aimX, "second aim inside the window is dropped")

	require.NoError(t, aim(t, e, 0, 900, 900, start.Add(60*time.Millisecond)))
	assert.Equal(t, 900.0, e.cells[0].aimX)
}

func TestDeadCellAimIgnored(t *testing.T) {
	e, start := newTestEngine(t, 3)
	e.cells[0].Alive = false
	require.NoError(t, aim(t, e, 0, 100, 100, start))
	assert.False(t, e.cells[0].hasAim)
}

func TestBadAimRejected(t *testing.T) {
	e, start := newTestEngine(t, 2)
	err := e.ApplyMove(0, []byte(`{"x":"nope"}`), start)
	assert.ErrorIs(t, err, engine.ErrIllegalMove)

	err = aim(t, e, 0, math.Inf(1), 0, start)
	assert.ErrorIs(t, err, engine.ErrIllegalMove)

	err = aim(t, e, 9, 1, 1, start)
	assert.ErrorIs(t, err, engine.ErrUnknownSeat)
}

func TestPelletGrowsCell(t *testing.T) {
	e, start := newTestEngine(t, 2)
	e.pellets = []Pellet{{X: 505, Y: 500, R: pelletRadius}}
	e.cells[0].X, e.cells[0].Y = 500, 500
	e.cells[1].X, e.cells[1].Y = 100, 100

	e.Tick(start.Add(50 * time.Millisecond))
	assert.Empty(t, e.pellets)
	assert.InDelta(t, math.Sqrt(500), e.cells[0].Radius, 0.01)
}

func TestAbsorptionOfSmallerOverlappingCell(t *testing.T) {
	e, start := newTestEngine(t, 2)
	e.pellets = nil
	e.cells[0] = Cell{X: 100, Y: 100, Radius: 20, Alive: true}
	e.cells[1] = Cell{X: 115, Y: 100, Radius: 10, Alive: true}

	now := start
	for i := 0; i < 5 && !e.Over(); i++ {
		now = now.Add(50 * time.Millisecond)
		e.Tick(now)
	}

	assert.False(t, e.cells[1].Alive)
	assert.InDelta(t, math.Sqrt(500), e.cells[0].Radius, 0.1)
	require.True(t, e.Over())
	assert.Equal(t, "last_cell", e.TerminalReason())
	assert.Equal(t, 0, e.winner)
	assert.Equal(t, []int{0, 1}, e.Ranking())
}

func TestNoAbsorptionWithoutSizeAdvantage(t *testing.T) {
	e, start := newTestEngine(t, 2)
	e.pellets = nil
	e.cells[0] = Cell{X: 100, Y: 100, Radius: 20, Alive: true}
	e.cells[1] = Cell{X: 105, Y: 100, Radius: 19, Alive: true}

	e.Tick(start.Add(50 * time.Millisecond))
	assert.True(t, e.cells[1].Alive)
}

func TestEdgeDwellExpandsArena(t *testing.T) {
	e, start := newTestEngine(t, 2)
	e.pellets = nil
	e.cells[0].X, e.cells[0].Y = 20, 500
	e.cells[1].X, e.cells[1].Y = 900, 900
	require.NoError(t, aim(t, e, 0, -200, 500, start))

	e.Tick(start.Add(50 * time.Millisecond)) // presses the wall, dwell starts
	require.Empty(t, e.history)

	e.Tick(start.Add(2200 * time.Millisecond))
	require.Len(t, e.history, 1)
	assert.Equal(t, 1400.0, e.width)
	assert.Equal(t, 1400.0, e.height)
	assert.Len(t, e.pellets, 25)
	for _, p := range e.pellets {
		inBand := p.X >= 1000 || p.Y >= 1000
		assert.True(t, inBand, "expansion pellet (%f,%f) outside the new band", p.X, p.Y)
	}
}

func TestArenaNeverExceedsMaxSize(t *testing.T) {
	e, start := newTestEngine(t, 2)
	e.cfg.MaxSize = 1200
	e.pellets = nil
	e.cells[0].X, e.cells[0].Y = 25, 500
	e.cells[1].X, e.cells[1].Y = 900, 900
	require.NoError(t, aim(t, e, 0, -200, 500, start))

	now := start
	for i := 0; i < 200; i++ {
		now = now.Add(time.Second)
		e.Tick(now)
	}
	assert.LessOrEqual(t, e.width, 1200.0)
	assert.LessOrEqual(t, e.height, 1200.0)
}

func TestTimeoutRanksByRadius(t *testing.T) {
	e, start := newTestEngine(t, 3)
	e.pellets = nil
	e.cells[0].Radius = 25
	e.cells[1].Radius = 40
	e.cells[2].Radius = 30

	e.Tick(start.Add(301 * time.Second))
	require.True(t, e.Over())
	assert.Equal(t, "timeout", e.TerminalReason())
	assert.Equal(t, []int{1, 2, 0}, e.Ranking())
	assert.Equal(t, 1, e.winner)
}

func TestDeadCellsRankLatestDeathFirst(t *testing.T) {
	e, start := newTestEngine(t, 3)
	e.cells[0].Alive = false
	e.cells[0].diedAt = start.Add(10 * time.Second)
	e.cells[1].Alive = false
	e.cells[1].diedAt = start.Add(30 * time.Second)

	assert.Equal(t, []int{2, 1, 0}, e.Ranking())
}

func TestMoveAfterGameOver(t *testing.T) {
	e, start := newTestEngine(t, 2)
	e.over = true
	err := aim(t, e, 0, 1, 1, start)
	assert.ErrorIs(t, err, engine.ErrGameOver)
}

func TestBotFleesBiggerCell(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	e.cells[0] = Cell{X: 500, Y: 500, Radius: 10, Alive: true}
	e.cells[1] = Cell{X: 560, Y: 500, Radius: 30, Alive: true}

	x, _ := e.aimFor(0)
	assert.Less(t, x, 500.0, "bot should aim away from the hunter")
}

func TestBotChasesPrey(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	e.pellets = nil
	e.cells[0] = Cell{X: 500, Y: 500, Radius: 30, Alive: true}
	e.cells[1] = Cell{X: 600, Y: 500, Radius: 10, Alive: true}

	x, y := e.aimFor(0)
	assert.Equal(t, 600.0, x)
	assert.Equal(t, 500.0, y)
}

func TestBotPrefersSafePellet(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	e.cells[0] = Cell{X: 100, Y: 100, Radius: 10, Alive: true}
	e.cells[1] = Cell{X: 900, Y: 900, Radius: 30, Alive: true}
	e.pellets = []Pellet{
		{X: 880, Y: 900, R: pelletRadius}, // in the hunter's shadow
		{X: 300, Y: 100, R: pelletRadius},
	}

	x, y := e.aimFor(0)
	assert.Equal(t, 300.0, x)
	assert.Equal(t, 100.0, y)
}

func TestViewSnapshotsState(t *testing.T) {
	e, start := newTestEngine(t, 2)
	v := e.View(start).(View)
	assert.Equal(t, 1000.0, v.Width)
	assert.Len(t, v.Cells, 2)
	assert.False(t, v.GameOver)

	// Mutating the snapshot must not touch engine state.
	v.Cells[0].Radius = 999
	assert.Equal(t, 20.0, e.cells[0].Radius)
}
