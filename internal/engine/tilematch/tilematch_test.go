package tilematch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourneyhub/gamecore/internal/engine"
	"github.com/tourneyhub/gamecore/internal/randutil"
)

func testConfig() Config {
	return Config{CountdownSec: 60, GridSize: 4, Colors: 3}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(testConfig(), 2, randutil.New(7))
	e.Start(time.Unix(0, 0))
	return e
}

// findPair returns ids of an unmatched same-colour pair, and a mismatched
// pair when match is false.
func findPair(t *testing.T, e *Engine, match bool) (int, int) {
	t.Helper()
	for i := range e.tiles {
		if e.tiles[i].Matched {
			continue
		}
		for j := i + 1; j < len(e.tiles); j++ {
			if e.tiles[j].Matched {
				continue
			}
			same := e.tiles[i].Color == e.tiles[j].Color
			if same == match {
				return i, j
			}
		}
	}
	t.Fatalf("no pair with match=%v", match)
	return 0, 0
}

func pair(t *testing.T, e *Engine, seat, a, b int) error {
	t.Helper()
	payload, err := json.Marshal(MovePayload{A: a, B: b})
	require.NoError(t, err)
	return e.ApplyMove(seat, payload, time.Unix(1, 0))
}

func TestGridIsFullyPairable(t *testing.T) {
	e := New(testConfig(), 2, randutil.New(3))
	counts := make(map[int]int)
	for _, tile := range e.tiles {
		counts[tile.Color]++
	}
	for color, n := range counts {
		assert.Equal(t, 0, n%2, "colour %d has odd count %d", color, n)
	}
}

func TestMatchScoresAndCombo(t *testing.T) {
	e := newTestEngine(t)

	a, b := findPair(t, e, true)
	require.NoError(t, pair(t, e, 0, a, b))
	assert.Equal(t, 10, e.players[0].Score)
	assert.Equal(t, 1, e.players[0].Combo)
	assert.Equal(t, 2, e.players[0].TilesCleared)

	a, b = findPair(t, e, true)
	require.NoError(t, pair(t, e, 0, a, b))
	assert.Equal(t, 30, e.players[0].Score) // 10 + 10*2
	assert.Equal(t, 2, e.players[0].Combo)
}

func TestMismatchResetsCombo(t *testing.T) {
	e := newTestEngine(t)

	a, b := findPair(t, e, true)
	require.NoError(t, pair(t, e, 0, a, b))
	require.Equal(t, 1, e.players[0].Combo)

	a, b = findPair(t, e, false)
	require.NoError(t, pair(t, e, 0, a, b))
	assert.Equal(t, 0, e.players[0].Combo)
	assert.Equal(t, 10, e.players[0].Score) // unchanged
}

func TestMatchedTileRejected(t *testing.T) {
	e := newTestEngine(t)
	a, b := findPair(t, e, true)
	require.NoError(t, pair(t, e, 0, a, b))

	err := pair(t, e, 1, a, b)
	assert.ErrorIs(t, err, engine.ErrIllegalMove)
}

func TestBadPairRejected(t *testing.T) {
	e := newTestEngine(t)
	assert.ErrorIs(t, pair(t, e, 0, 3, 3), engine.ErrIllegalMove)
	assert.ErrorIs(t, pair(t, e, 0, 0, 999), engine.ErrIllegalMove)
	assert.ErrorIs(t, e.ApplyMove(5, []byte(`{"a":0,"b":1}`), time.Now()), engine.ErrUnknownSeat)
}

func TestCountdownEndsGame(t *testing.T) {
	e := newTestEngine(t)
	e.Tick(time.Unix(59, 0))
	assert.False(t, e.Over())

	e.Tick(time.Unix(60, 0))
	require.True(t, e.Over())
	assert.Equal(t, "countdown", e.TerminalReason())

	a, b := 0, 1
	assert.ErrorIs(t, pair(t, e, 0, a, b), engine.ErrGameOver)
}

func TestRankingByScoreThenSeat(t *testing.T) {
	e := newTestEngine(t)
	a, b := findPair(t, e, true)
	require.NoError(t, pair(t, e, 1, a, b))

	assert.Equal(t, []int{1, 0}, e.Ranking())

	// Equal scores fall back to seat order.
	e2 := newTestEngine(t)
	assert.Equal(t, []int{0, 1}, e2.Ranking())
}

func TestBotClearsBoard(t *testing.T) {
	e := newTestEngine(t)
	for !e.Over() {
		payload, err := e.BotMove(0)
		require.NoError(t, err)
		require.NoError(t, e.ApplyMove(0, payload, time.Unix(2, 0)))
	}
	assert.Equal(t, "board_cleared", e.TerminalReason())
	assert.Equal(t, len(e.tiles), e.players[0].TilesCleared)
}

func TestBotSeatClearsPairsOnCadence(t *testing.T) {
	e := New(testConfig(), 2, randutil.New(7))
	e.SetBotSeats([]bool{false, true})
	start := time.Unix(0, 0)
	e.Start(start)

	// Before the first cadence point the bot sits still.
	e.Tick(start.Add(time.Second))
	assert.Equal(t, 0, e.players[1].Score)

	e.Tick(start.Add(botPairEvery))
	assert.Equal(t, 10, e.players[1].Score)
	assert.Equal(t, 2, e.players[1].TilesCleared)

	// Ticks between cadence points change nothing.
	e.Tick(start.Add(botPairEvery + 250*time.Millisecond))
	assert.Equal(t, 10, e.players[1].Score)

	e.Tick(start.Add(2 * botPairEvery))
	assert.Equal(t, 30, e.players[1].Score) // combo carries
	assert.Equal(t, 0, e.players[0].Score, "human seat untouched")
}

func TestSubmitScoreDoesNotAffectAuthoritativeScore(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.SubmitScore(0, 9999))
	assert.Equal(t, 9999, e.players[0].ReportedScore)
	assert.Equal(t, 0, e.players[0].Score)
	assert.ErrorIs(t, e.SubmitScore(7, 1), engine.ErrUnknownSeat)
}
