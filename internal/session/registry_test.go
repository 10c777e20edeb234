package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourneyhub/gamecore/internal/config"
	"github.com/tourneyhub/gamecore/internal/engine"
	"github.com/tourneyhub/gamecore/internal/engine/chess"
	"github.com/tourneyhub/gamecore/internal/engine/tictactoe"
	"github.com/tourneyhub/gamecore/internal/engine/tilematch"
	"github.com/tourneyhub/gamecore/internal/events"
)

type fakeSigner struct {
	mu        sync.Mutex
	signErr   error
	signed    [][]byte
	submitted []string
}

func (f *fakeSigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signErr != nil {
		return nil, f.signErr
	}
	f.signed = append(f.signed, payload)
	return []byte("sig"), nil
}

func (f *fakeSigner) SubmitResults(_ context.Context, tournamentID string, _ []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, tournamentID)
	return true
}

func newTestRegistry(t *testing.T) (*Registry, *quartz.Mock, *fakeSigner, *events.Feed) {
	t.Helper()
	cfg := config.Default()
	cfg.Bots.ThinkDelayMinMs = 500
	cfg.Bots.ThinkDelayMaxMs = 500

	mock := quartz.NewMock(t)
	signer := &fakeSigner{}
	feed := events.NewFeed(64)
	r := NewRegistry(cfg, mock, signer, feed, log.New(io.Discard))
	t.Cleanup(r.Close)
	return r, mock, signer, feed
}

func cellMove(t *testing.T, r *Registry, id, player string, cell int) error {
	t.Helper()
	payload, err := json.Marshal(tictactoe.MovePayload{Cell: cell})
	require.NoError(t, err)
	return r.ApplyMove(id, player, payload)
}

func waitEnded(t *testing.T, r *Registry, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		info, err := r.Info(id)
		return err == nil && info.Lifecycle == Ended.String()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateOrGetIsIdempotent(t *testing.T) {
	r, _, _, feed := newTestRegistry(t)

	id1, err := r.CreateOrGet("t1", engine.KindTicTacToe, []string{"alice", "bob"})
	require.NoError(t, err)
	id2, err := r.CreateOrGet("t1", engine.KindTicTacToe, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	other, err := r.CreateOrGet("t2", engine.KindTicTacToe, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, other)

	created := 0
	for _, rec := range feed.Since(0) {
		if rec.Identifier == events.TournamentCreated {
			created++
		}
	}
	assert.Equal(t, 2, created)
}

func TestSeatsPaddedWithBots(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)

	id, err := r.CreateOrGet("t1", engine.KindChess, []string{"alice"})
	require.NoError(t, err)

	info, err := r.Info(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "Bot_1"}, info.Players)
	assert.Equal(t, []string{"white", "black"}, info.Roles)
	assert.Equal(t, "created", info.Lifecycle)

	_, err = r.CreateOrGet("t3", engine.KindChess, []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrTooManyPlayers)
}

func TestJoinSwapsBotAndIsIdempotent(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	id, err := r.CreateOrGet("t1", engine.KindChess, []string{"alice"})
	require.NoError(t, err)

	require.NoError(t, r.Join(id, "bob"))
	info, _ := r.Info(id)
	assert.Equal(t, []string{"alice", "bob"}, info.Players)

	// Joining again changes nothing.
	require.NoError(t, r.Join(id, "bob"))
	info, _ = r.Info(id)
	assert.Equal(t, []string{"alice", "bob"}, info.Players)

	// No bot seats left.
	assert.ErrorIs(t, r.Join(id, "carol"), ErrSessionClosedToJoins)

	require.NoError(t, r.Start(id))
	assert.ErrorIs(t, r.Join(id, "dave"), ErrSessionClosedToJoins)

	// A seated player repeating the join after start is rejected too.
	assert.ErrorIs(t, r.Join(id, "bob"), ErrSessionClosedToJoins)
}

func TestMoveGuards(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	id, err := r.CreateOrGet("t1", engine.KindTicTacToe, []string{"alice", "bob"})
	require.NoError(t, err)

	assert.ErrorIs(t, cellMove(t, r, id, "alice", 0), ErrSessionNotStarted)
	assert.ErrorIs(t, cellMove(t, r, "nope", "alice", 0), ErrUnknownSession)

	require.NoError(t, r.Start(id))
	assert.ErrorIs(t, cellMove(t, r, id, "mallory", 0), ErrUnknownPlayer)
	assert.ErrorIs(t, cellMove(t, r, id, "bob", 0), engine.ErrNotYourTurn)
}

func TestTicTacToeGameEndsWithSignedResult(t *testing.T) {
	r, _, signer, feed := newTestRegistry(t)
	id, err := r.CreateOrGet("t1", engine.KindTicTacToe, []string{"alice", "bob"})
	require.NoError(t, err)
	require.NoError(t, r.Start(id))

	players := []string{"alice", "bob"}
	for i, cell := range []int{0, 4, 1, 5, 2} {
		require.NoError(t, cellMove(t, r, id, players[i%2], cell))
	}
	waitEnded(t, r, id)

	res, err := r.GetResult(id)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"alice", "bob"}, res.Podium)
	assert.Equal(t, []byte("sig"), res.SignedPayload)
	assert.True(t, res.Submitted)
	assert.NotEmpty(t, res.Reason)

	signer.mu.Lock()
	assert.Equal(t, []string{"t1"}, signer.submitted)
	signer.mu.Unlock()

	// The tournament mapping is gone once the session ended.
	_, err = r.ByTournament("t1")
	assert.ErrorIs(t, err, ErrUnknownTournament)

	submitted := false
	for _, rec := range feed.Since(0) {
		if rec.Identifier == events.ResultsSubmitted {
			submitted = true
		}
	}
	assert.True(t, submitted)

	assert.ErrorIs(t, cellMove(t, r, id, "alice", 8), ErrSessionEnded)
}

func TestBotPlaysAfterThinkDelay(t *testing.T) {
	r, mock, _, _ := newTestRegistry(t)
	id, err := r.CreateOrGet("t1", engine.KindTicTacToe, []string{"alice"})
	require.NoError(t, err)
	require.NoError(t, r.Start(id))

	require.NoError(t, cellMove(t, r, id, "alice", 4))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mock.Advance(500 * time.Millisecond).MustWait(ctx)

	v, err := r.View(id)
	require.NoError(t, err)
	st := v.State.(tictactoe.View)
	marks := 0
	for _, c := range st.Board {
		if c >= 0 {
			marks++
		}
	}
	assert.Equal(t, 2, marks, "bot should have answered")
	assert.Equal(t, 0, st.CurrentSeat)
}

func TestRealTimeSessionTicks(t *testing.T) {
	r, mock, _, _ := newTestRegistry(t)
	id, err := r.CreateOrGet("t1", engine.KindArcade, []string{"alice", "bob"})
	require.NoError(t, err)
	require.NoError(t, r.Start(id))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mock.Advance(50 * time.Millisecond).MustWait(ctx)

	v, err := r.View(id)
	require.NoError(t, err)
	assert.Equal(t, int64(50), v.LastTickMs)
}

func TestTileMatchBotAccumulatesScore(t *testing.T) {
	r, mock, _, _ := newTestRegistry(t)
	id, err := r.CreateOrGet("t1", engine.KindTileMatch, []string{"alice"})
	require.NoError(t, err)
	require.NoError(t, r.Start(id))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 8; i++ {
		mock.Advance(250 * time.Millisecond).MustWait(ctx)
	}

	v, err := r.View(id)
	require.NoError(t, err)
	st := v.State.(tilematch.View)
	assert.Equal(t, 0, st.Players[0].Score)
	assert.Greater(t, st.Players[1].Score, 0, "bot seat should clear pairs")
}

func TestEndComputesResultFromStandings(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	id, err := r.CreateOrGet("t1", engine.KindTicTacToe, []string{"alice", "bob"})
	require.NoError(t, err)
	require.NoError(t, r.Start(id))
	require.NoError(t, cellMove(t, r, id, "alice", 0))

	require.NoError(t, r.End(id))
	assert.ErrorIs(t, r.End(id), ErrSessionEnded)
	waitEnded(t, r, id)

	res, err := r.GetResult(id)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.ElementsMatch(t, []string{"alice", "bob"}, res.Podium)
}

func TestSignerFailureDegradesCompletion(t *testing.T) {
	r, _, signer, _ := newTestRegistry(t)
	signer.signErr = errors.New("signer down")

	id, err := r.CreateOrGet("t1", engine.KindTicTacToe, []string{"alice", "bob"})
	require.NoError(t, err)
	require.NoError(t, r.Start(id))
	require.NoError(t, r.End(id))
	waitEnded(t, r, id)

	res, err := r.GetResult(id)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Nil(t, res.SignedPayload)
	assert.False(t, res.Submitted)
	assert.Contains(t, res.SignerErr, "signer down")
}

func TestConcurrentMovesExactlyOneApplies(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	id, err := r.CreateOrGet("t1", engine.KindTicTacToe, []string{"alice", "bob"})
	require.NoError(t, err)
	require.NoError(t, r.Start(id))

	payload, err := json.Marshal(tictactoe.MovePayload{Cell: 4})
	require.NoError(t, err)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.ApplyMove(id, "alice", payload)
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, e := range errs {
		if e == nil {
			applied++
		}
	}
	assert.Equal(t, 1, applied, "session mutex must serialise moves")

	v, err := r.View(id)
	require.NoError(t, err)
	st := v.State.(tictactoe.View)
	marks := 0
	for _, c := range st.Board {
		if c >= 0 {
			marks++
		}
	}
	assert.Equal(t, 1, marks)
}

func TestPanicConfinedToSession(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	sick, err := r.CreateOrGet("t1", engine.KindTicTacToe, []string{"alice", "bob"})
	require.NoError(t, err)
	healthy, err := r.CreateOrGet("t2", engine.KindTicTacToe, []string{"carol", "dan"})
	require.NoError(t, err)
	require.NoError(t, r.Start(sick))
	require.NoError(t, r.Start(healthy))

	r.degradeSession(sick, "two kings of the same colour")

	v, err := r.View(sick)
	require.NoError(t, err)
	assert.Equal(t, "ended", v.Lifecycle)
	assert.Nil(t, v.Result)
	assert.Contains(t, v.Diagnostic, "two kings")

	// The other session keeps playing.
	require.NoError(t, cellMove(t, r, healthy, "carol", 0))
}

func TestSweepExpiredDropsOldEndedSessions(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	id, err := r.CreateOrGet("t1", engine.KindTicTacToe, []string{"alice", "bob"})
	require.NoError(t, err)
	require.NoError(t, r.Start(id))
	require.NoError(t, r.End(id))
	waitEnded(t, r, id)

	// Within retention nothing is dropped.
	assert.Equal(t, 0, r.SweepExpired(r.clock.Now()))

	assert.Equal(t, 1, r.SweepExpired(r.clock.Now().Add(2*time.Hour)))
	_, err = r.Info(id)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Equal(t, 0, r.SessionCount())
}

func TestChessEmojiThroughRegistry(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	id, err := r.CreateOrGet("t1", engine.KindChess, []string{"alice", "bob"})
	require.NoError(t, err)
	require.NoError(t, r.Start(id))

	require.NoError(t, r.SendEmoji(id, "alice", "🔥"))
	require.NoError(t, r.SendEmoji(id, "watcher", "👀"))

	v, err := r.View(id)
	require.NoError(t, err)
	st := v.State.(chess.View)
	require.Len(t, st.Emoji, 2)
	assert.False(t, st.Emoji[0].Spectator)
	assert.True(t, st.Emoji[1].Spectator)

	// Engines without the side-channel reject it.
	ttt, err := r.CreateOrGet("t2", engine.KindTicTacToe, []string{"a", "b"})
	require.NoError(t, err)
	assert.ErrorIs(t, r.SendEmoji(ttt, "a", "🔥"), engine.ErrIllegalMove)
}

func TestSubmitScoreThroughRegistry(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	id, err := r.CreateOrGet("t1", engine.KindTileMatch, []string{"alice", "bob"})
	require.NoError(t, err)
	require.NoError(t, r.Start(id))

	require.NoError(t, r.SubmitScore(id, "alice", 1234))
	assert.ErrorIs(t, r.SubmitScore(id, "mallory", 1), ErrUnknownPlayer)

	ttt, err := r.CreateOrGet("t2", engine.KindTicTacToe, []string{"a", "b"})
	require.NoError(t, err)
	assert.ErrorIs(t, r.SubmitScore(ttt, "a", 1), engine.ErrIllegalMove)
}
