package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/tourneyhub/gamecore/internal/config"
	"github.com/tourneyhub/gamecore/internal/engine"
	"github.com/tourneyhub/gamecore/internal/events"
	"github.com/tourneyhub/gamecore/internal/factory"
	"github.com/tourneyhub/gamecore/internal/randutil"
	"github.com/tourneyhub/gamecore/internal/result"
	"github.com/tourneyhub/gamecore/internal/sched"
	"github.com/tourneyhub/gamecore/internal/sessionid"
)

// Signer abstracts the result signing client so tests can fake it.
type Signer interface {
	Sign(ctx context.Context, payload []byte) ([]byte, error)
	SubmitResults(ctx context.Context, tournamentID string, signed []byte) bool
}

// Registry owns every live session. Lookups take the read lock; sessions are
// inserted and removed rarely.
type Registry struct {
	cfg    *config.Config
	clock  quartz.Clock
	signer Signer
	feed   *events.Feed
	logger *log.Logger
	sched  *sched.Scheduler

	mu           sync.RWMutex
	sessions     map[string]*Session
	byTournament map[string]string
}

// NewRegistry wires a registry on the given clock. The scheduler it creates
// confines task panics to the offending session.
func NewRegistry(cfg *config.Config, clock quartz.Clock, signer Signer, feed *events.Feed, logger *log.Logger) *Registry {
	r := &Registry{
		cfg:          cfg,
		clock:        clock,
		signer:       signer,
		feed:         feed,
		logger:       logger.WithPrefix("registry"),
		sessions:     make(map[string]*Session),
		byTournament: make(map[string]string),
	}
	r.sched = sched.New(clock, logger, r.degradeSession)
	return r
}

// Close stops the scheduler and waits for in-flight callbacks.
func (r *Registry) Close() {
	r.sched.Stop()
}

// CreateOrGet returns the active session for the tournament, creating one
// when none exists. Repeat calls with the same tournament are idempotent
// while the session is still Created or Running.
func (r *Registry) CreateOrGet(tournamentID string, kind engine.Kind, players []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byTournament[tournamentID]; ok {
		s := r.sessions[id]
		s.mu.Lock()
		alive := s.lifecycle == Created || s.lifecycle == Running
		s.mu.Unlock()
		if alive {
			return id, nil
		}
	}

	rng := randutil.New(randutil.SeedFrom(r.cfg.Seed, tournamentID))
	eng, err := factory.New(kind, r.cfg, len(players), rng)
	if err != nil {
		return "", err
	}
	if len(players) > eng.SeatCount() {
		return "", fmt.Errorf("%w: %d seats, %d players", ErrTooManyPlayers, eng.SeatCount(), len(players))
	}

	now := r.clock.Now()
	s := &Session{
		ID:           sessionid.New(),
		TournamentID: tournamentID,
		Kind:         kind,
		Engine:       eng,
		roles:        eng.Roles(),
		rng:          rng,
		lifecycle:    Created,
		createdAt:    now,
		lastReadAt:   now,
	}
	s.players = append(s.players, players...)
	for k := 1; len(s.players) < eng.SeatCount(); k++ {
		s.players = append(s.players, result.BotID(k))
	}
	s.botSeats = make([]bool, len(s.players))
	for i, p := range s.players {
		s.botSeats[i] = result.IsBot(p)
	}

	r.sessions[s.ID] = s
	r.byTournament[tournamentID] = s.ID
	r.feed.Publish(events.TournamentCreated, tournamentID, now, map[string]any{
		"session_id": s.ID,
		"game_type":  string(kind),
	})
	r.logger.Info("session created", "session", s.ID, "tournament", tournamentID, "kind", kind, "seats", len(s.players))
	return s.ID, nil
}

// Join swaps a bot seat for the player. While the session is Created a
// repeat join by a seated player is a no-op; once started, every join fails
// with ErrSessionClosedToJoins, repeats included.
func (r *Registry) Join(sessionID, player string) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifecycle != Created {
		return ErrSessionClosedToJoins
	}
	if s.seatOf(player) >= 0 {
		return nil
	}
	for i, p := range s.players {
		if result.IsBot(p) {
			s.players[i] = player
			s.botSeats[i] = false
			r.feed.Publish(events.PlayerJoined, s.TournamentID, r.clock.Now(), map[string]any{
				"session_id": s.ID,
				"player":     player,
				"seat":       i,
			})
			return nil
		}
	}
	return ErrSessionClosedToJoins
}

// Start flips Created to Running, anchors the engine clock and arms the
// scheduler hooks. Starting a running session is a no-op.
func (r *Registry) Start(sessionID string) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.lifecycle {
	case Running:
		return nil
	case Ending, Ended:
		return ErrSessionEnded
	}

	now := r.clock.Now()
	s.lifecycle = Running
	s.startedAt = now
	if aware, ok := s.Engine.(engine.BotSeatAware); ok {
		aware.SetBotSeats(s.botSeats)
	}
	if st, ok := s.Engine.(engine.Startable); ok {
		st.Start(now)
	}
	if rt, ok := s.Engine.(engine.RealTime); ok {
		r.sched.Every(s.ID, rt.TickPeriod(), r.tickFn(s))
	}
	r.maybeScheduleBotLocked(s)

	r.feed.Publish(events.TournamentStarted, s.TournamentID, now, map[string]any{"session_id": s.ID})
	r.feed.Publish(events.GameStarted, s.TournamentID, now, map[string]any{
		"session_id": s.ID,
		"game_type":  string(s.Kind),
	})
	r.logger.Info("session started", "session", s.ID, "kind", s.Kind)
	return nil
}

// ApplyMove routes a player's move into the engine under the session lock.
func (r *Registry) ApplyMove(sessionID, player string, payload json.RawMessage) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()

	switch s.lifecycle {
	case Created:
		s.mu.Unlock()
		return ErrSessionNotStarted
	case Ending, Ended:
		s.mu.Unlock()
		return ErrSessionEnded
	}
	seat := s.seatOf(player)
	if seat < 0 {
		s.mu.Unlock()
		return ErrUnknownPlayer
	}

	if err := s.Engine.ApplyMove(seat, payload, r.clock.Now()); err != nil {
		s.mu.Unlock()
		return err
	}
	r.afterMutationLocked(s)
	return nil
}

// afterMutationLocked handles the common post-move bookkeeping: finishing an
// over game or arming the next bot move. It releases s.mu.
func (r *Registry) afterMutationLocked(s *Session) {
	if s.Engine.Over() {
		res := r.beginEndingLocked(s)
		s.mu.Unlock()
		go r.completeSession(s, res)
		return
	}
	r.maybeScheduleBotLocked(s)
	s.mu.Unlock()
}

// tickFn builds the periodic callback for a real-time session.
func (r *Registry) tickFn(s *Session) func(now time.Time) {
	return func(now time.Time) {
		s.mu.Lock()
		if s.lifecycle != Running {
			s.mu.Unlock()
			return
		}
		s.Engine.Tick(now)
		s.lastTickAt = now
		r.afterMutationLocked(s)
	}
}

// maybeScheduleBotLocked arms a one-shot bot move when a turn-based engine
// is waiting on a bot seat. Real-time engines drive their bots inside Tick.
func (r *Registry) maybeScheduleBotLocked(s *Session) {
	tb, isTurnBased := s.Engine.(engine.TurnBased)
	bm, isBotMover := s.Engine.(engine.BotMover)
	if !isTurnBased || !isBotMover || s.lifecycle != Running || s.Engine.Over() {
		return
	}
	seat := tb.CurrentSeat()
	if seat < 0 || seat >= len(s.botSeats) || !s.botSeats[seat] {
		return
	}

	minMs, maxMs := r.cfg.Bots.ThinkDelayMinMs, r.cfg.Bots.ThinkDelayMaxMs
	if maxMs < minMs {
		maxMs = minMs
	}
	delay := time.Duration(minMs) * time.Millisecond
	if spread := maxMs - minMs; spread > 0 {
		delay += time.Duration(s.rng.IntN(spread+1)) * time.Millisecond
	}

	r.sched.After(s.ID, delay, func(now time.Time) {
		r.botMove(s, tb, bm, seat, now)
	})
}

func (r *Registry) botMove(s *Session, tb engine.TurnBased, bm engine.BotMover, seat int, now time.Time) {
	s.mu.Lock()
	if s.lifecycle != Running || s.Engine.Over() || tb.CurrentSeat() != seat || !s.botSeats[seat] {
		s.mu.Unlock()
		return
	}

	payload, err := bm.BotMove(seat)
	if err == nil {
		err = s.Engine.ApplyMove(seat, payload, now)
	}
	if err != nil {
		r.logger.Error("bot move failed", "session", s.ID, "seat", seat, "error", err)
		s.mu.Unlock()
		return
	}
	r.afterMutationLocked(s)
}

// End force-finishes a running session, computing the result from the
// current standings.
func (r *Registry) End(sessionID string) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.lifecycle == Ending || s.lifecycle == Ended {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	res := r.beginEndingLocked(s)
	s.mu.Unlock()
	go r.completeSession(s, res)
	return nil
}

// beginEndingLocked transitions to Ending, freezes the result snapshot and
// cancels the session's scheduled tasks. Call with s.mu held.
func (r *Registry) beginEndingLocked(s *Session) *result.Result {
	s.lifecycle = Ending
	res := &result.Result{
		SessionID:    s.ID,
		TournamentID: s.TournamentID,
		Kind:         string(s.Kind),
		Podium:       result.Podium(s.players, s.Engine.Ranking()),
		Reason:       s.Engine.TerminalReason(),
		EndedAt:      r.clock.Now(),
	}
	s.result = res
	r.sched.CancelSession(s.ID)
	return res
}

// completeSession signs and submits the frozen result outside any lock, then
// marks the session Ended. Signing failure degrades to a result without a
// signature; the session still ends.
func (r *Registry) completeSession(s *Session, res *result.Result) {
	attempts := time.Duration(r.cfg.Server.SignerRetries + 1)
	budget := attempts * (time.Duration(r.cfg.Server.SignerTimeoutMs)*time.Millisecond + 2*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	packed := result.Pack(res.TournamentID, res.Podium, s.Kind, res.SessionID)
	signed, err := r.signer.Sign(ctx, packed)
	submitted := false
	if err == nil {
		submitted = r.signer.SubmitResults(ctx, res.TournamentID, signed)
	}

	s.mu.Lock()
	if err != nil {
		res.SignerErr = err.Error()
	} else {
		res.SignedPayload = signed
		res.Submitted = submitted
	}
	s.lifecycle = Ended
	s.mu.Unlock()

	if err != nil {
		r.logger.Error("session ended without signature", "session", s.ID, "error", err)
	} else {
		r.logger.Info("session ended", "session", s.ID, "reason", res.Reason, "submitted", submitted)
	}

	r.mu.Lock()
	if r.byTournament[s.TournamentID] == s.ID {
		delete(r.byTournament, s.TournamentID)
	}
	r.mu.Unlock()

	r.feed.Publish(events.ResultsSubmitted, s.TournamentID, r.clock.Now(), map[string]any{
		"session_id": s.ID,
		"podium":     res.Podium,
		"signed":     err == nil,
	})
}

// degradeSession is the scheduler's panic handler: an invariant violation is
// fatal to the session, never to the process.
func (r *Registry) degradeSession(sessionID string, recovered any) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return
	}
	diag := fmt.Sprintf("engine invariant failure: %v", recovered)

	s.mu.Lock()
	s.lifecycle = Ended
	s.result = nil
	s.diagnostic = diag
	s.mu.Unlock()

	r.sched.CancelSession(sessionID)
	r.mu.Lock()
	if r.byTournament[s.TournamentID] == s.ID {
		delete(r.byTournament, s.TournamentID)
	}
	r.mu.Unlock()
	r.logger.Error("session degraded", "session", sessionID, "diagnostic", diag)
}

// View returns the full state projection and refreshes the read timestamp.
func (r *Registry) View(sessionID string) (View, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return View{}, err
	}
	now := r.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReadAt = now

	v := View{
		Info:         s.infoLocked(),
		TournamentID: s.TournamentID,
		State:        s.Engine.View(now),
		Result:       s.resultCopyLocked(),
		Diagnostic:   s.diagnostic,
	}
	if !s.startedAt.IsZero() {
		v.StartedAtMs = s.startedAt.Sub(s.createdAt).Milliseconds()
		if !s.lastTickAt.IsZero() {
			v.LastTickMs = s.lastTickAt.Sub(s.startedAt).Milliseconds()
		}
	}
	return v, nil
}

// Info returns the compact session descriptor.
func (r *Registry) Info(sessionID string) (Info, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReadAt = r.clock.Now()
	return s.infoLocked(), nil
}

// GetResult exposes the frozen result for external pollers.
func (r *Registry) GetResult(sessionID string) (*result.Result, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReadAt = r.clock.Now()
	return s.resultCopyLocked(), nil
}

// ByTournament resolves the active session for a tournament.
func (r *Registry) ByTournament(tournamentID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byTournament[tournamentID]
	if !ok {
		return "", ErrUnknownTournament
	}
	return id, nil
}

// emojiSink is implemented by engines with a chat side-channel.
type emojiSink interface {
	SendEmoji(player, emoji string, spectator bool, now time.Time)
}

// SendEmoji appends to the engine's emoji log. Players who hold no seat are
// accepted as spectators and tagged.
func (r *Registry) SendEmoji(sessionID, player, emoji string) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sink, ok := s.Engine.(emojiSink)
	if !ok {
		return fmt.Errorf("%w: %s has no emoji channel", engine.ErrIllegalMove, s.Kind)
	}
	if s.lifecycle == Ended {
		return ErrSessionEnded
	}
	sink.SendEmoji(player, emoji, s.seatOf(player) < 0, r.clock.Now())
	return nil
}

// scoreSink is implemented by engines with an auxiliary score submission.
type scoreSink interface {
	SubmitScore(seat, score int) error
}

// SubmitScore records a client-reported score next to the authoritative one.
func (r *Registry) SubmitScore(sessionID, player string, score int) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sink, ok := s.Engine.(scoreSink)
	if !ok {
		return fmt.Errorf("%w: %s has no score submission", engine.ErrIllegalMove, s.Kind)
	}
	switch s.lifecycle {
	case Created:
		return ErrSessionNotStarted
	case Ended:
		return ErrSessionEnded
	}
	seat := s.seatOf(player)
	if seat < 0 {
		return ErrUnknownPlayer
	}
	return sink.SubmitScore(seat, score)
}

// SessionCount reports the number of live sessions for the health endpoint.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SweepExpired drops Ended sessions that have not been read within the
// retention window. Returns the number of sessions removed.
func (r *Registry) SweepExpired(now time.Time) int {
	retention := time.Duration(r.cfg.Server.RetentionSeconds) * time.Second

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		s.mu.Lock()
		expired := s.lifecycle == Ended && now.Sub(s.lastReadAt) > retention
		s.mu.Unlock()
		if expired {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("swept expired sessions", "count", removed)
	}
	return removed
}

// RunGC sweeps expired sessions once a minute until ctx is cancelled.
func (r *Registry) RunGC(ctx context.Context) error {
	waiter := r.clock.TickerFunc(ctx, time.Minute, func() error {
		r.SweepExpired(r.clock.Now())
		return nil
	}, "gc")
	err := waiter.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Registry) lookup(sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}
