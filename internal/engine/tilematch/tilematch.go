// Package tilematch implements the 60-second colour-pair puzzle. All seats
// play concurrently against the countdown; ranking is by score.
package tilematch

import (
	"encoding/json"
	"fmt"
	rand "math/rand/v2"
	"time"

	"github.com/tourneyhub/gamecore/internal/engine"
)

// Config carries the tuning values the engine needs.
type Config struct {
	CountdownSec int
	GridSize     int
	Colors       int
}

// Tile is one cell of the grid.
type Tile struct {
	ID      int  `json:"id"`
	Color   int  `json:"color"`
	Matched bool `json:"matched"`
	// MatchedBy is the seat that cleared the tile, -1 while unmatched.
	MatchedBy int `json:"matched_by"`
}

// PlayerState tracks one seat's progress.
type PlayerState struct {
	Score         int `json:"score"`
	Combo         int `json:"combo"`
	TilesCleared  int `json:"tiles_cleared"`
	ReportedScore int `json:"reported_score"`
}

// botPairEvery is the cadence at which a bot seat clears a pair, slow
// enough that an attentive human outpaces it.
const botPairEvery = 1500 * time.Millisecond

// Engine holds one puzzle instance.
type Engine struct {
	cfg      Config
	seats    int
	tiles    []Tile
	players  []PlayerState
	started  bool
	deadline time.Time
	over     bool
	reason   string
	matched  int

	botSeats  []bool
	nextBotAt []time.Time
}

// MovePayload is the JSON body of a tile-match move: a candidate pair.
type MovePayload struct {
	A int `json:"a"`
	B int `json:"b"`
}

// View is the state projection returned to pollers.
type View struct {
	GridSize    int           `json:"grid_size"`
	Tiles       []Tile        `json:"tiles"`
	Players     []PlayerState `json:"players"`
	RemainingMs int64         `json:"remaining_ms"`
	GameOver    bool          `json:"game_over"`
	Reason      string        `json:"reason,omitempty"`
}

// New builds a grid from the session RNG. Tiles are generated in colour
// pairs so the board is always fully clearable.
func New(cfg Config, seats int, rng *rand.Rand) *Engine {
	n := cfg.GridSize * cfg.GridSize
	colors := make([]int, 0, n)
	for len(colors) < n {
		c := rng.IntN(cfg.Colors)
		colors = append(colors, c, c)
	}
	colors = colors[:n]
	rng.Shuffle(n, func(i, j int) {
		colors[i], colors[j] = colors[j], colors[i]
	})

	tiles := make([]Tile, n)
	for i := range tiles {
		tiles[i] = Tile{ID: i, Color: colors[i], MatchedBy: -1}
	}
	return &Engine{
		cfg:     cfg,
		seats:   seats,
		tiles:   tiles,
		players: make([]PlayerState, seats),
	}
}

func (e *Engine) Kind() engine.Kind      { return engine.KindTileMatch }
func (e *Engine) SeatCount() int         { return e.seats }
func (e *Engine) Over() bool             { return e.over }
func (e *Engine) TerminalReason() string { return e.reason }

func (e *Engine) Roles() []string {
	return make([]string, e.seats)
}

// TickPeriod drives the countdown check.
func (e *Engine) TickPeriod() time.Duration { return 250 * time.Millisecond }

// SetBotSeats marks the seats the engine plays itself during Tick.
func (e *Engine) SetBotSeats(bots []bool) {
	e.botSeats = make([]bool, e.seats)
	copy(e.botSeats, bots)
}

// Start anchors the countdown and staggers the first bot submissions.
func (e *Engine) Start(now time.Time) {
	e.started = true
	e.deadline = now.Add(time.Duration(e.cfg.CountdownSec) * time.Second)
	e.nextBotAt = make([]time.Time, e.seats)
	for seat, isBot := range e.botSeats {
		if isBot {
			e.nextBotAt[seat] = now.Add(botPairEvery)
		}
	}
}

// Tick ends the game when the countdown expires and plays the bot seats.
func (e *Engine) Tick(now time.Time) {
	if e.over || !e.started {
		return
	}
	if !now.Before(e.deadline) {
		e.over = true
		e.reason = "countdown"
		return
	}
	e.driveBots(now)
}

// driveBots submits one pair per due bot seat. Bots go through ApplyMove
// like everyone else; they never bypass the pair rules.
func (e *Engine) driveBots(now time.Time) {
	for seat, isBot := range e.botSeats {
		if !isBot || e.over || now.Before(e.nextBotAt[seat]) {
			continue
		}
		payload, err := e.BotMove(seat)
		if err != nil {
			continue
		}
		_ = e.ApplyMove(seat, payload, now)
		e.nextBotAt[seat] = now.Add(botPairEvery)
	}
}

// ApplyMove submits a candidate pair. A mismatched pair is a legal move that
// resets the seat's combo; only malformed pairs are rejected.
func (e *Engine) ApplyMove(seat int, payload json.RawMessage, now time.Time) error {
	if e.over {
		return engine.ErrGameOver
	}
	if seat < 0 || seat >= e.seats {
		return engine.ErrUnknownSeat
	}

	var mv MovePayload
	if err := json.Unmarshal(payload, &mv); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrIllegalMove, err)
	}
	if mv.A == mv.B {
		return fmt.Errorf("%w: pair must name two distinct tiles", engine.ErrIllegalMove)
	}
	if !e.validTile(mv.A) || !e.validTile(mv.B) {
		return fmt.Errorf("%w: tile id out of range", engine.ErrIllegalMove)
	}

	a, b := &e.tiles[mv.A], &e.tiles[mv.B]
	if a.Matched || b.Matched {
		return fmt.Errorf("%w: tile already matched", engine.ErrIllegalMove)
	}

	p := &e.players[seat]
	if a.Color != b.Color {
		p.Combo = 0
		return nil
	}

	a.Matched, b.Matched = true, true
	a.MatchedBy, b.MatchedBy = seat, seat
	e.matched += 2
	p.Score += 10 * (p.Combo + 1)
	p.Combo++
	p.TilesCleared += 2

	if e.matched == len(e.tiles) {
		e.over = true
		e.reason = "board_cleared"
	}
	return nil
}

// SubmitScore records a client-reported score. The server-computed score
// stays authoritative; the report is kept for UI reconciliation only.
func (e *Engine) SubmitScore(seat, score int) error {
	if seat < 0 || seat >= e.seats {
		return engine.ErrUnknownSeat
	}
	e.players[seat].ReportedScore = score
	return nil
}

func (e *Engine) validTile(id int) bool {
	return id >= 0 && id < len(e.tiles)
}

// Ranking orders seats by score, ties broken by seat order.
func (e *Engine) Ranking() []int {
	order := make([]int, e.seats)
	for i := range order {
		order[i] = i
	}
	// Insertion sort keeps equal scores in seat order.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && e.players[order[j]].Score > e.players[order[j-1]].Score; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	return order
}

func (e *Engine) View(now time.Time) any {
	tiles := make([]Tile, len(e.tiles))
	copy(tiles, e.tiles)
	players := make([]PlayerState, len(e.players))
	copy(players, e.players)

	var remaining int64
	if e.started && !e.over {
		if d := e.deadline.Sub(now); d > 0 {
			remaining = d.Milliseconds()
		}
	}
	return View{
		GridSize:    e.cfg.GridSize,
		Tiles:       tiles,
		Players:     players,
		RemainingMs: remaining,
		GameOver:    e.over,
		Reason:      e.reason,
	}
}
