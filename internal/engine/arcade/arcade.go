// Package arcade implements the dodge game: hazards sweep across a bounded
// field, players steer with acceleration inputs and a dash burst, last
// survivor wins.
package arcade

import (
	"encoding/json"
	"fmt"
	"math"
	rand "math/rand/v2"
	"time"

	"github.com/tourneyhub/gamecore/internal/engine"
)

// Config carries the tuning values the engine needs.
type Config struct {
	TickMs         int
	HazardPeriodMs int
	Lives          int
	DashCooldownMs int
	FieldWidth     float64
	FieldHeight    float64
	MaxDurationSec int
}

const (
	playerRadius = 12.0
	maxSpeed     = 260.0
	maxAccel     = 400.0
	dashBoost    = 3.0
	invulnWindow = time.Second
)

// Hazard is a moving obstacle.
type Hazard struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
	R  float64 `json:"r"`
}

// Player is one seat's avatar.
type Player struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	Lives int     `json:"lives"`
	Alive bool    `json:"alive"`

	ax, ay       float64
	dashReadyAt  time.Time
	invulnUntil  time.Time
	eliminatedAt time.Time
}

// Engine holds one arcade game.
type Engine struct {
	cfg       Config
	rng       *rand.Rand
	seats     int
	players   []Player
	hazards   []Hazard
	botSeats  []bool
	started   bool
	startedAt time.Time
	lastTick  time.Time
	nextSpawn time.Time
	nextID    int
	over      bool
	reason    string
	winner    int
}

// MovePayload is the JSON body of an arcade input.
type MovePayload struct {
	AX   float64 `json:"ax"`
	AY   float64 `json:"ay"`
	Dash bool    `json:"dash"`
}

// View is the state projection returned to pollers.
type View struct {
	FieldWidth  float64  `json:"field_width"`
	FieldHeight float64  `json:"field_height"`
	Players     []Player `json:"players"`
	Hazards     []Hazard `json:"hazards"`
	GameOver    bool     `json:"game_over"`
	Winner      int      `json:"winner"`
	Reason      string   `json:"reason,omitempty"`
}

// New creates an arcade game with players spread along the field centre.
func New(cfg Config, seats int, rng *rand.Rand) *Engine {
	e := &Engine{
		cfg:      cfg,
		rng:      rng,
		seats:    seats,
		players:  make([]Player, seats),
		botSeats: make([]bool, seats),
		winner:   -1,
	}
	for i := range e.players {
		frac := (float64(i) + 1) / (float64(seats) + 1)
		e.players[i] = Player{
			X:     cfg.FieldWidth * frac,
			Y:     cfg.FieldHeight / 2,
			Lives: cfg.Lives,
			Alive: true,
		}
	}
	return e
}

func (e *Engine) Kind() engine.Kind      { return engine.KindArcade }
func (e *Engine) SeatCount() int         { return e.seats }
func (e *Engine) Over() bool             { return e.over }
func (e *Engine) TerminalReason() string { return e.reason }

func (e *Engine) Roles() []string { return make([]string, e.seats) }

func (e *Engine) TickPeriod() time.Duration {
	return time.Duration(e.cfg.TickMs) * time.Millisecond
}

// SetBotSeats marks which seats are bot-driven; their inputs are produced by
// the steering policy inside Tick.
func (e *Engine) SetBotSeats(bots []bool) {
	copy(e.botSeats, bots)
}

// Start anchors the game clock and the first hazard spawn.
func (e *Engine) Start(now time.Time) {
	e.started = true
	e.startedAt = now
	e.lastTick = now
	e.nextSpawn = now.Add(time.Duration(e.cfg.HazardPeriodMs) * time.Millisecond)
}

// ApplyMove records a seat's acceleration input and optional dash.
func (e *Engine) ApplyMove(seat int, payload json.RawMessage, now time.Time) error {
	if e.over {
		return engine.ErrGameOver
	}
	if seat < 0 || seat >= e.seats {
		return engine.ErrUnknownSeat
	}
	p := &e.players[seat]
	if !p.Alive {
		return fmt.Errorf("%w: player eliminated", engine.ErrIllegalMove)
	}

	var mv MovePayload
	if err := json.Unmarshal(payload, &mv); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrIllegalMove, err)
	}
	if math.IsNaN(mv.AX) || math.IsNaN(mv.AY) || math.IsInf(mv.AX, 0) || math.IsInf(mv.AY, 0) {
		return fmt.Errorf("%w: non-finite acceleration", engine.ErrIllegalMove)
	}

	e.applyInput(p, mv, now)
	return nil
}

func (e *Engine) applyInput(p *Player, mv MovePayload, now time.Time) {
	ax, ay := clampVec(mv.AX, mv.AY, maxAccel)
	p.ax, p.ay = ax, ay

	if mv.Dash && !now.Before(p.dashReadyAt) {
		// Dash is a burst along the current heading; a standing player
		// dashes along the input direction instead.
		dx, dy := p.VX, p.VY
		if dx == 0 && dy == 0 {
			dx, dy = ax, ay
		}
		if dx != 0 || dy != 0 {
			n := math.Hypot(dx, dy)
			p.VX = dx / n * maxSpeed * dashBoost
			p.VY = dy / n * maxSpeed * dashBoost
			p.dashReadyAt = now.Add(time.Duration(e.cfg.DashCooldownMs) * time.Millisecond)
		}
	}
}

// Tick advances the simulation by one frame.
func (e *Engine) Tick(now time.Time) {
	if e.over || !e.started {
		return
	}
	dt := now.Sub(e.lastTick).Seconds()
	if dt <= 0 {
		return
	}
	e.lastTick = now

	e.driveBots(now)
	e.spawnHazards(now)
	e.integrate(now, dt)
	e.collide(now)
	e.settle(now)
}

func (e *Engine) spawnHazards(now time.Time) {
	period := time.Duration(e.cfg.HazardPeriodMs) * time.Millisecond
	for !now.Before(e.nextSpawn) {
		e.hazards = append(e.hazards, e.makeHazard())
		e.nextSpawn = e.nextSpawn.Add(period)
	}
}

// makeHazard spawns at a random edge heading across the field.
func (e *Engine) makeHazard() Hazard {
	e.nextID++
	h := Hazard{
		ID: e.nextID,
		R:  10 + e.rng.Float64()*8,
	}
	speed := 120 + e.rng.Float64()*120
	switch e.rng.IntN(4) {
	case 0: // left edge
		h.X, h.Y = -h.R, e.rng.Float64()*e.cfg.FieldHeight
		h.VX, h.VY = speed, (e.rng.Float64()-0.5)*speed
	case 1: // right edge
		h.X, h.Y = e.cfg.FieldWidth+h.R, e.rng.Float64()*e.cfg.FieldHeight
		h.VX, h.VY = -speed, (e.rng.Float64()-0.5)*speed
	case 2: // top edge
		h.X, h.Y = e.rng.Float64()*e.cfg.FieldWidth, -h.R
		h.VX, h.VY = (e.rng.Float64()-0.5)*speed, speed
	default: // bottom edge
		h.X, h.Y = e.rng.Float64()*e.cfg.FieldWidth, e.cfg.FieldHeight+h.R
		h.VX, h.VY = (e.rng.Float64()-0.5)*speed, -speed
	}
	return h
}

func (e *Engine) integrate(now time.Time, dt float64) {
	for i := range e.players {
		p := &e.players[i]
		if !p.Alive {
			continue
		}
		p.VX += p.ax * dt
		p.VY += p.ay * dt
		// Dash speed decays back under the cap.
		p.VX, p.VY = decaySpeed(p.VX, p.VY, dt)
		p.X = clamp(p.X+p.VX*dt, playerRadius, e.cfg.FieldWidth-playerRadius)
		p.Y = clamp(p.Y+p.VY*dt, playerRadius, e.cfg.FieldHeight-playerRadius)
	}

	margin := 4 * playerRadius
	kept := e.hazards[:0]
	for _, h := range e.hazards {
		h.X += h.VX * dt
		h.Y += h.VY * dt
		if h.X < -margin || h.X > e.cfg.FieldWidth+margin ||
			h.Y < -margin || h.Y > e.cfg.FieldHeight+margin {
			continue
		}
		kept = append(kept, h)
	}
	e.hazards = kept
}

func (e *Engine) collide(now time.Time) {
	for i := range e.players {
		p := &e.players[i]
		if !p.Alive || now.Before(p.invulnUntil) {
			continue
		}
		for _, h := range e.hazards {
			if math.Hypot(p.X-h.X, p.Y-h.Y) > playerRadius+h.R {
				continue
			}
			p.Lives--
			p.invulnUntil = now.Add(invulnWindow)
			if p.Lives <= 0 {
				p.Alive = false
				p.eliminatedAt = now
			}
			break
		}
	}
}

func (e *Engine) settle(now time.Time) {
	alive := 0
	last := -1
	for i := range e.players {
		if e.players[i].Alive {
			alive++
			last = i
		}
	}
	switch {
	case alive == 0:
		e.over = true
		e.reason = "all_eliminated"
	case alive == 1 && e.seats > 1:
		e.over = true
		e.reason = "last_survivor"
		e.winner = last
	case now.Sub(e.startedAt) >= time.Duration(e.cfg.MaxDurationSec)*time.Second:
		e.over = true
		e.reason = "timeout"
	}
}

// Ranking: survivors first by lives (winner on top), then eliminated seats
// by elimination time, latest first.
func (e *Engine) Ranking() []int {
	order := make([]int, e.seats)
	for i := range order {
		order[i] = i
	}
	less := func(a, b int) bool {
		pa, pb := &e.players[a], &e.players[b]
		if pa.Alive != pb.Alive {
			return pa.Alive
		}
		if pa.Alive {
			if pa.Lives != pb.Lives {
				return pa.Lives > pb.Lives
			}
			return a < b
		}
		if !pa.eliminatedAt.Equal(pb.eliminatedAt) {
			return pa.eliminatedAt.After(pb.eliminatedAt)
		}
		return a < b
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && less(order[j], order[j-1]); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	return order
}

func (e *Engine) View(now time.Time) any {
	players := make([]Player, len(e.players))
	copy(players, e.players)
	hazards := make([]Hazard, len(e.hazards))
	copy(hazards, e.hazards)
	return View{
		FieldWidth:  e.cfg.FieldWidth,
		FieldHeight: e.cfg.FieldHeight,
		Players:     players,
		Hazards:     hazards,
		GameOver:    e.over,
		Winner:      e.winner,
		Reason:      e.reason,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampVec(x, y, max float64) (float64, float64) {
	n := math.Hypot(x, y)
	if n <= max || n == 0 {
		return x, y
	}
	return x / n * max, y / n * max
}

// decaySpeed lets dash velocity bleed back toward the normal cap.
func decaySpeed(vx, vy, dt float64) (float64, float64) {
	n := math.Hypot(vx, vy)
	if n <= maxSpeed {
		return vx, vy
	}
	target := n - (n-maxSpeed)*math.Min(1, 4*dt)
	return vx / n * target, vy / n * target
}
