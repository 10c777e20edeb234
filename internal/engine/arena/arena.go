// Package arena implements the real-time growth and absorption game: cells
// chase pellets and each other, the biggest cell standing wins, and dwelling
// on the outer wall pushes the arena wider.
package arena

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
	TickMs          int
	InitialSize     float64
	MaxSize         float64
	ExpansionStep   float64
	StartRadius     float64
	PelletValue     float64
	PelletCount     int
	ExpansionPellet int
	EdgeDwellMs     int
	MaxDurationSec  int
	BaseSpeed       float64
	AbsorbRatio     float64 // larger must be at least this times the smaller
	AbsorbDepth     float64 // fraction of the smaller radius that must overlap
}

const (
	pelletRadius = 4.0
	minSpeed     = 40.0
	steerGain    = 5.0
)

// Cell is one seat's blob.
type Cell struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Radius float64 `json:"radius"`
	Alive  bool    `json:"alive"`

	aimX, aimY float64
	hasAim     bool
	lastAimAt  time.Time
	edgeSince  time.Time
	onEdge     bool
	diedAt     time.Time
}

// Pellet is a consumable dot.
type Pellet struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R float64 `json:"r"`
}

// Expansion records one arena growth step.
type Expansion struct {
	AtMs   int64   `json:"at_ms"` // monotonic ms from session start
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Engine holds one arena instance.
type Engine struct {
	cfg      Config
	rng      *rand.Rand
	seats    int
	width    float64
	height   float64
	cells    []Cell
	pellets  []Pellet
	history  []Expansion
	botSeats []bool

	started   bool
	startedAt time.Time
	lastTick  time.Time
	over      bool
	reason    string
	winner    int
}

// MovePayload is the JSON body of an aim submission: the cursor target.
type MovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// View is the state projection returned to pollers.
type View struct {
	Width      float64     `json:"width"`
	Height     float64     `json:"height"`
	Cells      []Cell      `json:"cells"`
	Pellets    []Pellet    `json:"pellets"`
	Expansions []Expansion `json:"expansions"`
	GameOver   bool        `json:"game_over"`
	Winner     int         `json:"winner"`
	Reason     string      `json:"reason,omitempty"`
}

// New creates an arena with cells on a ring and pellets scattered from the
// session RNG.
func New(cfg Config, seats int, rng *rand.Rand) *Engine {
	e := &Engine{
		cfg:      cfg,
		rng:      rng,
		seats:    seats,
		width:    cfg.InitialSize,
		height:   cfg.InitialSize,
		cells:    make([]Cell, seats),
		botSeats: make([]bool, seats),
		winner:   -1,
	}
	cx, cy := e.width/2, e.height/2
	ringR := cfg.InitialSize / 3
	for i := range e.cells {
		angle := 2 * math.Pi * float64(i) / float64(seats)
		e.cells[i] = Cell{
			X:      cx + ringR*math.Cos(angle),
			Y:      cy + ringR*math.Sin(angle),
			Radius: cfg.StartRadius,
			Alive:  true,
		}
	}
	for i := 0; i < cfg.PelletCount; i++ {
		e.pellets = append(e.pellets, Pellet{
			X: rng.Float64() * e.width,
			Y: rng.Float64() * e.height,
			R: pelletRadius,
		})
	}
	return e
}

func (e *Engine) Kind() engine.Kind      { return engine.KindArena }
func (e *Engine) SeatCount() int         { return e.seats }
func (e *Engine) Over() bool             { return e.over }
func (e *Engine) TerminalReason() string { return e.reason }

func (e *Engine) Roles() []string { return make([]string, e.seats) }

func (e *Engine) TickPeriod() time.Duration {
	return time.Duration(e.cfg.TickMs) * time.Millisecond
}

// SetBotSeats marks which seats are bot-driven.
func (e *Engine) SetBotSeats(bots []bool) {
	copy(e.botSeats, bots)
}

// Start anchors the game clock.
func (e *Engine) Start(now time.Time) {
	e.started = true
	e.startedAt = now
	e.lastTick = now
}

// ApplyMove records a seat's cursor aim. Aims are rate-limited to one per
// tick window; extra submissions and aims for dead cells are ignored rather
// than rejected, matching the fire-and-forget cursor stream.
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
	if math.IsNaN(mv.X) || math.IsNaN(mv.Y) || math.IsInf(mv.X, 0) || math.IsInf(mv.Y, 0) {
		return fmt.Errorf("%w: non-finite aim", engine.ErrIllegalMove)
	}

	c := &e.cells[seat]
	if !c.Alive {
		return nil
	}
	window := time.Duration(e.cfg.TickMs) * time.Millisecond
	if c.hasAim && now.Sub(c.lastAimAt) < window {
		return nil
	}
	c.aimX, c.aimY = mv.X, mv.Y
	c.hasAim = true
	c.lastAimAt = now
	return nil
}

// maxSpeedFor shrinks top speed as the cell grows.
func (e *Engine) maxSpeedFor(r float64) float64 {
	s := e.cfg.BaseSpeed * math.Sqrt(e.cfg.StartRadius/r)
	return math.Max(s, minSpeed)
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

	e.driveBots()
	e.integrate(now, dt)
	e.eatPellets()
	e.absorb(now)
	e.expand(now)
	e.settle(now)
}

func (e *Engine) integrate(now time.Time, dt float64) {
	for i := range e.cells {
		c := &e.cells[i]
		if !c.Alive {
			continue
		}
		// Steer toward the aim point, decaying toward the target velocity.
		var tvx, tvy float64
		if c.hasAim {
			dx, dy := c.aimX-c.X, c.aimY-c.Y
			dist := math.Hypot(dx, dy)
			if dist > 1 {
				speed := e.maxSpeedFor(c.Radius)
				tvx, tvy = dx/dist*speed, dy/dist*speed
			}
		}
		blend := math.Min(1, steerGain*dt)
		c.VX += (tvx - c.VX) * blend
		c.VY += (tvy - c.VY) * blend
		c.X += c.VX * dt
		c.Y += c.VY * dt

		// Clamp to the arena and track wall dwell for expansion.
		touching := false
		if c.X < c.Radius {
			c.X = c.Radius
			touching = true
		}
		if c.X > e.width-c.Radius {
			c.X = e.width - c.Radius
			touching = true
		}
		if c.Y < c.Radius {
			c.Y = c.Radius
			touching = true
		}
		if c.Y > e.height-c.Radius {
			c.Y = e.height - c.Radius
			touching = true
		}
		if touching {
			if !c.onEdge {
				c.onEdge = true
				c.edgeSince = now
			}
		} else {
			c.onEdge = false
		}
	}
}

func (e *Engine) eatPellets() {
	kept := e.pellets[:0]
	for _, p := range e.pellets {
		eaten := false
		for i := range e.cells {
			c := &e.cells[i]
			if !c.Alive {
				continue
			}
			if math.Hypot(c.X-p.X, c.Y-p.Y) <= c.Radius {
				c.Radius = math.Sqrt(c.Radius*c.Radius + e.cfg.PelletValue)
				eaten = true
				break
			}
		}
		if !eaten {
			kept = append(kept, p)
		}
	}
	e.pellets = kept
}

// absorb applies the big-eats-small rule: the larger cell must have a clear
// size advantage and overlap deep enough to swallow.
func (e *Engine) absorb(now time.Time) {
	for i := range e.cells {
		for j := i + 1; j < len(e.cells); j++ {
			a, b := &e.cells[i], &e.cells[j]
			if !a.Alive || !b.Alive {
				continue
			}
			big, small := a, b
			if small.Radius > big.Radius {
				big, small = small, big
			}
			if big.Radius < e.cfg.AbsorbRatio*small.Radius {
				continue
			}
			dist := math.Hypot(big.X-small.X, big.Y-small.Y)
			if dist > big.Radius-small.Radius*e.cfg.AbsorbDepth {
				continue
			}
			big.Radius = math.Sqrt(big.Radius*big.Radius + small.Radius*small.Radius)
			small.Alive = false
			small.diedAt = now
		}
	}
}

// expand grows the arena when a cell has pressed the wall long enough,
// sprinkling pellets into the fresh band.
func (e *Engine) expand(now time.Time) {
	if e.width >= e.cfg.MaxSize && e.height >= e.cfg.MaxSize {
		return
	}
	dwell := time.Duration(e.cfg.EdgeDwellMs) * time.Millisecond
	triggered := false
	for i := range e.cells {
		c := &e.cells[i]
		if c.Alive && c.onEdge && now.Sub(c.edgeSince) >= dwell {
			triggered = true
			c.edgeSince = now // restart the dwell for the next step
		}
	}
	if !triggered {
		return
	}

	oldW, oldH := e.width, e.height
	e.width = math.Min(e.width+e.cfg.ExpansionStep, e.cfg.MaxSize)
	e.height = math.Min(e.height+e.cfg.ExpansionStep, e.cfg.MaxSize)

	for i := 0; i < e.cfg.ExpansionPellet; i++ {
		// Place pellets in the newly added L-shaped band.
		x := e.rng.Float64() * e.width
		y := e.rng.Float64() * e.height
		if x < oldW && y < oldH {
			if e.rng.IntN(2) == 0 {
				x = oldW + e.rng.Float64()*(e.width-oldW)
			} else {
				y = oldH + e.rng.Float64()*(e.height-oldH)
			}
		}
		e.pellets = append(e.pellets, Pellet{X: x, Y: y, R: pelletRadius})
	}

	e.history = append(e.history, Expansion{
		AtMs:   now.Sub(e.startedAt).Milliseconds(),
		Width:  e.width,
		Height: e.height,
	})
}

func (e *Engine) settle(now time.Time) {
	alive := 0
	last := -1
	for i := range e.cells {
		if e.cells[i].Alive {
			alive++
			last = i
		}
	}
	switch {
	case alive <= 1 && e.seats > 1:
		e.over = true
		e.reason = "last_cell"
		e.winner = last
	case now.Sub(e.startedAt) >= time.Duration(e.cfg.MaxDurationSec)*time.Second:
		e.over = true
		e.reason = "timeout"
		if r := e.Ranking(); len(r) > 0 {
			e.winner = r[0]
		}
	}
}

// Ranking orders living cells by radius, then dead cells by time of death,
// latest first.
func (e *Engine) Ranking() []int {
	order := make([]int, e.seats)
	for i := range order {
		order[i] = i
	}
	less := func(a, b int) bool {
		ca, cb := &e.cells[a], &e.cells[b]
		if ca.Alive != cb.Alive {
			return ca.Alive
		}
		if ca.Alive {
			if ca.Radius != cb.Radius {
				return ca.Radius > cb.Radius
			}
			return a < b
		}
		if !ca.diedAt.Equal(cb.diedAt) {
			return ca.diedAt.After(cb.diedAt)
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
	cells := make([]Cell, len(e.cells))
	copy(cells, e.cells)
	pellets := make([]Pellet, len(e.pellets))
	copy(pellets, e.pellets)
	history := make([]Expansion, len(e.history))
	copy(history, e.history)
	return View{
		Width:      e.width,
		Height:     e.height,
		Cells:      cells,
		Pellets:    pellets,
		Expansions: history,
		GameOver:   e.over,
		Winner:     e.winner,
		Reason:     e.reason,
	}
}
