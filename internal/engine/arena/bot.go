package arena

import "math"

// Bot aiming runs inside the tick so synthetic cells share the humans'
// timeline. The policy hunts prey it can already absorb, flees cells that can
// absorb it, and otherwise grazes the closest pellet that is not parked next
// to a bigger cell.

const (
	preyRange   = 600.0
	fleeRange   = 250.0
	pelletDread = 120.0
)

func (e *Engine) driveBots() {
	for seat, isBot := range e.botSeats {
		if !isBot || !e.cells[seat].Alive {
			continue
		}
		x, y := e.aimFor(seat)
		c := &e.cells[seat]
		c.aimX, c.aimY = x, y
		c.hasAim = true
	}
}

func (e *Engine) aimFor(seat int) (float64, float64) {
	me := &e.cells[seat]

	// A bigger cell closing in trumps everything: run for open space.
	if hx, hy, ok := e.nearestHunter(seat); ok {
		ax := me.X + (me.X - hx)
		ay := me.Y + (me.Y - hy)
		return e.clampAim(ax, ay, me.Radius)
	}

	// Prey we can already absorb is worth more than any pellet.
	if px, py, ok := e.nearestPrey(seat); ok {
		return px, py
	}

	if px, py, ok := e.nearestSafePellet(seat); ok {
		return px, py
	}
	return e.width / 2, e.height / 2
}

func (e *Engine) nearestHunter(seat int) (float64, float64, bool) {
	me := &e.cells[seat]
	best := fleeRange
	var hx, hy float64
	found := false
	for i := range e.cells {
		c := &e.cells[i]
		if i == seat || !c.Alive || c.Radius < e.cfg.AbsorbRatio*me.Radius {
			continue
		}
		d := math.Hypot(c.X-me.X, c.Y-me.Y) - c.Radius
		if d < best {
			best = d
			hx, hy = c.X, c.Y
			found = true
		}
	}
	return hx, hy, found
}

func (e *Engine) nearestPrey(seat int) (float64, float64, bool) {
	me := &e.cells[seat]
	best := preyRange
	var px, py float64
	found := false
	for i := range e.cells {
		c := &e.cells[i]
		if i == seat || !c.Alive || me.Radius < e.cfg.AbsorbRatio*c.Radius {
			continue
		}
		d := math.Hypot(c.X-me.X, c.Y-me.Y)
		if d < best {
			best = d
			px, py = c.X, c.Y
			found = true
		}
	}
	return px, py, found
}

func (e *Engine) nearestSafePellet(seat int) (float64, float64, bool) {
	me := &e.cells[seat]
	best := math.MaxFloat64
	var px, py float64
	found := false
	for _, p := range e.pellets {
		if !e.pelletSafe(seat, p) {
			continue
		}
		d := math.Hypot(p.X-me.X, p.Y-me.Y)
		if d < best {
			best = d
			px, py = p.X, p.Y
			found = true
		}
	}
	return px, py, found
}

// pelletSafe rejects pellets sitting in the shadow of a cell big enough to
// absorb us.
func (e *Engine) pelletSafe(seat int, p Pellet) bool {
	me := &e.cells[seat]
	for i := range e.cells {
		c := &e.cells[i]
		if i == seat || !c.Alive || c.Radius < e.cfg.AbsorbRatio*me.Radius {
			continue
		}
		if math.Hypot(c.X-p.X, c.Y-p.Y) < c.Radius+pelletDread {
			return false
		}
	}
	return true
}

func (e *Engine) clampAim(x, y, r float64) (float64, float64) {
	return math.Max(r, math.Min(e.width-r, x)), math.Max(r, math.Min(e.height-r, y))
}
