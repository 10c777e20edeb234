package arcade

import (
	"math"
	"time"
)

// Bot steering runs inside the tick so synthetic players react on the same
// timeline as humans. The policy projects every hazard forward half a second
// and accelerates away from the nearest projected threat; when threats close
// in from all sides it dashes through the thinnest one.

const threatHorizon = 0.5 // seconds

func (e *Engine) driveBots(now time.Time) {
	for seat, isBot := range e.botSeats {
		if !isBot || !e.players[seat].Alive {
			continue
		}
		mv := e.steer(seat, now)
		e.applyInput(&e.players[seat], mv, now)
	}
}

func (e *Engine) steer(seat int, now time.Time) MovePayload {
	p := &e.players[seat]

	var (
		nearest     *Hazard
		nearestDist = math.MaxFloat64
		threats     int
	)
	for i := range e.hazards {
		h := &e.hazards[i]
		// Project the hazard to its closest approach within the horizon.
		fx := h.X + h.VX*threatHorizon
		fy := h.Y + h.VY*threatHorizon
		d := segmentPointDist(h.X, h.Y, fx, fy, p.X, p.Y) - h.R - playerRadius
		if d < nearestDist {
			nearestDist = d
			nearest = h
		}
		if d < 3*playerRadius {
			threats++
		}
	}

	if nearest == nil || nearestDist > 8*playerRadius {
		// Nothing close: drift back toward the field centre.
		return MovePayload{
			AX: (e.cfg.FieldWidth/2 - p.X) * 0.5,
			AY: (e.cfg.FieldHeight/2 - p.Y) * 0.5,
		}
	}

	// Accelerate directly away from the threat, biased toward open field so
	// the bot does not pin itself against a wall.
	awayX := p.X - nearest.X
	awayY := p.Y - nearest.Y
	if awayX == 0 && awayY == 0 {
		awayX = 1
	}
	n := math.Hypot(awayX, awayY)
	ax := awayX / n * maxAccel
	ay := awayY / n * maxAccel
	ax += (e.cfg.FieldWidth/2 - p.X) * 0.3
	ay += (e.cfg.FieldHeight/2 - p.Y) * 0.3

	// Surrounded: burn the dash to break out.
	dash := threats >= 3 && !now.Before(p.dashReadyAt)
	return MovePayload{AX: ax, AY: ay, Dash: dash}
}

// segmentPointDist returns the distance from point (px,py) to segment
// (x1,y1)-(x2,y2).
func segmentPointDist(x1, y1, x2, y2, px, py float64) float64 {
	dx, dy := x2-x1, y2-y1
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(px-x1, py-y1)
	}
	t := ((px-x1)*dx + (py-y1)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(px-(x1+t*dx), py-(y1+t*dy))
}
