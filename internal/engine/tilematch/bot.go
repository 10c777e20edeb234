package tilematch

import (
	"encoding/json"
	"fmt"

	"github.com/tourneyhub/gamecore/internal/engine"
)

// BotMove scans for any unmatched same-colour pair and submits it. The scan
// walks tile ids in order, so bot play is deterministic for a given grid.
func (e *Engine) BotMove(seat int) (json.RawMessage, error) {
	if e.over {
		return nil, engine.ErrGameOver
	}

	firstByColor := make(map[int]int)
	for _, tile := range e.tiles {
		if tile.Matched {
			continue
		}
		if other, ok := firstByColor[tile.Color]; ok {
			return json.Marshal(MovePayload{A: other, B: tile.ID})
		}
		firstByColor[tile.Color] = tile.ID
	}
	return nil, fmt.Errorf("%w: no pair available", engine.ErrIllegalMove)
}
