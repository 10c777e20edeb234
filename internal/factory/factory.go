// Package factory constructs engines from a kind tag and the tuning config.
// It is the only place that knows every concrete engine package; the session
// registry stays generic over the engine contract.
package factory

import (
	"fmt"
	rand "math/rand/v2"

	"github.com/tourneyhub/gamecore/internal/config"
	"github.com/tourneyhub/gamecore/internal/engine"
	"github.com/tourneyhub/gamecore/internal/engine/arcade"
	"github.com/tourneyhub/gamecore/internal/engine/arena"
	"github.com/tourneyhub/gamecore/internal/engine/chess"
	"github.com/tourneyhub/gamecore/internal/engine/connect4"
	"github.com/tourneyhub/gamecore/internal/engine/tictactoe"
	"github.com/tourneyhub/gamecore/internal/engine/tilematch"
)

// New builds an engine of the given kind. seats is the session's expected
// player count; two-seat variants ignore it. rng is the session's seeded
// source, shared with the engine for reproducible state.
func New(kind engine.Kind, cfg *config.Config, seats int, rng *rand.Rand) (engine.Engine, error) {
	if seats < 1 {
		return nil, fmt.Errorf("need at least one seat, got %d", seats)
	}
	switch kind {
	case engine.KindArena:
		if seats < 2 {
			seats = 2
		}
		return arena.New(arena.Config{
			TickMs:          cfg.Arena.TickMs,
			InitialSize:     cfg.Arena.InitialSize,
			MaxSize:         cfg.Arena.MaxSize,
			ExpansionStep:   cfg.Arena.ExpansionStep,
			StartRadius:     cfg.Arena.StartRadius,
			PelletValue:     cfg.Arena.PelletValue,
			PelletCount:     cfg.Arena.PelletCount,
			ExpansionPellet: cfg.Arena.ExpansionPellet,
			EdgeDwellMs:     cfg.Arena.EdgeDwellMs,
			MaxDurationSec:  cfg.Arena.MaxDurationSec,
			BaseSpeed:       cfg.Arena.BaseSpeed,
			AbsorbRatio:     cfg.Arena.AbsorbRatio,
			AbsorbDepth:     cfg.Arena.AbsorbDepth,
		}, seats, rng), nil
	case engine.KindChess:
		return chess.New(chess.Config{
			ClockSeconds: cfg.Chess.ClockSeconds,
			EmojiLogSize: cfg.Chess.EmojiLogSize,
			BotDepth:     cfg.Bots.ChessDepth,
		}), nil
	case engine.KindConnectFour:
		return connect4.New(cfg.Bots.ConnectFourDepth), nil
	case engine.KindTicTacToe:
		return tictactoe.New(), nil
	case engine.KindTileMatch:
		if seats < 2 {
			seats = 2
		}
		return tilematch.New(tilematch.Config{
			CountdownSec: cfg.TileMatch.CountdownSec,
			GridSize:     cfg.TileMatch.GridSize,
			Colors:       cfg.TileMatch.Colors,
		}, seats, rng), nil
	case engine.KindArcade:
		if seats < 2 {
			seats = 2
		}
		return arcade.New(arcade.Config{
			TickMs:         cfg.Arcade.TickMs,
			HazardPeriodMs: cfg.Arcade.HazardPeriodMs,
			Lives:          cfg.Arcade.Lives,
			DashCooldownMs: cfg.Arcade.DashCooldownMs,
			FieldWidth:     cfg.Arcade.FieldWidth,
			FieldHeight:    cfg.Arcade.FieldHeight,
			MaxDurationSec: cfg.Arcade.MaxDurationSec,
		}, seats, rng), nil
	default:
		return nil, fmt.Errorf("unknown game kind %q", kind)
	}
}
