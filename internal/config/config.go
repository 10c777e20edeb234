// Package config loads the server tuning file. The file is HCL; every value
// has a default so a missing file yields a fully playable configuration.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration.
type Config struct {
	Seed      int64           `hcl:"seed,optional"`
	Server    ServerSettings  `hcl:"server,block"`
	Arena     ArenaTuning     `hcl:"arena,block"`
	Chess     ChessTuning     `hcl:"chess,block"`
	TileMatch TileMatchTuning `hcl:"tile_match,block"`
	Arcade    ArcadeTuning    `hcl:"arcade,block"`
	Bots      BotTuning       `hcl:"bots,block"`
}

// ServerSettings contains process-level configuration. Every field can also
// be set from the environment via the CLI flags in cmd/gamecore.
type ServerSettings struct {
	ListenAddr       string `hcl:"listen_addr,optional"`
	LogLevel         string `hcl:"log_level,optional"`
	SignerURL        string `hcl:"signer_url,optional"`
	ContractRelayURL string `hcl:"contract_relay_url,optional"`
	RetentionSeconds int    `hcl:"session_retention_seconds,optional"`
	RequestTimeoutMs int    `hcl:"request_timeout_ms,optional"`
	EventBufferSize  int    `hcl:"event_buffer_size,optional"`
	SignerTimeoutMs  int    `hcl:"signer_timeout_ms,optional"`
	SignerRetries    int    `hcl:"signer_retries,optional"`
}

// ArenaTuning holds the physics constants for the arena engine.
type ArenaTuning struct {
	TickMs          int     `hcl:"tick_ms,optional"`
	InitialSize     float64 `hcl:"initial_size,optional"`
	MaxSize         float64 `hcl:"max_size,optional"`
	ExpansionStep   float64 `hcl:"expansion_step,optional"`
	StartRadius     float64 `hcl:"start_radius,optional"`
	PelletValue     float64 `hcl:"pellet_value,optional"`
	PelletCount     int     `hcl:"pellet_count,optional"`
	ExpansionPellet int     `hcl:"expansion_pellets,optional"`
	EdgeDwellMs     int     `hcl:"edge_dwell_ms,optional"`
	MaxDurationSec  int     `hcl:"max_duration_seconds,optional"`
	BaseSpeed       float64 `hcl:"base_speed,optional"`
	AbsorbRatio     float64 `hcl:"absorb_ratio,optional"`
	AbsorbDepth     float64 `hcl:"absorb_depth,optional"`
}

// ChessTuning holds the clock and side-channel settings for chess sessions.
type ChessTuning struct {
	ClockSeconds int `hcl:"clock_seconds,optional"`
	EmojiLogSize int `hcl:"emoji_log_size,optional"`
}

// TileMatchTuning holds the countdown puzzle settings.
type TileMatchTuning struct {
	CountdownSec int `hcl:"countdown_seconds,optional"`
	GridSize     int `hcl:"grid_size,optional"`
	Colors       int `hcl:"colors,optional"`
}

// ArcadeTuning holds the dodge-game settings.
type ArcadeTuning struct {
	TickMs         int     `hcl:"tick_ms,optional"`
	HazardPeriodMs int     `hcl:"hazard_period_ms,optional"`
	Lives          int     `hcl:"lives,optional"`
	DashCooldownMs int     `hcl:"dash_cooldown_ms,optional"`
	FieldWidth     float64 `hcl:"field_width,optional"`
	FieldHeight    float64 `hcl:"field_height,optional"`
	MaxDurationSec int     `hcl:"max_duration_seconds,optional"`
}

// BotTuning controls the synthetic opponents.
type BotTuning struct {
	ThinkDelayMinMs  int `hcl:"think_delay_min_ms,optional"`
	ThinkDelayMaxMs  int `hcl:"think_delay_max_ms,optional"`
	ChessDepth       int `hcl:"chess_depth,optional"`
	ConnectFourDepth int `hcl:"connect_four_depth,optional"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Seed: 0,
		Server: ServerSettings{
			ListenAddr:       ":8080",
			LogLevel:         "info",
			SignerURL:        "http://localhost:9090",
			ContractRelayURL: "http://localhost:9091",
			RetentionSeconds: 3600,
			RequestTimeoutMs: 5000,
			EventBufferSize:  1024,
			SignerTimeoutMs:  3000,
			SignerRetries:    4,
		},
		Arena: ArenaTuning{
			TickMs:          50,
			InitialSize:     1000,
			MaxSize:         3000,
			ExpansionStep:   400,
			StartRadius:     20,
			PelletValue:     100,
			PelletCount:     120,
			ExpansionPellet: 25,
			EdgeDwellMs:     2000,
			MaxDurationSec:  300,
			BaseSpeed:       220,
			AbsorbRatio:     1.10,
			AbsorbDepth:     0.4,
		},
		Chess: ChessTuning{
			ClockSeconds: 300,
			EmojiLogSize: 50,
		},
		TileMatch: TileMatchTuning{
			CountdownSec: 60,
			GridSize:     8,
			Colors:       6,
		},
		Arcade: ArcadeTuning{
			TickMs:         50,
			HazardPeriodMs: 800,
			Lives:          3,
			DashCooldownMs: 2000,
			FieldWidth:     800,
			FieldHeight:    600,
			MaxDurationSec: 180,
		},
		Bots: BotTuning{
			ThinkDelayMinMs:  200,
			ThinkDelayMaxMs:  1500,
			ChessDepth:       2,
			ConnectFourDepth: 4,
		},
	}
}

// Load reads configuration from an HCL file, applying defaults for every
// value the file omits. A missing file is not an error.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return cfg, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var loaded Config
	diags = gohcl.DecodeBody(file.Body, nil, &loaded)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	merge(cfg, &loaded)
	return cfg, nil
}

// merge copies every non-zero value from src over dst's defaults.
func merge(dst, src *Config) {
	if src.Seed != 0 {
		dst.Seed = src.Seed
	}
	mergeServer(&dst.Server, &src.Server)
	mergeArena(&dst.Arena, &src.Arena)
	if src.Chess.ClockSeconds != 0 {
		dst.Chess.ClockSeconds = src.Chess.ClockSeconds
	}
	if src.Chess.EmojiLogSize != 0 {
		dst.Chess.EmojiLogSize = src.Chess.EmojiLogSize
	}
	if src.TileMatch.CountdownSec != 0 {
		dst.TileMatch.CountdownSec = src.TileMatch.CountdownSec
	}
	if src.TileMatch.GridSize != 0 {
		dst.TileMatch.GridSize = src.TileMatch.GridSize
	}
	if src.TileMatch.Colors != 0 {
		dst.TileMatch.Colors = src.TileMatch.Colors
	}
	mergeArcade(&dst.Arcade, &src.Arcade)
	mergeBots(&dst.Bots, &src.Bots)
}

func mergeServer(dst, src *ServerSettings) {
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.SignerURL != "" {
		dst.SignerURL = src.SignerURL
	}
	if src.ContractRelayURL != "" {
		dst.ContractRelayURL = src.ContractRelayURL
	}
	if src.RetentionSeconds != 0 {
		dst.RetentionSeconds = src.RetentionSeconds
	}
	if src.RequestTimeoutMs != 0 {
		dst.RequestTimeoutMs = src.RequestTimeoutMs
	}
	if src.EventBufferSize != 0 {
		dst.EventBufferSize = src.EventBufferSize
	}
	if src.SignerTimeoutMs != 0 {
		dst.SignerTimeoutMs = src.SignerTimeoutMs
	}
	if src.SignerRetries != 0 {
		dst.SignerRetries = src.SignerRetries
	}
}

func mergeArena(dst, src *ArenaTuning) {
	if src.TickMs != 0 {
		dst.TickMs = src.TickMs
	}
	if src.InitialSize != 0 {
		dst.InitialSize = src.InitialSize
	}
	if src.MaxSize != 0 {
		dst.MaxSize = src.MaxSize
	}
	if src.ExpansionStep != 0 {
		dst.ExpansionStep = src.ExpansionStep
	}
	if src.StartRadius != 0 {
		dst.StartRadius = src.StartRadius
	}
	if src.PelletValue != 0 {
		dst.PelletValue = src.PelletValue
	}
	if src.PelletCount != 0 {
		dst.PelletCount = src.PelletCount
	}
	if src.ExpansionPellet != 0 {
		dst.ExpansionPellet = src.ExpansionPellet
	}
	if src.EdgeDwellMs != 0 {
		dst.EdgeDwellMs = src.EdgeDwellMs
	}
	if src.MaxDurationSec != 0 {
		dst.MaxDurationSec = src.MaxDurationSec
	}
	if src.BaseSpeed != 0 {
		dst.BaseSpeed = src.BaseSpeed
	}
	if src.AbsorbRatio != 0 {
		dst.AbsorbRatio = src.AbsorbRatio
	}
	if src.AbsorbDepth != 0 {
		dst.AbsorbDepth = src.AbsorbDepth
	}
}

func mergeArcade(dst, src *ArcadeTuning) {
	if src.TickMs != 0 {
		dst.TickMs = src.TickMs
	}
	if src.HazardPeriodMs != 0 {
		dst.HazardPeriodMs = src.HazardPeriodMs
	}
	if src.Lives != 0 {
		dst.Lives = src.Lives
	}
	if src.DashCooldownMs != 0 {
		dst.DashCooldownMs = src.DashCooldownMs
	}
	if src.FieldWidth != 0 {
		dst.FieldWidth = src.FieldWidth
	}
	if src.FieldHeight != 0 {
		dst.FieldHeight = src.FieldHeight
	}
	if src.MaxDurationSec != 0 {
		dst.MaxDurationSec = src.MaxDurationSec
	}
}

func mergeBots(dst, src *BotTuning) {
	if src.ThinkDelayMinMs != 0 {
		dst.ThinkDelayMinMs = src.ThinkDelayMinMs
	}
	if src.ThinkDelayMaxMs != 0 {
		dst.ThinkDelayMaxMs = src.ThinkDelayMaxMs
	}
	if src.ChessDepth != 0 {
		dst.ChessDepth = src.ChessDepth
	}
	if src.ConnectFourDepth != 0 {
		dst.ConnectFourDepth = src.ConnectFourDepth
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.RetentionSeconds <= 0 {
		return fmt.Errorf("session_retention_seconds must be positive, got %d", c.Server.RetentionSeconds)
	}
	if c.Server.EventBufferSize <= 0 {
		return fmt.Errorf("event_buffer_size must be positive, got %d", c.Server.EventBufferSize)
	}
	if c.Arena.TickMs <= 0 {
		return fmt.Errorf("arena tick_ms must be positive, got %d", c.Arena.TickMs)
	}
	if c.Arena.MaxSize < c.Arena.InitialSize {
		return fmt.Errorf("arena max_size %v must be at least initial_size %v", c.Arena.MaxSize, c.Arena.InitialSize)
	}
	if c.Arena.AbsorbRatio <= 1.0 {
		return fmt.Errorf("arena absorb_ratio must exceed 1.0, got %v", c.Arena.AbsorbRatio)
	}
	if c.Chess.ClockSeconds <= 0 {
		return fmt.Errorf("chess clock_seconds must be positive, got %d", c.Chess.ClockSeconds)
	}
	if c.TileMatch.GridSize%2 != 0 {
		return fmt.Errorf("tile_match grid_size must be even, got %d", c.TileMatch.GridSize)
	}
	if c.TileMatch.Colors < 2 {
		return fmt.Errorf("tile_match colors must be at least 2, got %d", c.TileMatch.Colors)
	}
	if c.Bots.ThinkDelayMinMs > c.Bots.ThinkDelayMaxMs {
		return fmt.Errorf("bots think_delay_min_ms %d exceeds think_delay_max_ms %d",
			c.Bots.ThinkDelayMinMs, c.Bots.ThinkDelayMaxMs)
	}
	if c.Bots.ChessDepth < 1 || c.Bots.ConnectFourDepth < 1 {
		return fmt.Errorf("bot search depths must be at least 1")
	}
	return nil
}
