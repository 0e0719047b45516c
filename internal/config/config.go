package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	StockfishPath string `yaml:"stockfish_path"`
	ModelPath     string `yaml:"model_path"`

	EngineThreads       int           `yaml:"engine_threads"`
	EngineHashMB        int           `yaml:"engine_hash_mb"`
	EngineSkillLevel    int           `yaml:"engine_skill_level"`
	EngineElo           int           `yaml:"engine_elo"`
	EngineDepth         int           `yaml:"engine_depth"`
	EngineMoveTimeMS    int           `yaml:"engine_movetime_ms"`
	EngineTopN          int           `yaml:"engine_top_n"`
	EngineSearchTimeout time.Duration `yaml:"engine_search_timeout"`

	// EngineSearchDeadline derives a per-search deadline from the limits when
	// no explicit timeout is set.
	EngineSearchDeadline bool `yaml:"engine_search_deadline"`

	HistoryCapacity int  `yaml:"history_capacity"`
	AvoidRepetition bool `yaml:"avoid_repetition"`
	PlayAsWhite     bool `yaml:"play_as_white"`

	SquareSize          int     `yaml:"square_size"`
	NormalizeSize       int     `yaml:"normalize_size"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	HTTPAddr      string `yaml:"http_addr"`
	RedisURL      string `yaml:"redis_url"`
	DatabaseURL   string `yaml:"database_url"`
	RelayURL      string `yaml:"relay_url"`
	RelayWSURL    string `yaml:"relay_ws_url"`
	RelayMode     string `yaml:"relay_mode"`
	RelayDryRun   bool   `yaml:"relay_dryrun"`
	RelayToken    string `yaml:"relay_token"`
	DebugImageDir string `yaml:"debug_image_dir"`
	MessagesDir   string `yaml:"messages_dir"`

	// Screen region the board was captured from, used to turn moves into
	// click points.
	RegionX int `yaml:"region_x"`
	RegionY int `yaml:"region_y"`
	RegionW int `yaml:"region_w"`
	RegionH int `yaml:"region_h"`
}

func defaults() *AppConfig {
	return &AppConfig{
		EngineThreads:       1,
		EngineHashMB:        64,
		EngineSkillLevel:    20,
		EngineDepth:         15,
		EngineTopN:          3,
		HistoryCapacity:     100,
		AvoidRepetition:     true,
		PlayAsWhite:         true,
		SquareSize:          64,
		ConfidenceThreshold: 60,
		HTTPAddr:            ":8090",
		RelayMode:           "auto",
	}
}

// Load builds the config from defaults, then the YAML file named by
// BOARDSIGHT_CONFIG, then environment variables.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("BOARDSIGHT_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.StockfishPath == "" {
		return nil, errors.New("STOCKFISH_PATH is required")
	}
	if cfg.ModelPath == "" {
		return nil, errors.New("MODEL_PATH is required")
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() error {
	setString(&c.StockfishPath, "STOCKFISH_PATH")
	setString(&c.ModelPath, "MODEL_PATH")
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RelayURL, "RELAY_URL")
	setString(&c.RelayWSURL, "RELAY_WS_URL")
	setString(&c.RelayMode, "RELAY_MODE")
	setString(&c.RelayToken, "RELAY_TOKEN")
	setString(&c.DebugImageDir, "DEBUG_IMAGE_DIR")
	setString(&c.MessagesDir, "MESSAGES_DIR")

	setPositiveInt(&c.EngineThreads, "ENGINE_THREADS")
	setPositiveInt(&c.EngineHashMB, "ENGINE_HASH_MB")
	setPositiveInt(&c.EngineDepth, "ENGINE_DEPTH")
	setPositiveInt(&c.EngineMoveTimeMS, "ENGINE_MOVETIME_MS")
	setPositiveInt(&c.EngineTopN, "ENGINE_TOP_N")
	setPositiveInt(&c.HistoryCapacity, "HISTORY_CAPACITY")
	setPositiveInt(&c.SquareSize, "SQUARE_SIZE")
	setPositiveInt(&c.NormalizeSize, "NORMALIZE_SIZE")

	if v := strings.TrimSpace(os.Getenv("ENGINE_SKILL_LEVEL")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 20 {
			return fmt.Errorf("ENGINE_SKILL_LEVEL must be 0-20: %q", v)
		}
		c.EngineSkillLevel = n
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_ELO")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("ENGINE_ELO must be >= 0: %q", v)
		}
		c.EngineElo = n
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_SEARCH_TIMEOUT")); strings.EqualFold(v, "auto") {
		c.EngineSearchTimeout = 0
		c.EngineSearchDeadline = true
	} else if v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ENGINE_SEARCH_TIMEOUT: %w", err)
		}
		c.EngineSearchTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("CONFIDENCE_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 100 {
			c.ConfidenceThreshold = f
		}
	}
	setBool(&c.AvoidRepetition, "AVOID_REPETITION")
	setBool(&c.PlayAsWhite, "PLAY_AS_WHITE")
	setBool(&c.RelayDryRun, "RELAY_DRYRUN")

	if v := strings.TrimSpace(os.Getenv("BOARD_REGION")); v != "" {
		parts := strings.Split(v, ",")
		if len(parts) != 4 {
			return fmt.Errorf("BOARD_REGION must be x,y,w,h: %q", v)
		}
		vals := make([]int, 4)
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return fmt.Errorf("BOARD_REGION: %w", err)
			}
			vals[i] = n
		}
		c.RegionX, c.RegionY, c.RegionW, c.RegionH = vals[0], vals[1], vals[2], vals[3]
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setPositiveInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
