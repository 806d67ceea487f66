package config

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/thesyncim/mediagrid"
)

// Config is the runtime configuration of the mediagrid command.
type Config struct {
	LogLevel  string
	LogFormat string
	Listen    string

	Width        int
	Height       int
	FrameRate    int
	MaxTiles     int
	BigTileShare float64
	TileGap      int
	BigTileGap   int

	Background     string
	HighlightColor string
	TileBackground string
	TitleFontFile  string
	TitleFontSize  float64

	SampleRate int
	Channels   int

	Quality int

	// Output is where recordings go: a file path, rtp://host:port or
	// rtmp://host/app/name.
	Output string
}

type fileConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	Listen    string `toml:"listen"`

	Canvas struct {
		Width        int     `toml:"width"`
		Height       int     `toml:"height"`
		FrameRate    int     `toml:"frame_rate"`
		MaxTiles     int     `toml:"max_tiles"`
		BigTileShare float64 `toml:"big_tile_share"`
		TileGap      *int    `toml:"tile_gap"`
		BigTileGap   *int    `toml:"big_tile_gap"`
		Background   string  `toml:"background"`
	} `toml:"canvas"`

	Style struct {
		HighlightColor string  `toml:"highlight_color"`
		TileBackground string  `toml:"tile_background"`
		TitleFontFile  string  `toml:"title_font_file"`
		TitleFontSize  float64 `toml:"title_font_size"`
	} `toml:"style"`

	Audio struct {
		SampleRate int `toml:"sample_rate"`
		Channels   int `toml:"channels"`
	} `toml:"audio"`

	Recording struct {
		Quality int    `toml:"quality"`
		Output  string `toml:"output"`
	} `toml:"recording"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cc := mediagrid.DefaultCompositorConfig()
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Listen:         ":8080",
		Width:          cc.Width,
		Height:         cc.Height,
		FrameRate:      cc.FrameRate,
		BigTileShare:   cc.BigTileShare,
		TileGap:        cc.TileGap,
		BigTileGap:     cc.BigTileGap,
		Background:     "#000000",
		HighlightColor: "#0af1f1",
		TileBackground: "#808080",
		TitleFontSize:  cc.Style.TitleFontSize,
		SampleRate:     cc.Mixer.SampleRate,
		Channels:       cc.Mixer.Channels,
		Quality:        mediagrid.DefaultEncoderConfig().Quality,
		Output:         "recording.mgc",
	}
}

// Load builds the configuration from defaults, the TOML config file, a .env
// file in the working directory and MEDIAGRID_* environment variables, in
// increasing order of precedence. path overrides the config file location;
// when empty the XDG location is used if it exists.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = configFilePath()
	}
	if path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		applyFile(cfg, &fc)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyFile(cfg *Config, fc *fileConfig) {
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	setString(&cfg.Listen, fc.Listen)

	setInt(&cfg.Width, fc.Canvas.Width)
	setInt(&cfg.Height, fc.Canvas.Height)
	setInt(&cfg.FrameRate, fc.Canvas.FrameRate)
	setInt(&cfg.MaxTiles, fc.Canvas.MaxTiles)
	if fc.Canvas.BigTileShare > 0 {
		cfg.BigTileShare = fc.Canvas.BigTileShare
	}
	if fc.Canvas.TileGap != nil {
		cfg.TileGap = *fc.Canvas.TileGap
	}
	if fc.Canvas.BigTileGap != nil {
		cfg.BigTileGap = *fc.Canvas.BigTileGap
	}
	setString(&cfg.Background, fc.Canvas.Background)

	setString(&cfg.HighlightColor, fc.Style.HighlightColor)
	setString(&cfg.TileBackground, fc.Style.TileBackground)
	setString(&cfg.TitleFontFile, expandTilde(fc.Style.TitleFontFile))
	if fc.Style.TitleFontSize > 0 {
		cfg.TitleFontSize = fc.Style.TitleFontSize
	}

	setInt(&cfg.SampleRate, fc.Audio.SampleRate)
	setInt(&cfg.Channels, fc.Audio.Channels)

	setInt(&cfg.Quality, fc.Recording.Quality)
	setString(&cfg.Output, fc.Recording.Output)
}

func applyEnvOverrides(cfg *Config) {
	cfg.LogLevel = GetEnv("MEDIAGRID_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = GetEnv("MEDIAGRID_LOG_FORMAT", cfg.LogFormat)
	cfg.Listen = GetEnv("MEDIAGRID_LISTEN", cfg.Listen)
	cfg.Width = GetEnvInt("MEDIAGRID_WIDTH", cfg.Width)
	cfg.Height = GetEnvInt("MEDIAGRID_HEIGHT", cfg.Height)
	cfg.FrameRate = GetEnvInt("MEDIAGRID_FRAME_RATE", cfg.FrameRate)
	cfg.MaxTiles = GetEnvInt("MEDIAGRID_MAX_TILES", cfg.MaxTiles)
	cfg.Quality = GetEnvInt("MEDIAGRID_QUALITY", cfg.Quality)
	cfg.Output = GetEnv("MEDIAGRID_OUTPUT", cfg.Output)
	cfg.TitleFontFile = expandTilde(GetEnv("MEDIAGRID_FONT_FILE", cfg.TitleFontFile))
}

// CompositorConfig converts the configuration into a compositor
// configuration. It fails on malformed colors.
func (c *Config) CompositorConfig() (mediagrid.CompositorConfig, error) {
	cc := mediagrid.DefaultCompositorConfig()
	cc.Width = c.Width
	cc.Height = c.Height
	cc.FrameRate = c.FrameRate
	cc.MaxTiles = c.MaxTiles
	cc.BigTileShare = c.BigTileShare
	cc.TileGap = c.TileGap
	cc.BigTileGap = c.BigTileGap
	cc.Style.TitleFontFile = c.TitleFontFile
	if c.TitleFontSize > 0 {
		cc.Style.TitleFontSize = c.TitleFontSize
	}
	cc.Mixer.SampleRate = c.SampleRate
	cc.Mixer.Channels = c.Channels
	cc.Mixer.FrameSize = c.SampleRate / 50

	var err error
	if cc.Background, err = parseColor("background", c.Background); err != nil {
		return cc, err
	}
	if cc.Style.HighlightColor, err = parseColor("highlight_color", c.HighlightColor); err != nil {
		return cc, err
	}
	if cc.Style.TileBackground, err = parseColor("tile_background", c.TileBackground); err != nil {
		return cc, err
	}
	return cc, nil
}

// EncoderConfig converts the configuration into an encoder configuration.
func (c *Config) EncoderConfig() mediagrid.EncoderConfig {
	ec := mediagrid.DefaultEncoderConfig()
	ec.Quality = c.Quality
	ec.FrameRate = c.FrameRate
	return ec
}

func parseColor(name, value string) (color.Color, error) {
	col, err := mediagrid.ParseHexColor(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return col, nil
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func configFilePath() string {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "mediagrid")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "mediagrid")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
