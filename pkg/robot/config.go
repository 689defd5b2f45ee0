package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultConfigFile = "magarm.json"

// DefaultSequenceFile is where recorded sequences are saved unless told otherwise.
const DefaultSequenceFile = "positions.json"

// DefaultPlaybackDelay is the pause between playback steps.
const DefaultPlaybackDelay = 600 * time.Millisecond

// Config holds the application configuration
type Config struct {
	Arm          LinkConfig     `json:"arm"`
	Input        LinkConfig     `json:"input"`
	Home         Position       `json:"home"`
	Playback     PlaybackConfig `json:"playback"`
	SequenceFile string         `json:"sequence_file"`
	LogLevel     string         `json:"log_level"`
}

// PlaybackConfig holds sequence playback settings
type PlaybackConfig struct {
	Delay time.Duration `json:"delay"`
}

// DefaultConfig returns the configuration used when no file exists
func DefaultConfig() *Config {
	return &Config{
		Arm:          LinkConfig{Baud: DefaultArmBaud, Timeout: DefaultReadTimeout},
		Input:        LinkConfig{Baud: DefaultInputBaud, Timeout: DefaultReadTimeout},
		Home:         DefaultHome(),
		Playback:     PlaybackConfig{Delay: DefaultPlaybackDelay},
		SequenceFile: DefaultSequenceFile,
		LogLevel:     "info",
	}
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. A missing file
// yields the defaults; MAGARM_* environment variables override both
// (e.g. MAGARM_ARM_PORT, MAGARM_PLAYBACK_DELAY=250ms).
func LoadConfigFrom(path string) (*Config, error) {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("arm.port", def.Arm.Port)
	v.SetDefault("arm.baud", def.Arm.Baud)
	v.SetDefault("arm.timeout", def.Arm.Timeout)
	v.SetDefault("input.port", def.Input.Port)
	v.SetDefault("input.baud", def.Input.Baud)
	v.SetDefault("input.timeout", def.Input.Timeout)
	v.SetDefault("home", homeList(def.Home))
	v.SetDefault("playback.delay", def.Playback.Delay)
	v.SetDefault("sequence_file", def.SequenceFile)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix("magarm")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	home, err := PositionFromList(v.GetIntSlice("home"))
	if err != nil {
		return nil, fmt.Errorf("config home: %w", err)
	}

	return &Config{
		Arm: LinkConfig{
			Port:    v.GetString("arm.port"),
			Baud:    v.GetInt("arm.baud"),
			Timeout: v.GetDuration("arm.timeout"),
		},
		Input: LinkConfig{
			Port:    v.GetString("input.port"),
			Baud:    v.GetInt("input.baud"),
			Timeout: v.GetDuration("input.timeout"),
		},
		Home:         home,
		Playback:     PlaybackConfig{Delay: v.GetDuration("playback.delay")},
		SequenceFile: v.GetString("sequence_file"),
		LogLevel:     v.GetString("log_level"),
	}, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}

func homeList(p Position) []int {
	l := p.List()
	return l[:]
}
