package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SerialConfig describes the link to the drives.
type SerialConfig struct {
	Port          string `yaml:"port"`            // e.g., "/dev/ttyUSB0"
	BaudRate      int    `yaml:"baud_rate"`       // default 9600
	DataBits      int    `yaml:"data_bits"`       // default 8
	StopBits      int    `yaml:"stop_bits"`       // default 1
	Parity        string `yaml:"parity"`          // N, E or O (default N)
	ReadTimeoutMs int    `yaml:"read_timeout_ms"` // default 1000
	Verbose       bool   `yaml:"verbose"`         // log every frame and response
	Mock          bool   `yaml:"mock"`            // simulated drives instead of a real port
}

// AxisConfig holds the configuration for one drive.
type AxisConfig struct {
	ID  *int `yaml:"id"`  // node id; omit for a single unaddressed drive
	RPM int  `yaml:"rpm"` // max speed (SP)
	Acc int  `yaml:"acc"` // max acceleration (AC)
	Dec int  `yaml:"dec"` // max deceleration (DEC); 0 = same as acc
}

// PlaybackConfig holds waypoint playback defaults.
type PlaybackConfig struct {
	DwellMs    *int `yaml:"dwell_ms"`   // pause after each waypoint (default 1000; 0 is allowed)
	Iterations int  `yaml:"iterations"` // default 1
}

// TrajectoryConfig holds record/replay defaults.
type TrajectoryConfig struct {
	MinIntervalMs   int  `yaml:"min_interval_ms"`  // fastest sampling period (default 20)
	MinDisplacement *int `yaml:"min_displacement"` // replay moves only beyond this (default 10; 0 = every change)
}

// GPIOConfig describes the optional busy indicator.
type GPIOConfig struct {
	Mock    bool `yaml:"mock"`     // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	BusyPin int  `yaml:"busy_pin"` // BCM pin raised during runs. 0 = not used.
}

// Config aggregates all application configuration.
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	Axes       []AxisConfig     `yaml:"axes"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Trajectory TrajectoryConfig `yaml:"trajectory"`
	GPIO       GPIOConfig       `yaml:"gpio"`
	DebugLevel int              `yaml:"debug_level"` // 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if !cfg.Serial.Mock && cfg.Serial.Port == "" {
		return nil, fmt.Errorf("serial.port is required unless serial.mock is set")
	}
	if cfg.Serial.BaudRate <= 0 {
		cfg.Serial.BaudRate = 9600
	}
	if cfg.Serial.ReadTimeoutMs < 0 {
		return nil, fmt.Errorf("serial.read_timeout_ms must be >= 0, got %d", cfg.Serial.ReadTimeoutMs)
	}
	if cfg.Serial.ReadTimeoutMs == 0 {
		cfg.Serial.ReadTimeoutMs = 1000
	}

	if err := validateAxes(cfg.Axes); err != nil {
		return nil, err
	}
	for i := range cfg.Axes {
		if cfg.Axes[i].Dec <= 0 {
			cfg.Axes[i].Dec = cfg.Axes[i].Acc
		}
	}

	if cfg.Playback.DwellMs == nil {
		cfg.Playback.DwellMs = intPtr(1000)
	}
	if *cfg.Playback.DwellMs < 0 {
		return nil, fmt.Errorf("playback.dwell_ms must be >= 0, got %d", *cfg.Playback.DwellMs)
	}
	if cfg.Playback.Iterations <= 0 {
		cfg.Playback.Iterations = 1
	}

	if cfg.Trajectory.MinIntervalMs <= 0 {
		cfg.Trajectory.MinIntervalMs = 20
	}
	if cfg.Trajectory.MinDisplacement == nil {
		cfg.Trajectory.MinDisplacement = intPtr(10)
	}
	if *cfg.Trajectory.MinDisplacement < 0 {
		return nil, fmt.Errorf("trajectory.min_displacement must be >= 0, got %d", *cfg.Trajectory.MinDisplacement)
	}

	if cfg.GPIO.BusyPin < 0 {
		return nil, fmt.Errorf("gpio.busy_pin must be >= 0, got %d", cfg.GPIO.BusyPin)
	}

	return &cfg, nil
}

func intPtr(v int) *int { return &v }

func validateAxes(axes []AxisConfig) error {
	if len(axes) == 0 {
		return fmt.Errorf("at least one axis is required")
	}
	seen := make(map[int]bool)
	for i, a := range axes {
		if a.ID == nil {
			if len(axes) > 1 {
				return fmt.Errorf("axes[%d]: id is required when more than one axis is configured", i)
			}
		} else {
			if *a.ID < 0 {
				return fmt.Errorf("axes[%d]: id must be >= 0, got %d", i, *a.ID)
			}
			if seen[*a.ID] {
				return fmt.Errorf("axes[%d]: duplicate id %d", i, *a.ID)
			}
			seen[*a.ID] = true
		}
		if a.RPM <= 0 {
			return fmt.Errorf("axes[%d]: rpm must be > 0", i)
		}
		if a.Acc <= 0 {
			return fmt.Errorf("axes[%d]: acc must be > 0", i)
		}
		if a.Dec < 0 {
			return fmt.Errorf("axes[%d]: dec must be >= 0", i)
		}
	}
	return nil
}

// ReadTimeout returns the serial read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond
}

// Dwell returns the pause after each waypoint.
func (c *Config) Dwell() time.Duration {
	if c.Playback.DwellMs == nil {
		return time.Second
	}
	return time.Duration(*c.Playback.DwellMs) * time.Millisecond
}

// MinDisplacement returns the smallest position change replayed as a move.
func (c *Config) MinDisplacement() int {
	if c.Trajectory.MinDisplacement == nil {
		return 10
	}
	return *c.Trajectory.MinDisplacement
}

// MinSampleInterval returns the fastest trajectory sampling period.
func (c *Config) MinSampleInterval() time.Duration {
	return time.Duration(c.Trajectory.MinIntervalMs) * time.Millisecond
}
