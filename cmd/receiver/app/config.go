package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/saikumarpv2643/smart-accelerometer/internal/stream"
	"github.com/saikumarpv2643/smart-accelerometer/internal/transport"
)

const (
	TransportSerial    TransportType = "serial"
	TransportCommand   TransportType = "command"
	TransportReplay    TransportType = "replay"
	TransportSimulator TransportType = "simulator"
)

const defaultMaxBatchSize = 500

type TransportType string

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Transport TransportConfig `yaml:"transport"`
	Stream    stream.Config   `yaml:"stream"`
	Storage   StorageConfig   `yaml:"storage"`
	Export    ExportConfig    `yaml:"export"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel      slog.Level `yaml:"logLevel"`
	LogFile       string     `yaml:"logFile"`       // Rotated log file, in addition to stdout
	LogMaxSizeMB  int        `yaml:"logMaxSizeMB"`  // Rotation threshold
	LogMaxBackups int        `yaml:"logMaxBackups"` // Rotated files to keep
	StatsInterval Duration   `yaml:"statsInterval"` // How often stream stats are logged
}

// TransportConfig selects and configures the notification source
type TransportConfig struct {
	Type      TransportType   `yaml:"type"`
	Record    string          `yaml:"record"` // Optional capture file of all received frames
	Serial    SerialConfig    `yaml:"serial"`
	Command   CommandConfig   `yaml:"command"`
	Replay    ReplayConfig    `yaml:"replay"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

type SerialConfig struct {
	Path                  string `yaml:"path"`
	transport.PortOptions `yaml:",inline"`
}

type CommandConfig struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
}

type ReplayConfig struct {
	Path     string   `yaml:"path"`
	Interval Duration `yaml:"interval"` // Delay between frames; zero replays as fast as possible
}

type SimulatorConfig struct {
	FrequencyHz  float64 `yaml:"frequencyHz"`
	AmplitudeG   float64 `yaml:"amplitudeG"`
	BurstPackets int     `yaml:"burstPackets"`
	DropEvery    int     `yaml:"dropEvery"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Path         string `yaml:"path"` // SQLite database; empty disables recording
	MaxBatchSize int    `yaml:"maxBatchSize"`
}

// ExportConfig represents CSV export settings
type ExportConfig struct {
	CSVPath string `yaml:"csvPath"` // Written on shutdown; empty disables the export
}

// Duration is a time.Duration read from strings like "2s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}
	if duration < 0 {
		return fmt.Errorf("app.Duration: must not be negative: %s", duration)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// LoadConfig reads the configuration file at path and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration and fills in defaults.
func ParseConfig(data []byte) (*Config, error) {
	config := Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		Stream:   stream.DefaultConfig(),
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Transport.Type == "" {
		c.Transport.Type = TransportSimulator
	}
	if c.Storage.MaxBatchSize <= 0 {
		c.Storage.MaxBatchSize = defaultMaxBatchSize
	}
	if c.Settings.LogMaxSizeMB <= 0 {
		c.Settings.LogMaxSizeMB = 50
	}
	if c.Settings.LogMaxBackups <= 0 {
		c.Settings.LogMaxBackups = 3
	}

	sim := &c.Transport.Simulator
	if sim.FrequencyHz == 0 {
		sim.FrequencyHz = 100
	}
	if sim.AmplitudeG == 0 {
		sim.AmplitudeG = 0.5
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport.Type {
	case TransportSerial:
		if c.Transport.Serial.Path == "" {
			errs = append(errs, errors.New("transport.serial.path is required"))
		}
		if _, err := c.Transport.Serial.Normalize(); err != nil {
			errs = append(errs, fmt.Errorf("transport.serial: %w", err))
		}
	case TransportCommand:
		if c.Transport.Command.Path == "" {
			errs = append(errs, errors.New("transport.command.path is required"))
		}
	case TransportReplay:
		if c.Transport.Replay.Path == "" {
			errs = append(errs, errors.New("transport.replay.path is required"))
		}
	case TransportSimulator:
		if c.Transport.Simulator.FrequencyHz < 0 || c.Transport.Simulator.FrequencyHz >= c.Stream.SampleRate/2 {
			errs = append(errs, fmt.Errorf("transport.simulator.frequencyHz must be below the Nyquist frequency %v", c.Stream.SampleRate/2))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport type '%s'", c.Transport.Type))
	}

	if err := c.Stream.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// NewSource creates the notification source described by the configuration.
func (c *Config) NewSource(logger *slog.Logger) (transport.Source, error) {
	t := &c.Transport

	switch t.Type {
	case TransportSerial:
		return &transport.SerialSource{Path: t.Serial.Path, Options: t.Serial.PortOptions}, nil
	case TransportCommand:
		return &transport.CommandSource{Command: t.Command.Path, Args: t.Command.Args, Logger: logger}, nil
	case TransportReplay:
		return &transport.ReplaySource{Path: t.Replay.Path, Interval: time.Duration(t.Replay.Interval)}, nil
	case TransportSimulator:
		return &transport.SimulatorSource{
			SampleRate:   c.Stream.SampleRate,
			FrequencyHz:  t.Simulator.FrequencyHz,
			AmplitudeG:   t.Simulator.AmplitudeG,
			LSBPerG:      c.Stream.LSBPerG,
			BurstPackets: t.Simulator.BurstPackets,
			DropEvery:    t.Simulator.DropEvery,
		}, nil
	default:
		return nil, fmt.Errorf("creating source: unknown type '%s'", t.Type)
	}
}
