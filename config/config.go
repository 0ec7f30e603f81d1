// Package config holds the server settings read from an optional YAML file
// and overridden by command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DeviceLime      = "lime"
	DeviceSynthetic = "synthetic"
)

var ErrInvalidBits = errors.New("sample bits must be 8 or 16")

type Config struct {
	ListenAddress string `yaml:"listen_address"`
	Port          int    `yaml:"port"`
	SampleBits    int    `yaml:"sample_bits"`

	Device       string `yaml:"device"`
	DeviceIndex  int    `yaml:"device_index"`
	Channel      int    `yaml:"channel"`
	Antenna      string `yaml:"antenna"`
	LPF          int    `yaml:"lpf"`
	Oversampling int    `yaml:"oversampling"`

	InitialSampleRate uint32 `yaml:"initial_sample_rate"`
	InitialFrequency  uint32 `yaml:"initial_frequency"`

	ReadTimeout time.Duration `yaml:"read_timeout"`
	Settle      time.Duration `yaml:"settle"`
	RateSettle  time.Duration `yaml:"rate_settle"`
	RingSize    int           `yaml:"ring_size"`

	MetricsAddress string `yaml:"metrics_address"` // empty disables /metrics
	Verbose        bool   `yaml:"verbose"`
}

func Default() Config {
	return Config{
		Port:              1234,
		SampleBits:        8,
		Device:            DeviceLime,
		Antenna:           "LNAL",
		LPF:               2500000,
		InitialSampleRate: 768000,
		InitialFrequency:  162450000,
		ReadTimeout:       600 * time.Second,
		Settle:            250 * time.Millisecond,
		RateSettle:        50 * time.Millisecond,
		RingSize:          16 * 1024 * 1024,
	}
}

// Load reads filename over the defaults. Keys missing from the file keep
// their default value.
func Load(filename string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(filename)
	if err != nil {
		return c, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse config file: %w", err)
	}
	return c, nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.Port)
}

func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SampleBits != 8 && c.SampleBits != 16 {
		return fmt.Errorf("%w, got %d", ErrInvalidBits, c.SampleBits)
	}
	if c.Device != DeviceLime && c.Device != DeviceSynthetic {
		return fmt.Errorf("unknown device %q", c.Device)
	}
	if c.RingSize <= 0 || c.RingSize%8 != 0 {
		return fmt.Errorf("ring size must be a positive multiple of 8, got %d", c.RingSize)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got %s", c.ReadTimeout)
	}
	if c.Settle < 0 || c.RateSettle < 0 {
		return fmt.Errorf("settle delays must not be negative")
	}
	return nil
}
