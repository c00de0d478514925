// Package config loads the host-level settings a sfzplay session needs
// beyond what any single .sfz file specifies: sample rate, block size,
// which MIDI input to open, polyphony, and where instruments live by
// default.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-serializable settings for one sfzplay session.
type Config struct {
	SampleRate  int    `yaml:"sample_rate"`
	BlockSize   int    `yaml:"block_size"`
	Polyphony   int    `yaml:"polyphony"`
	MidiInput   string `yaml:"midi_input"`
	DefaultRoot string `yaml:"default_root,omitempty"`
	LoadWorkers int     `yaml:"load_workers,omitempty"`
}

// Default returns the settings sfzplay falls back to when no config
// file is given.
func Default() Config {
	return Config{
		SampleRate:  44100,
		BlockSize:   512,
		Polyphony:   64,
		MidiInput:   "",
		LoadWorkers: 2,
	}
}

// Load reads and parses a YAML config file, filling in any field the
// file omits with Default's value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = Default().SampleRate
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = Default().BlockSize
	}
	if cfg.Polyphony <= 0 {
		cfg.Polyphony = Default().Polyphony
	}
	if cfg.LoadWorkers <= 0 {
		cfg.LoadWorkers = Default().LoadWorkers
	}
	return cfg, nil
}
