package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mhschmieder/sfizz-juce/config"
)

func TestDefaultValues(t *testing.T) {
	cfg := config.Default()
	if cfg.SampleRate != 44100 {
		t.Fatalf("SampleRate = %d, want 44100", cfg.SampleRate)
	}
	if cfg.BlockSize != 512 {
		t.Fatalf("BlockSize = %d, want 512", cfg.BlockSize)
	}
	if cfg.Polyphony != 64 {
		t.Fatalf("Polyphony = %d, want 64", cfg.Polyphony)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host.yaml")
	contents := "sample_rate: 48000\nmidi_input: \"Keystation\"\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SampleRate != 48000 {
		t.Fatalf("SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if cfg.MidiInput != "Keystation" {
		t.Fatalf("MidiInput = %q, want %q", cfg.MidiInput, "Keystation")
	}
	if cfg.BlockSize != 512 {
		t.Fatalf("BlockSize = %d, want the default 512 when the file omits it", cfg.BlockSize)
	}
}

func TestLoadRejectsZeroOrNegativeFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("sample_rate: -1\npolyphony: 0\n"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SampleRate != config.Default().SampleRate {
		t.Fatalf("SampleRate = %d, want the default to replace a non-positive value", cfg.SampleRate)
	}
	if cfg.Polyphony != config.Default().Polyphony {
		t.Fatalf("Polyphony = %d, want the default to replace a zero value", cfg.Polyphony)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error loading a nonexistent config file")
	}
}
