package config

import (
	"path/filepath"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv(EnvDataDir, "/tmp/labeller-test")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.Threshold() != DefaultThreshold {
		t.Errorf("Threshold() = %v, want %v", cfg.Threshold(), DefaultThreshold)
	}
	if cfg.Policy() != DefaultPolicy {
		t.Errorf("Policy() = %q, want %q", cfg.Policy(), DefaultPolicy)
	}
	if cfg.PlateSlots() != DefaultPlateSlots {
		t.Errorf("PlateSlots() = %d, want %d", cfg.PlateSlots(), DefaultPlateSlots)
	}
	if cfg.LabelSuffix() != DefaultLabelSuffix {
		t.Errorf("LabelSuffix() = %q, want %q", cfg.LabelSuffix(), DefaultLabelSuffix)
	}
	if cfg.Store() != DefaultStore {
		t.Errorf("Store() = %q, want %q", cfg.Store(), DefaultStore)
	}
	if want := filepath.Join("/tmp/labeller-test", DBFilename); cfg.DBPath() != want {
		t.Errorf("DBPath() = %q, want %q", cfg.DBPath(), want)
	}
}

func TestNew_FromEnv(t *testing.T) {
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvThreshold, "0.9")
	t.Setenv(EnvPolicy, "TEXT")
	t.Setenv(EnvPlateSlots, "4")
	t.Setenv(EnvStore, "sqlite")
	t.Setenv(EnvHeadless, "true")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9000 {
		t.Errorf("Port() = %d, want 9000", cfg.Port())
	}
	if cfg.Threshold() != 0.9 {
		t.Errorf("Threshold() = %v, want 0.9", cfg.Threshold())
	}
	if cfg.Policy() != "text" {
		t.Errorf("Policy() = %q, want text", cfg.Policy())
	}
	if cfg.PlateSlots() != 4 {
		t.Errorf("PlateSlots() = %d, want 4", cfg.PlateSlots())
	}
	if cfg.Store() != "sqlite" {
		t.Errorf("Store() = %q, want sqlite", cfg.Store())
	}
	if !cfg.Headless() {
		t.Error("Headless() = false, want true")
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", EnvPort, "70000"},
		{"port not a number", EnvPort, "abc"},
		{"threshold one", EnvThreshold, "1"},
		{"threshold zero", EnvThreshold, "0"},
		{"unknown policy", EnvPolicy, "ocr"},
		{"zero slots", EnvPlateSlots, "0"},
		{"unknown store", EnvStore, "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := New(); err == nil {
				t.Errorf("New() with %s=%s: expected error", tt.key, tt.value)
			}
		})
	}
}
