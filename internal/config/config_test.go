package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fieldrange/rangefusion/internal/depth"
)

func TestLoadFileRejectsNonJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.txt")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Errorf("expected an error for a non-.json extension")
	}
}

func TestLoadFileOverridesOnlySpecifiedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"neural_hard_cap_m": 75}`), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if got.NeuralHardCapM != 75 {
		t.Errorf("NeuralHardCapM = %v, want 75", got.NeuralHardCapM)
	}
	want := Default()
	if got.KalmanBaseQ != want.KalmanBaseQ {
		t.Errorf("KalmanBaseQ = %v, want unchanged default %v", got.KalmanBaseQ, want.KalmanBaseQ)
	}
}

func TestLoadFileRejectsOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	oversized := make([]byte, maxConfigFileSize+1)
	if err := os.WriteFile(path, oversized, 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Errorf("expected an error for a file over the size cap")
	}
}

func TestTargetPriorityDefaultsToFar(t *testing.T) {
	cfg := Default()
	cfg.DefaultTargetPriority = "nonsense"
	if got := cfg.TargetPriority(); got != depth.PriorityFar {
		t.Errorf("TargetPriority = %v, want PriorityFar for an unrecognized value", got)
	}
}

func TestTargetPriorityNear(t *testing.T) {
	cfg := Default()
	cfg.DefaultTargetPriority = "near"
	if got := cfg.TargetPriority(); got != depth.PriorityNear {
		t.Errorf("TargetPriority = %v, want PriorityNear", got)
	}
}
