// Package config holds the fusion core's configuration surface (spec.md
// §6). The struct and loader shape are grounded on
// banshee-data-velocity.report's internal/config.TuningConfig /
// LoadTuningConfig: a JSON-tagged struct with a file-size-capped,
// extension-checked loader. Unlike that config (which supports partial
// runtime PATCH updates via pointer fields), every field here is a plain
// value — this config has no partial-update use case, so it is loaded
// wholesale or defaulted wholesale.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fieldrange/rangefusion/internal/depth"
)

// Config is the single configuration surface named in spec.md §6.
type Config struct {
	NeuralHardCapM        float64 `json:"neural_hard_cap_m"`
	MinLidarM             float64 `json:"min_lidar_m"`
	MaxLidarM             float64 `json:"max_lidar_m"`
	MinGeometricM         float64 `json:"min_geometric_m"`
	MaxGeometricM         float64 `json:"max_geometric_m"`
	MinDemM               float64 `json:"min_dem_m"`
	MaxDemM               float64 `json:"max_dem_m"`
	DemRayStepM           float64 `json:"dem_ray_step_m"`
	DemMaxRayM            float64 `json:"dem_max_ray_m"`
	DemBisectionIters     int     `json:"dem_bisection_iters"`
	DemRateLimitS         float64 `json:"dem_rate_limit_s"`
	TileCacheCapacity     int     `json:"tile_cache_capacity"`
	CalibratorMaxSamples  int     `json:"calibrator_max_samples"`
	KalmanBaseQ           float64 `json:"kalman_base_q"`
	KalmanBaseR           float64 `json:"kalman_base_r"`
	SmootherAlphaFloor    float64 `json:"smoother_alpha_floor"`
	BimodalMinFraction    float64 `json:"bimodal_min_fraction"`
	BimodalMinRatio       float64 `json:"bimodal_min_ratio"`
	OutlierRatioThreshold float64 `json:"outlier_ratio_threshold"`
	DefaultCameraHeightM  float64 `json:"default_camera_height_m"`
	DefaultTargetPriority string  `json:"default_target_priority"`
	CosineDeadbandRad     float64 `json:"cosine_deadband_rad"`
}

// Default returns the spec's reference configuration. The neural cap
// resolves the spec.md §9 open question (50 m vs 150 m stated in different
// parts of the original source) by taking 150 m as the soft compression
// boundary, per spec.md §9's explicit instruction.
func Default() Config {
	return Config{
		NeuralHardCapM:        150.0,
		MinLidarM:             0.3,
		MaxLidarM:             10.0,
		MinGeometricM:         5.0,
		MaxGeometricM:         800.0,
		MinDemM:               20.0,
		MaxDemM:               2000.0,
		DemRayStepM:           30.0,
		DemMaxRayM:            2000.0,
		DemBisectionIters:     5,
		DemRateLimitS:         0.5,
		TileCacheCapacity:     16,
		CalibratorMaxSamples:  150,
		KalmanBaseQ:           0.05,
		KalmanBaseR:           1.0,
		SmootherAlphaFloor:    0.02,
		BimodalMinFraction:    0.10,
		BimodalMinRatio:       2.0,
		OutlierRatioThreshold: 2.0,
		DefaultCameraHeightM:  1.6,
		DefaultTargetPriority: "far",
		CosineDeadbandRad:     0.0349, // ~2 degrees
	}
}

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB, matches the pack's own config-file cap

// LoadFile loads a Config from a JSON file, starting from Default() so a
// partial file only overrides the fields it specifies.
func LoadFile(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// TargetPriority parses DefaultTargetPriority, falling back to Far for
// anything other than "near".
func (c Config) TargetPriority() depth.TargetPriority {
	if c.DefaultTargetPriority == "near" {
		return depth.PriorityNear
	}
	return depth.PriorityFar
}
