// Package config holds the tunable knobs for the curation pipeline.
//
// Every threshold in here was chosen empirically against phone-camera
// resolution photos. None of them are derived from first principles, so
// they are all exposed in the YAML config file rather than hardcoded at
// their call sites.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for packrat.
type Config struct {
	Gate    GateConfig    `yaml:"gate"`
	Cluster ClusterConfig `yaml:"cluster"`
	Imaging ImagingConfig `yaml:"imaging"`
	Enrich  EnrichConfig  `yaml:"enrich"`
}

// GateConfig configures the detection quality gate.
type GateConfig struct {
	// MinConfidence rejects any detection below this score outright.
	MinConfidence float64 `yaml:"min_confidence"`

	// LowTrustConfidence is the higher bar applied when other signals are
	// weak (unknown category, tiny bounding box).
	LowTrustConfidence float64 `yaml:"low_trust_confidence"`

	// MinBoxArea is the normalized bounding-box area (width*height/1e6 in
	// the recognizer's 0..1000 space) below which a detection is suspect.
	MinBoxArea float64 `yaml:"min_box_area"`

	// DenylistPhrases rejects detections whose title contains any of these
	// phrases. Matched case-insensitively against the trimmed title.
	DenylistPhrases []string `yaml:"denylist_phrases"`
}

// ClusterConfig configures fuzzy duplicate clustering.
type ClusterConfig struct {
	// MaxEditDistance is the Levenshtein distance between normalized
	// titles at or below which two detections are considered duplicates.
	MaxEditDistance int `yaml:"max_edit_distance"`

	// MinTokenOverlap is the minimum number of shared title tokens before
	// the overlap ratio test applies.
	MinTokenOverlap int `yaml:"min_token_overlap"`

	// TokenOverlapRatio is |intersection| / max(|A|, |B|) at or above
	// which two detections are considered duplicates.
	TokenOverlapRatio float64 `yaml:"token_overlap_ratio"`
}

// ImagingConfig configures per-image scoring and curation.
type ImagingConfig struct {
	// ScoreGridSize is the square downsample size used for sharpness and
	// contrast scoring.
	ScoreGridSize int `yaml:"score_grid_size"`

	// MinSharpness and MinContrast are the quality floors. Images below
	// either are dropped unless that would empty the candidate set.
	MinSharpness float64 `yaml:"min_sharpness"`
	MinContrast  float64 `yaml:"min_contrast"`

	// MaxHammingDistance is the perceptual-hash distance at or below which
	// two crops are considered the same shot.
	MaxHammingDistance int `yaml:"max_hamming_distance"`

	// KeepAtMost and EnsureAtLeast bound the curated set per item.
	KeepAtMost    int `yaml:"keep_at_most"`
	EnsureAtLeast int `yaml:"ensure_at_least"`

	// ThumbnailEdge is the longest edge of the derived thumbnail in
	// pixels. Thumbnails are never upscaled.
	ThumbnailEdge int `yaml:"thumbnail_edge"`
}

// EnrichConfig configures the second-pass AI enrichment.
type EnrichConfig struct {
	// Model is the Anthropic model used for per-item analysis.
	Model string `yaml:"model"`

	// MaxConcurrentCalls bounds in-flight API calls (0 = unlimited).
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`

	// RequestsPerSecond is a client-side rate limit on API calls
	// (0 = unlimited).
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// MaxRetries is the number of retries per item after the first attempt.
	MaxRetries int `yaml:"max_retries"`

	// InitialBackoff is the first retry delay; it doubles per attempt.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// RequestTimeout bounds each individual API call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Gate: GateConfig{
			MinConfidence:      0.6,
			LowTrustConfidence: 0.75,
			MinBoxArea:         0.01,
			DenylistPhrases: []string{
				"unidentifiable",
				"unidentified",
				"unknown object",
				"unclear",
				"blurry",
				"blurred",
				"out of focus",
				"not sure",
				"can't tell",
				"cannot identify",
				"partial view",
				"too dark",
			},
		},
		Cluster: ClusterConfig{
			MaxEditDistance:   2,
			MinTokenOverlap:   2,
			TokenOverlapRatio: 0.67,
		},
		Imaging: ImagingConfig{
			ScoreGridSize:      64,
			MinSharpness:       0.04,
			MinContrast:        0.035,
			MaxHammingDistance: 5,
			KeepAtMost:         4,
			EnsureAtLeast:      1,
			ThumbnailEdge:      144,
		},
		Enrich: EnrichConfig{
			Model:              "claude-3-5-haiku-20241022",
			MaxConcurrentCalls: 3,
			RequestsPerSecond:  2,
			MaxRetries:         2,
			InitialBackoff:     time.Second,
			RequestTimeout:     60 * time.Second,
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config in %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Gate.MinConfidence < 0 || c.Gate.MinConfidence > 1 {
		return fmt.Errorf("gate.min_confidence must be between 0.0 and 1.0 (got %.2f)", c.Gate.MinConfidence)
	}
	if c.Gate.LowTrustConfidence < c.Gate.MinConfidence || c.Gate.LowTrustConfidence > 1 {
		return fmt.Errorf("gate.low_trust_confidence must be between gate.min_confidence and 1.0 (got %.2f)", c.Gate.LowTrustConfidence)
	}
	if c.Cluster.MaxEditDistance < 0 {
		return fmt.Errorf("cluster.max_edit_distance cannot be negative (got %d)", c.Cluster.MaxEditDistance)
	}
	if c.Cluster.TokenOverlapRatio <= 0 || c.Cluster.TokenOverlapRatio > 1 {
		return fmt.Errorf("cluster.token_overlap_ratio must be in (0.0, 1.0] (got %.2f)", c.Cluster.TokenOverlapRatio)
	}
	if c.Imaging.ScoreGridSize < 8 {
		return fmt.Errorf("imaging.score_grid_size must be at least 8 (got %d)", c.Imaging.ScoreGridSize)
	}
	if c.Imaging.KeepAtMost < 1 {
		return fmt.Errorf("imaging.keep_at_most must be at least 1 (got %d)", c.Imaging.KeepAtMost)
	}
	if c.Imaging.EnsureAtLeast < 0 || c.Imaging.EnsureAtLeast > c.Imaging.KeepAtMost {
		return fmt.Errorf("imaging.ensure_at_least must be between 0 and keep_at_most (got %d)", c.Imaging.EnsureAtLeast)
	}
	if c.Imaging.MaxHammingDistance < 0 || c.Imaging.MaxHammingDistance > 64 {
		return fmt.Errorf("imaging.max_hamming_distance must be between 0 and 64 (got %d)", c.Imaging.MaxHammingDistance)
	}
	if c.Imaging.ThumbnailEdge < 1 {
		return fmt.Errorf("imaging.thumbnail_edge must be positive (got %d)", c.Imaging.ThumbnailEdge)
	}
	if c.Enrich.MaxConcurrentCalls < 0 {
		return fmt.Errorf("enrich.max_concurrent_calls cannot be negative (got %d)", c.Enrich.MaxConcurrentCalls)
	}
	if c.Enrich.MaxRetries < 0 {
		return fmt.Errorf("enrich.max_retries cannot be negative (got %d)", c.Enrich.MaxRetries)
	}
	return nil
}
