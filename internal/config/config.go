// Package config loads the engine and host configuration from an optional
// YAML file and AGENTVAULT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/fusion"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/scoring"
)

// EnvPrefix prefixes every environment override, e.g. AGENTVAULT_SERVER_ADDR.
const EnvPrefix = "AGENTVAULT"

// #region schema
// Config is the full host configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Vault   VaultConfig   `mapstructure:"vault"`
	Log     LogConfig     `mapstructure:"log"`
	Engine  EngineConfig  `mapstructure:"engine"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig locates the SQLite database. An empty path keeps all state
// in memory.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// VaultConfig locates the vault service. An empty address means vault
// snapshots must arrive with each request.
type VaultConfig struct {
	Addr    string        `mapstructure:"addr"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// EngineConfig holds the tunable engine parameters.
type EngineConfig struct {
	Seed                  uint64             `mapstructure:"seed"` // 0 draws a random seed
	Timeout               time.Duration      `mapstructure:"timeout"`
	MinApprovals          int                `mapstructure:"min_approvals"`
	ConfidenceThreshold   float64            `mapstructure:"confidence_threshold"`
	EnforceVault          bool               `mapstructure:"enforce_vault"`
	BonusThreshold        float64            `mapstructure:"bonus_threshold"`
	Bonus                 float64            `mapstructure:"bonus"`
	MetricDecay           float64            `mapstructure:"metric_decay"`
	ExperienceCapacity    int                `mapstructure:"experience_capacity"`
	PendingCapacity       int                `mapstructure:"pending_capacity"`
	ReferenceAmount       float64            `mapstructure:"reference_amount"`
	JitterScale           float64            `mapstructure:"jitter_scale"`
	HeuristicLearningRate float64            `mapstructure:"heuristic_learning_rate"`
	PolicyEpsilon         float64            `mapstructure:"policy_epsilon"`
	PolicyBufferSize      int                `mapstructure:"policy_buffer_size"`
	PolicySyncEvery       int                `mapstructure:"policy_sync_every"`
	BaseWeights           map[string]float64 `mapstructure:"base_weights"`
}

// #endregion schema

// #region defaults
// DefaultConfig mirrors the engine defaults.
func DefaultConfig() *Config {
	fc := fusion.DefaultConfig()
	weights := make(map[string]float64, len(fc.BaseWeights))
	for s, w := range fc.BaseWeights {
		weights[string(s)] = w
	}
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Vault: VaultConfig{
			Timeout: 2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Engine: EngineConfig{
			Timeout:               fc.Timeout,
			MinApprovals:          fc.Gate.MinApprovals,
			ConfidenceThreshold:   fc.Gate.ConfidenceThreshold,
			EnforceVault:          fc.Gate.EnforceVault,
			BonusThreshold:        fc.BonusThreshold,
			Bonus:                 fc.Bonus,
			MetricDecay:           fc.MetricDecay,
			ExperienceCapacity:    fc.ExperienceCapacity,
			PendingCapacity:       fc.PendingCapacity,
			ReferenceAmount:       fc.Features.ReferenceAmount,
			JitterScale:           fc.Features.JitterScale,
			HeuristicLearningRate: fc.Heuristic.Adjust.LearningRate,
			PolicyEpsilon:         fc.Policy.Epsilon,
			PolicyBufferSize:      fc.Policy.BufferSize,
			PolicySyncEvery:       fc.Policy.SyncEvery,
			BaseWeights:           weights,
		},
	}
}

// #endregion defaults

// #region load
// Load reads path (if non-empty and present) over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("vault.addr", cfg.Vault.Addr)
	v.SetDefault("vault.timeout", cfg.Vault.Timeout)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.development", cfg.Log.Development)

	e := cfg.Engine
	v.SetDefault("engine.seed", e.Seed)
	v.SetDefault("engine.timeout", e.Timeout)
	v.SetDefault("engine.min_approvals", e.MinApprovals)
	v.SetDefault("engine.confidence_threshold", e.ConfidenceThreshold)
	v.SetDefault("engine.enforce_vault", e.EnforceVault)
	v.SetDefault("engine.bonus_threshold", e.BonusThreshold)
	v.SetDefault("engine.bonus", e.Bonus)
	v.SetDefault("engine.metric_decay", e.MetricDecay)
	v.SetDefault("engine.experience_capacity", e.ExperienceCapacity)
	v.SetDefault("engine.pending_capacity", e.PendingCapacity)
	v.SetDefault("engine.reference_amount", e.ReferenceAmount)
	v.SetDefault("engine.jitter_scale", e.JitterScale)
	v.SetDefault("engine.heuristic_learning_rate", e.HeuristicLearningRate)
	v.SetDefault("engine.policy_epsilon", e.PolicyEpsilon)
	v.SetDefault("engine.policy_buffer_size", e.PolicyBufferSize)
	v.SetDefault("engine.policy_sync_every", e.PolicySyncEvery)
	v.SetDefault("engine.base_weights", e.BaseWeights)
}

// #endregion load

// #region validate
// Validate checks ranges. Thresholds are probabilities; capacities, policy
// sizes and the approval count must be positive.
func (c *Config) Validate() error {
	e := c.Engine
	for _, p := range []struct {
		key string
		v   float64
	}{
		{"engine.confidence_threshold", e.ConfidenceThreshold},
		{"engine.bonus_threshold", e.BonusThreshold},
		{"engine.bonus", e.Bonus},
		{"engine.metric_decay", e.MetricDecay},
		{"engine.jitter_scale", e.JitterScale},
		{"engine.policy_epsilon", e.PolicyEpsilon},
	} {
		if p.v < 0 || p.v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %g", p.key, p.v)
		}
	}
	if e.MinApprovals < 1 || e.MinApprovals > len(scoring.AllStrategies) {
		return fmt.Errorf("engine.min_approvals must be in [1,%d], got %d", len(scoring.AllStrategies), e.MinApprovals)
	}
	if e.ExperienceCapacity < 2 {
		return fmt.Errorf("engine.experience_capacity must be at least 2, got %d", e.ExperienceCapacity)
	}
	if e.PendingCapacity < 1 {
		return fmt.Errorf("engine.pending_capacity must be positive, got %d", e.PendingCapacity)
	}
	if e.ReferenceAmount <= 0 {
		return fmt.Errorf("engine.reference_amount must be positive, got %g", e.ReferenceAmount)
	}
	if e.HeuristicLearningRate < 0 {
		return fmt.Errorf("engine.heuristic_learning_rate must not be negative, got %g", e.HeuristicLearningRate)
	}
	if e.Timeout < 0 {
		return fmt.Errorf("engine.timeout must not be negative, got %s", e.Timeout)
	}
	for name, w := range e.BaseWeights {
		if !isStrategy(name) {
			return fmt.Errorf("engine.base_weights: unknown strategy %q", name)
		}
		if w <= 0 {
			return fmt.Errorf("engine.base_weights.%s must be positive, got %g", name, w)
		}
	}
	if err := c.Fusion().Policy.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

func isStrategy(name string) bool {
	for _, s := range scoring.AllStrategies {
		if string(s) == name {
			return true
		}
	}
	return false
}

// #endregion validate

// #region fusion
// Fusion maps the engine section onto the fusion configuration. Parameters
// the file does not expose keep their defaults.
func (c *Config) Fusion() fusion.Config {
	e := c.Engine
	fc := fusion.DefaultConfig()
	fc.Timeout = e.Timeout
	fc.Gate.MinApprovals = e.MinApprovals
	fc.Gate.ConfidenceThreshold = e.ConfidenceThreshold
	fc.Gate.EnforceVault = e.EnforceVault
	fc.Eval.MinApprovals = e.MinApprovals
	fc.Eval.ConfidenceThreshold = e.ConfidenceThreshold
	fc.BonusThreshold = e.BonusThreshold
	fc.Bonus = e.Bonus
	fc.MetricDecay = e.MetricDecay
	fc.ExperienceCapacity = e.ExperienceCapacity
	fc.PendingCapacity = e.PendingCapacity
	fc.Features.ReferenceAmount = e.ReferenceAmount
	fc.Features.JitterScale = e.JitterScale
	fc.Similarity.ReferenceAmount = e.ReferenceAmount
	fc.Heuristic.Adjust.LearningRate = e.HeuristicLearningRate
	fc.Policy.Epsilon = e.PolicyEpsilon
	fc.Policy.BufferSize = e.PolicyBufferSize
	fc.Policy.SyncEvery = e.PolicySyncEvery
	for name, w := range e.BaseWeights {
		fc.BaseWeights[scoring.Strategy(name)] = w
	}
	return fc
}

// #endregion fusion
