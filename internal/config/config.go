// Package config loads the typed configuration for a ralph project from
// .ralph/config.yaml. Unlike the ambient-viper style this is descended
// from, Load returns a value threaded explicitly through constructors
// rather than read back out of package-level state.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/ralph-run/ralph/internal/model"
)

const appName = "ralph"

// AgentModelConfig is a per-role model override.
type AgentModelConfig struct {
	Model string `mapstructure:"model"`
}

// AgentsConfig configures the agent pool and per-role model selection.
type AgentsConfig struct {
	MaxParallel  int                                      `mapstructure:"max_parallel"`
	DefaultModel string                                   `mapstructure:"default_model"`
	Roles        map[model.AgentRole]AgentModelConfig `mapstructure:"roles"`
}

// ModelFor resolves the model to use for role, falling back to the default.
func (a AgentsConfig) ModelFor(role model.AgentRole) string {
	if o, ok := a.Roles[role]; ok && o.Model != "" {
		return o.Model
	}
	return a.DefaultModel
}

// ExecutionConfig configures the pipeline executor and agent runner.
type ExecutionConfig struct {
	MaxIterations int    `mapstructure:"max_iterations"`
	TimeoutMin    int    `mapstructure:"timeout_minutes"`
	WorktreeDir   string `mapstructure:"worktree_dir"`
}

// Timeout returns the configured per-stage timeout as a time.Duration.
func (e ExecutionConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMin) * time.Minute
}

// DatabaseConfig configures the Store's backing file.
type DatabaseConfig struct {
	Path      string `mapstructure:"path"`
	SyncJSONL bool   `mapstructure:"sync_jsonl"`
}

// AgentRalphDefaults is a per-role ralph override.
type AgentRalphDefaults struct {
	MaxIterations int    `mapstructure:"max_iterations"`
	Promise       string `mapstructure:"promise"`
	Verification  string `mapstructure:"verification"`
}

// RalphConfig configures the RalphLoop.
type RalphConfig struct {
	Enabled            bool                                    `mapstructure:"enabled"`
	MaxIterations      int                                     `mapstructure:"max_iterations"`
	DefaultVerification model.VerificationMethod               `mapstructure:"default_verification"`
	AgentDefaults      map[model.AgentRole]AgentRalphDefaults `mapstructure:"agent_defaults"`
}

// Config is the fully resolved, typed project configuration.
type Config struct {
	ProjectName string          `mapstructure:"-"`
	Agents      AgentsConfig    `mapstructure:"agents"`
	Execution   ExecutionConfig `mapstructure:"execution"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Ralph       RalphConfig     `mapstructure:"ralph"`

	// Root is the project root this config was loaded from. Not part of
	// the YAML document; set by Load.
	Root string `mapstructure:"-"`
}

// Defaults returns the configuration that applies when config.yaml omits a
// key, per the recognised-keys table.
func Defaults(root string) *Config {
	return &Config{
		ProjectName: filepath.Base(root),
		Root:        root,
		Agents: AgentsConfig{
			MaxParallel:  6,
			DefaultModel: "sonnet",
			Roles:        map[model.AgentRole]AgentModelConfig{},
		},
		Execution: ExecutionConfig{
			MaxIterations: 10,
			TimeoutMin:    10,
			WorktreeDir:   ".worktrees",
		},
		Database: DatabaseConfig{
			Path:      filepath.Join(dotDir(root), appName+".db"),
			SyncJSONL: true,
		},
		Ralph: RalphConfig{
			Enabled:             true,
			MaxIterations:       10,
			DefaultVerification: model.MethodStringMatch,
			AgentDefaults:       map[model.AgentRole]AgentRalphDefaults{},
		},
	}
}

func dotDir(root string) string {
	return filepath.Join(root, "."+appName)
}

// DotDir returns the project's dotfile directory, <root>/.ralph.
func DotDir(root string) string {
	return dotDir(root)
}

// Load reads .ralph/config.yaml under root, applying defaults for any
// recognised key that is absent. Unknown keys are ignored. The returned
// viper instance is discarded after Unmarshal; nothing is kept as package
// state, so concurrent Load calls for distinct roots never interfere.
func Load(root string) (*Config, error) {
	cfg := Defaults(root)

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dotDir(root))
	applyDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", filepath.Join(dotDir(root), "config.yaml"), err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Root = root
	if cfg.ProjectName == "" {
		cfg.ProjectName = filepath.Base(root)
	}
	return cfg, nil
}

// Watch installs a callback invoked whenever config.yaml changes on disk,
// for the long-running `ralph worker` process. Grounded on the teacher's
// viper-backed config layer; fsnotify is viper's own indirect dependency.
func Watch(root string, onChange func(*Config)) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dotDir(root))
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: read for watch: %w", err)
		}
	}
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := Load(root)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func applyDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("agents.max_parallel", cfg.Agents.MaxParallel)
	v.SetDefault("agents.default_model", cfg.Agents.DefaultModel)
	v.SetDefault("execution.max_iterations", cfg.Execution.MaxIterations)
	v.SetDefault("execution.timeout_minutes", cfg.Execution.TimeoutMin)
	v.SetDefault("execution.worktree_dir", cfg.Execution.WorktreeDir)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.sync_jsonl", cfg.Database.SyncJSONL)
	v.SetDefault("ralph.enabled", cfg.Ralph.Enabled)
	v.SetDefault("ralph.max_iterations", cfg.Ralph.MaxIterations)
	v.SetDefault("ralph.default_verification", string(cfg.Ralph.DefaultVerification))
}
