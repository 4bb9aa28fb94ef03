// Package config holds the settings shared by the classifier, the
// workspace scanner and the refactoring engine. A Config is always passed
// explicitly; nothing reads it from package state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the optional per-workspace override file.
const FileName = ".polyrefactor.yaml"

type Config struct {
	// Root is the absolute workspace root. Every path handled by the
	// engine must resolve inside it.
	Root string `yaml:"-"`

	// ExcludedDirs are directory names skipped at any depth.
	ExcludedDirs []string `yaml:"excluded_dirs"`

	// RespectGitignore makes the scanner skip paths matched by the
	// workspace's top-level .gitignore.
	RespectGitignore bool `yaml:"respect_gitignore"`

	// MaxFileSize skips larger files during workspace scans. 0 disables the limit.
	MaxFileSize int64 `yaml:"max_file_size"`

	// StateDir holds the change log database. Relative paths are joined
	// to Root.
	StateDir string `yaml:"state_dir"`

	// FormatGo runs gofmt over rewritten Go files.
	FormatGo bool `yaml:"format_go"`

	Inline            InlineConfig            `yaml:"inline"`
	IntroduceVariable IntroduceVariableConfig `yaml:"introduce_variable"`
	Encapsulate       EncapsulateConfig       `yaml:"encapsulate"`
}

type InlineConfig struct {
	MaxCallSites              int `yaml:"max_call_sites"`
	StatementWarningThreshold int `yaml:"statement_warning_threshold"`
}

type IntroduceVariableConfig struct {
	MinLength int `yaml:"min_length"`
	MaxLength int `yaml:"max_length"`
}

type EncapsulateConfig struct {
	RequirePublic bool `yaml:"require_public"`
}

var defaultExcluded = []string{
	".git", ".hg", ".svn", ".idea", ".vscode",
	"node_modules", "vendor", "bin", "obj", "build", "dist", "target",
	"__pycache__", ".venv", "venv", ".tox", ".mypy_cache", ".pytest_cache",
}

// Default returns the built-in settings for root.
func Default(root string) *Config {
	return &Config{
		Root:             root,
		ExcludedDirs:     append([]string(nil), defaultExcluded...),
		RespectGitignore: true,
		MaxFileSize:      4 << 20,
		StateDir:         ".polyrefactor",
		FormatGo:         true,
		Inline: InlineConfig{
			MaxCallSites:              10,
			StatementWarningThreshold: 10,
		},
		IntroduceVariable: IntroduceVariableConfig{
			MinLength: 1,
			MaxLength: 500,
		},
		Encapsulate: EncapsulateConfig{
			RequirePublic: true,
		},
	}
}

// Load returns the defaults for root merged with root/.polyrefactor.yaml
// when that file exists.
func Load(root string) (*Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	cfg := Default(abs)

	data, err := os.ReadFile(filepath.Join(abs, FileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, cfg.Validate()
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", FileName, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}
	cfg.Root = abs
	return cfg, cfg.Validate()
}

// Validate checks the numeric limits.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("config: root is required")
	}
	if c.Inline.MaxCallSites < 1 {
		return fmt.Errorf("config: inline.max_call_sites must be positive, got %d", c.Inline.MaxCallSites)
	}
	if c.IntroduceVariable.MinLength < 1 {
		return fmt.Errorf("config: introduce_variable.min_length must be positive, got %d", c.IntroduceVariable.MinLength)
	}
	if c.IntroduceVariable.MaxLength < c.IntroduceVariable.MinLength {
		return fmt.Errorf("config: introduce_variable.max_length %d below min_length %d",
			c.IntroduceVariable.MaxLength, c.IntroduceVariable.MinLength)
	}
	return nil
}

// IsExcluded reports whether a directory with this base name is skipped.
func (c *Config) IsExcluded(name string) bool {
	for _, d := range c.ExcludedDirs {
		if d == name {
			return true
		}
	}
	return false
}

// StatePath returns the absolute state directory.
func (c *Config) StatePath() string {
	if filepath.IsAbs(c.StateDir) {
		return c.StateDir
	}
	return filepath.Join(c.Root, c.StateDir)
}
