// Package config loads the YAML configuration of the bigfile tools.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/mvaleed/bigfile/internal/archetype"
	"github.com/mvaleed/bigfile/internal/bigfile"
)

type Config struct {
	Log    LogConfig    `yaml:"log"`
	Source SourceConfig `yaml:"source"`
	Loader LoaderConfig `yaml:"loader"`
	Tree   TreeConfig   `yaml:"tree"`
	Types  []TypeConfig `yaml:"types"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type SourceConfig struct {
	Mmap bool `yaml:"mmap"`
	// MaxInflatedSize caps a zipped payload after inflation, in bytes.
	MaxInflatedSize int64 `yaml:"max_inflated_size"`
}

type LoaderConfig struct {
	// Budget is the number of keys visited per step.
	Budget int `yaml:"budget"`
	// StepTimeSlice bounds the wall time of one step; zero disables it.
	StepTimeSlice time.Duration `yaml:"step_time_slice"`
}

type TreeConfig struct {
	PathCacheSize int `yaml:"path_cache_size"`
}

// TypeConfig names a type code. Retain keeps a copy of the payload body in
// memory while the asset is loaded.
type TypeConfig struct {
	Code   uint16 `yaml:"code"`
	Name   string `yaml:"name"`
	Retain bool   `yaml:"retain"`
}

func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info"},
		Source: SourceConfig{Mmap: true, MaxInflatedSize: bigfile.DefaultMaxInflatedSize},
		Loader: LoaderConfig{Budget: 256},
		Tree:   TreeConfig{PathCacheSize: 1024},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	if c.Source.MaxInflatedSize < 1 {
		return errors.Errorf("source.max_inflated_size must be at least 1, got %d", c.Source.MaxInflatedSize)
	}
	if c.Loader.Budget < 1 {
		return errors.Errorf("loader.budget must be at least 1, got %d", c.Loader.Budget)
	}
	if c.Loader.StepTimeSlice < 0 {
		return errors.Errorf("loader.step_time_slice must not be negative, got %s", c.Loader.StepTimeSlice)
	}
	if c.Tree.PathCacheSize < 1 {
		return errors.Errorf("tree.path_cache_size must be at least 1, got %d", c.Tree.PathCacheSize)
	}
	seen := make(map[uint16]bool, len(c.Types))
	for _, t := range c.Types {
		if seen[t.Code] {
			return errors.Errorf("types: code 0x%04x listed twice", t.Code)
		}
		seen[t.Code] = true
	}
	return nil
}

// Registry builds the archetype registry described by Types.
func (c Config) Registry() *archetype.Registry {
	regs := make([]archetype.Registration, 0, len(c.Types))
	for _, t := range c.Types {
		reg := archetype.Registration{Code: bigfile.TypeCode(t.Code), Name: t.Name}
		if t.Retain {
			reg.New = archetype.NewBlob
		}
		regs = append(regs, reg)
	}
	return archetype.NewRegistry(regs...)
}

// Logger builds a zap logger at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// ContainerOptions translates the source and tree settings.
func (c Config) ContainerOptions(log *zap.Logger) []bigfile.Option {
	opts := []bigfile.Option{
		bigfile.WithLogger(log),
		bigfile.WithPathCacheSize(c.Tree.PathCacheSize),
		bigfile.WithMaxInflatedSize(c.Source.MaxInflatedSize),
	}
	if !c.Source.Mmap {
		opts = append(opts, bigfile.WithoutMmap())
	}
	return opts
}
