package main

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mvaleed/bigfile/internal/bigfile"
	"github.com/mvaleed/bigfile/internal/config"
	"github.com/mvaleed/bigfile/internal/store"
)

type globalFlags struct {
	configPath string
	logLevel   string
	noMmap     bool
	budget     int
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&g.logLevel, "log-level", "", "log level (overrides config)")
	fs.BoolVar(&g.noMmap, "no-mmap", false, "read the archive through the file instead of a memory map")
	fs.IntVar(&g.budget, "budget", 0, "keys visited per loader step (overrides config)")
}

// env is what every subcommand needs: the merged config and a logger.
type env struct {
	cfg config.Config
	log *zap.Logger
}

func (g *globalFlags) env(fs *pflag.FlagSet) (*env, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if g.noMmap {
		cfg.Source.Mmap = false
	}
	if fs.Changed("budget") {
		cfg.Loader.Budget = g.budget
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := cfg.Logger()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return &env{cfg: cfg, log: log}, nil
}

func (e *env) openStore(path string) (*store.Store, error) {
	return store.Open(path, e.cfg.Registry(),
		store.WithLogger(e.log),
		store.WithContainerOptions(e.cfg.ContainerOptions(e.log)...))
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "bigfile",
		Short:         "Inspect YBIG packed-asset archives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	g.register(root.PersistentFlags())

	root.AddCommand(
		newInfoCmd(g),
		newTreeCmd(g),
		newLsCmd(g),
		newRefsCmd(g),
		newCatCmd(g),
		newWalkCmd(g),
	)
	return root
}

func parseKey(s string) (bigfile.Key, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return bigfile.NoKey, errors.Wrapf(err, "invalid key %q", s)
	}
	return bigfile.Key(v), nil
}

func parseFolder(s string) (bigfile.FolderID, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return bigfile.NoFolder, errors.Wrapf(err, "invalid folder id %q", s)
	}
	return bigfile.FolderID(v), nil
}
