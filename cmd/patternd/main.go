// Package main implements the patternd CLI for operating the pattern
// learning engine against its embedded store.
package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/badgerstore"
	"github.com/fyrsmithlabs/patternd/internal/config"
	"github.com/fyrsmithlabs/patternd/internal/logging"
	"github.com/fyrsmithlabs/patternd/internal/patternbank"
)

var (
	// configPath is the YAML configuration file, empty for the default.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "patternd",
	Short: "Pattern learning and confidence engine operations",
	Long: `patternd learns which design-code enhancements a project's users accept,
scores how confident the system should be in each learned pattern, and
serves ranked suggestions. Commands operate directly on the local store.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/patternd/config.yaml)")
	rootCmd.AddCommand(observeCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(runCmd)
}

// runtimeEnv bundles everything a command needs: configuration, logger,
// store, and the service on top.
type runtimeEnv struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *badgerstore.Store
	service *patternbank.Service
}

// setup loads configuration and wires the service. Callers must call
// close when done.
func setup() (*runtimeEnv, func(), error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Fields: map[string]string{"service": "patternd"},
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := badgerstore.Open(badgerstore.Options{
		Path:     cfg.Store.Path,
		InMemory: cfg.Store.InMemory,
	}, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	service, err := patternbank.NewService(store, cfg.PatternbankConfig(), nil, logger)
	if err != nil {
		_ = store.Close()
		_ = logger.Sync()
		return nil, nil, err
	}

	env := &runtimeEnv{cfg: cfg, logger: logger, store: store, service: service}
	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing store", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return env, closeFn, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
