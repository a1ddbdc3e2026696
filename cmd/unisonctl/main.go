// Package main provides unisonctl, a command line view of the resolution
// engine over the configured store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agenthands/unison/internal/app"
	"github.com/agenthands/unison/internal/config"
	"github.com/agenthands/unison/internal/core"
	"github.com/agenthands/unison/internal/logger"
)

var (
	// configFile is set by the --config flag.
	configFile string

	flagEffectiveTime string
	flagAsOf          string
	flagLineage       bool
	flagDupProcessing bool
	flagExpectedType  string

	// unison is the application built by PersistentPreRunE.
	unison *app.App
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "unisonctl",
	Short: "Inspect entities through the duplicate resolution engine",
	Long: `unisonctl reads entities and relationships from the configured store
and prints them the way callers of the engine see them: known duplicates
merged or replaced by their consolidated entity, relationship lists
collapsed to the cardinality of their type.`,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&flagEffectiveTime, "effective-time", "", "RFC3339 time the result must be effective at")
	rootCmd.PersistentFlags().StringVar(&flagAsOf, "as-of", "", "RFC3339 time to read the store as of")
	rootCmd.PersistentFlags().BoolVar(&flagLineage, "lineage", false, "include entities classified as Memento")
	rootCmd.PersistentFlags().BoolVar(&flagDupProcessing, "duplicate-processing", false, "bypass duplicate masking")
	rootCmd.PersistentFlags().StringVar(&flagExpectedType, "expected-type", "", "fail unless the starting entity has this type")

	rootCmd.AddCommand(entityCmd)
	rootCmd.AddCommand(relationshipsCmd)
	rootCmd.AddCommand(relatedCmd)
	rootCmd.AddCommand(loadCmd)
}

// initApp loads config and builds the engine over the configured store.
func initApp(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	path := configFile
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lg, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	unison, err = app.New(cmd.Context(), cfg, lg)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	return nil
}

func closeApp(ctx context.Context) error {
	if unison == nil {
		return nil
	}
	_ = unison.Logger.Sync()
	err := unison.Close(ctx)
	unison = nil
	return err
}

// engineOptions turns the persistent flags into request options.
func engineOptions() (core.Options, error) {
	opts := core.Options{
		ForLineage:             flagLineage,
		ForDuplicateProcessing: flagDupProcessing,
		ExpectedTypeName:       flagExpectedType,
	}
	var err error
	if opts.EffectiveTime, err = parseTime("effective-time", flagEffectiveTime); err != nil {
		return opts, err
	}
	if opts.AsOfTime, err = parseTime("as-of", flagAsOf); err != nil {
		return opts, err
	}
	return opts, nil
}

func parseTime(flag, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return &t, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
