package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/easeaico/project-nudge/internal/app"
	"github.com/easeaico/project-nudge/internal/config"
	"github.com/easeaico/project-nudge/internal/patterns"
	"github.com/easeaico/project-nudge/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the pgvector extension and the memory and trait tables",
	RunE:  runMigrate,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and test the storage connection",
	RunE:  runValidate,
}

var patternsCmd = &cobra.Command{
	Use:   "patterns [file]",
	Short: "Validate a pattern table file, or print the built-in tables",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPatterns,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase every memory entry and trait of a user",
	RunE:  runReset,
}

func init() {
	migrateCmd.Flags().Bool("dry-run", false, "show what would be migrated without executing")
	validateCmd.Flags().Bool("skip-connect", false, "only validate the configuration")
	resetCmd.Flags().String("user", "", "user id to erase")
	_ = resetCmd.MarkFlagRequired("user")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("migrate requires storage.driver=postgres, got %q", cfg.Storage.Driver)
	}

	out := cmd.OutOrStdout()
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		fmt.Fprintln(out, "Dry run mode - no changes will be made")
		fmt.Fprintln(out, "  - Would create extension vector")
		fmt.Fprintln(out, "  - Would migrate tables memory_entries, user_traits")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	store, err := repository.NewStore(ctx, cfg.Storage.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintln(out, "Migrating tables...")
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "  ✓ memory_entries, user_traits migrated")
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validating configuration...")

	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return err
	}
	printSettings(out, cfg)

	if skip, _ := cmd.Flags().GetBool("skip-connect"); skip {
		return nil
	}

	fmt.Fprintln(out, "\nTesting storage connection...")
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	store, err := app.OpenStorage(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(out, "  ✗ %s: %v\n", cfg.Storage.Driver, err)
		return err
	}
	defer store.Close()
	fmt.Fprintf(out, "  ✓ %s storage reachable\n", cfg.Storage.Driver)
	return nil
}

func printSettings(out io.Writer, cfg *config.Config) {
	rows := []struct {
		name  string
		value string
	}{
		{"Storage driver", cfg.Storage.Driver},
		{"Database URL", maskDatabaseURL(cfg.Storage.DatabaseURL)},
		{"Lock driver", cfg.Lock.Driver},
		{"LLM provider", cfg.LLM.Provider},
		{"LLM model", cfg.LLM.Model},
		{"LLM API key", maskValue(cfg.LLM.APIKey)},
		{"Embeddings", maskValue(cfg.LLM.GoogleAPIKey)},
		{"Pattern file", cfg.Patterns.File},
	}
	for _, r := range rows {
		if r.value == "" {
			fmt.Fprintf(out, "  - %s: not set\n", r.name)
			continue
		}
		fmt.Fprintf(out, "  ✓ %s: %s\n", r.name, r.value)
	}
}

func runPatterns(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		_, err := out.Write(patterns.DefaultYAML())
		return err
	}
	set, err := patterns.Load(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ %s is valid (version %d, %d tones)\n", args[0], set.Version, len(set.Tactics))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("--user is required")
	}
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Pipeline.ResetUser(cmd.Context(), userID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ user %s erased\n", userID)
	return nil
}

func maskValue(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "****" + value[len(value)-4:]
}

func maskDatabaseURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
