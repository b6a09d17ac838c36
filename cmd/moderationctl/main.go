// Command moderationctl runs moderation maintenance tasks against the
// gateway's database: classifying text offline, purging expired messages,
// listing and resolving alerts and looking up anonymous ids.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mindpalace/backend/internal/store"
	"mindpalace/backend/pkg/config"
	"mindpalace/backend/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "moderationctl",
	Short:         "Maintenance tasks for the MindPalace realtime gateway",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "moderationctl:", err)
		os.Exit(1)
	}
}

// openStore connects with the server's configuration.
func openStore() (*store.GormStore, *config.Config, error) {
	cfg := config.New()
	db, err := config.OpenDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	st := store.NewGormStore(db, store.WithMessageTTL(cfg.Retention.MessageTTL))
	if err := st.Migrate(); err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func cliLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.JSON = false
	cfg.Level = "warn"
	return logger.New(cfg)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
