package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"mindpalace/backend/internal/anon"
	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/store"
	"mindpalace/backend/pkg/secrets"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete chat messages past their retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, err := openStore()
		if err != nil {
			return err
		}
		retention, err := store.NewRetention(st, cfg.Retention.Cron, cliLogger())
		if err != nil {
			return err
		}
		n, err := retention.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]int64{"purged": n})
	},
}

var alertsFlags struct {
	institution string
	status      string
	limit       int
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List the newest alerts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		alerts, err := st.ListRecentAlerts(cmd.Context(), store.AlertFilter{
			InstitutionCode: alertsFlags.institution,
			Status:          models.AlertStatus(alertsFlags.status),
			Limit:           alertsFlags.limit,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, alerts)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve ALERT_ID",
	Short: "Mark an alert resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		alert, err := st.UpdateAlertStatus(cmd.Context(), args[0], models.AlertResolved)
		if err != nil {
			return err
		}
		return printJSON(cmd, alert)
	},
}

var anonFlags struct {
	institution string
	student     string
}

var anonCmd = &cobra.Command{
	Use:   "anon-id",
	Short: "Print the anonymous id for a student",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, err := openStore()
		if err != nil {
			return err
		}
		log := cliLogger()

		vault, err := secrets.NewVaultManager(secrets.VaultConfigFromEnv(), log)
		if err != nil {
			return err
		}
		defer vault.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		salt, err := vault.GetSecret(ctx, cfg.Security.AnonSaltKey)
		if err != nil {
			return err
		}
		svc, err := anon.NewService(st, salt, nil, log)
		if err != nil {
			return err
		}
		id, err := svc.Assign(ctx, anonFlags.institution, anonFlags.student)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]string{"anonymousId": id})
	},
}

func init() {
	alertsCmd.Flags().StringVar(&alertsFlags.institution, "institution", "", "institution code")
	alertsCmd.Flags().StringVar(&alertsFlags.status, "status", "", "open or resolved")
	alertsCmd.Flags().IntVar(&alertsFlags.limit, "limit", 50, "maximum alerts")

	anonCmd.Flags().StringVar(&anonFlags.institution, "institution", "", "institution code")
	anonCmd.Flags().StringVar(&anonFlags.student, "student", "", "student id")
	_ = anonCmd.MarkFlagRequired("student")

	rootCmd.AddCommand(purgeCmd, alertsCmd, resolveCmd, anonCmd)
}
