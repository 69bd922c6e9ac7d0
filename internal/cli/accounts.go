package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pysugar/gmail-agent-nexus/internal/auth/token"
	"github.com/pysugar/gmail-agent-nexus/internal/db/models"
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List connected Gmail accounts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), stderr())
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.store.List(cmd.Context())
		if err != nil {
			return err
		}
		return printAccounts(cmd.OutOrStdout(), accounts, time.Now())
	},
}

var refreshAccountID string

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh access tokens",
	Long: `Refresh access tokens for stale accounts, or force a refresh of one
account with --account.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, stderr())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		if refreshAccountID != "" {
			acc, err := a.tokens.ForceRefresh(ctx, refreshAccountID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "refreshed %s (%s)\n", acc.ID, acc.EmailOrEmpty())
			return nil
		}

		results, err := a.tokens.RefreshAll(ctx)
		if err != nil {
			return err
		}
		return printRefreshResults(out, results)
	},
}

func init() {
	refreshCmd.Flags().StringVar(&refreshAccountID, "account", "", "account id to force-refresh")
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(refreshCmd)
}

func printAccounts(w io.Writer, accounts []models.AccountToken, now time.Time) error {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No accounts connected.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tEXPIRES\tREFRESH\tUPDATED")
	for i := range accounts {
		acc := &accounts[i]
		email := acc.EmailOrEmpty()
		if email == "" {
			email = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			acc.ID, email, expiry(acc, now), acc.HasRefreshToken(), acc.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func expiry(acc *models.AccountToken, now time.Time) string {
	switch {
	case acc.ExpiresAt == nil:
		return "never"
	case !token.IsFresh(acc, now):
		return "stale"
	default:
		return acc.ExpiresAt.Sub(now).Round(time.Second).String()
	}
}

func printRefreshResults(w io.Writer, results []token.RefreshResult) error {
	if len(results) == 0 {
		fmt.Fprintln(w, "No accounts connected.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tRESULT")
	for _, r := range results {
		status := "fresh"
		switch {
		case r.Err != nil:
			status = "error: " + r.Err.Error()
		case r.Refreshed:
			status = "refreshed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Account.ID, r.Account.EmailOrEmpty(), status)
	}
	return tw.Flush()
}
