package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/auth"
	"github.com/iho/treasury/internal/infrastructure/postgres"
)

// errNotReconciled makes the process exit non-zero when a check finds drift.
var errNotReconciled = errors.New("reconciliation found discrepancies")

type apiOptions struct {
	baseURL string
	token   string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &apiOptions{}

	rootCmd := &cobra.Command{
		Use:           "treasury-cli",
		Short:         "Treasury CLI tool",
		Long:          `A command line interface for the treasury ledger API and its database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("TREASURY_URL", "http://localhost:8080"), "Base URL of the treasury API")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("TREASURY_TOKEN"), "Bearer token for the API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	treasuriesCmd := &cobra.Command{
		Use:   "treasuries",
		Short: "Treasury operations",
	}
	treasuriesCmd.AddCommand(listTreasuriesCmd(opts))

	rootCmd.AddCommand(
		treasuriesCmd,
		statsCmd(opts),
		reconcileCmd(opts),
		tokenCmd(),
		migrateCmd(),
	)
	return rootCmd
}

func listTreasuriesCmd(opts *apiOptions) *cobra.Command {
	var (
		treasuryType string
		active       string
		page         int
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List treasuries",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if treasuryType != "" {
				query.Set("type", strings.ToUpper(treasuryType))
			}
			if active != "" {
				query.Set("active", active)
			}
			query.Set("page", strconv.Itoa(page))
			query.Set("limit", strconv.Itoa(limit))

			var result dto.PageResponse[dto.TreasuryResponse]
			if err := opts.get("/api/v1/treasuries?"+query.Encode(), &result); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tBALANCE\tACTIVE")
			for _, t := range result.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", t.ID, truncate(t.Name, 32), t.Type, t.Balance.StringFixed(2), t.IsActive)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "page %d/%d, %d total\n", result.Page, result.TotalPages, result.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&treasuryType, "type", "", "Filter by type (GENERAL, COMPANY, BANK)")
	cmd.Flags().StringVar(&active, "active", "", "Filter by active flag (true, false)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", domain.DefaultPageSize, "Page size")
	return cmd
}

func statsCmd(opts *apiOptions) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show balances grouped by treasury type",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats dto.StatsResponse
			if err := opts.get("/api/v1/stats?active="+strconv.FormatBool(activeOnly), &stats); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tCOUNT\tBALANCE")
			for _, t := range stats.ByType {
				fmt.Fprintf(w, "%s\t%d\t%s\n", t.Type, t.Count, t.Balance.StringFixed(2))
			}
			fmt.Fprintf(w, "TOTAL\t%d\t%s\n", stats.Count, stats.Total.StringFixed(2))
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only include active treasuries")
	return cmd
}

func reconcileCmd(opts *apiOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reconcile [treasury-id]",
		Short: "Replay the transaction log and compare it with cached balances",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				var result dto.ReconciliationResponse
				if err := opts.get("/api/v1/treasuries/"+url.PathEscape(args[0])+"/reconciliation", &result); err != nil {
					return err
				}
				if asJSON {
					printJSON(out, result)
				} else {
					printReconciliation(out, &result)
				}
				if !result.IsReconciled {
					return errNotReconciled
				}
				return nil
			}

			var report dto.ReconciliationReportResponse
			if err := opts.get("/api/v1/reconciliation", &report); err != nil {
				return err
			}
			if asJSON {
				printJSON(out, report)
			} else {
				fmt.Fprintf(out, "Reconciled %d/%d treasuries\n", report.ReconciledTreasuries, report.TotalTreasuries)
				for _, d := range report.Discrepancies {
					printReconciliation(out, d)
				}
				fmt.Fprintf(out, "Stats consistent: %t\n", report.StatsConsistent)
			}
			if len(report.Discrepancies) > 0 || !report.StatsConsistent {
				return errNotReconciled
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON result")
	return cmd
}

func printReconciliation(out io.Writer, r *dto.ReconciliationResponse) {
	status := "OK"
	if !r.IsReconciled {
		status = "MISMATCH"
	}
	fmt.Fprintf(out, "%s %s recorded=%s calculated=%s difference=%s transactions=%d\n",
		status, r.TreasuryID, r.RecordedBalance, r.CalculatedBalance, r.Difference, r.TransactionCount)
	if m := r.FirstMismatch; m != nil {
		fmt.Fprintf(out, "  first mismatch at sequence %d (%s): stored=%s replayed=%s\n",
			m.Sequence, m.TransactionID, m.Stored, m.Replayed)
	}
}

func tokenCmd() *cobra.Command {
	var (
		secret   string
		userID   string
		email    string
		role     string
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("a secret is required (--secret or JWT_SECRET)")
			}
			token, err := auth.NewJWTManager(secret, duration).Generate(&domain.User{
				ID:    userID,
				Email: email,
				Role:  domain.Role(role),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC secret shared with the server")
	cmd.Flags().StringVar(&userID, "user", "dev", "Subject recorded as created_by")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleOperator), "Role (admin, operator, viewer)")
	cmd.Flags().DurationVar(&duration, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func migrateCmd() *cobra.Command {
	var (
		databaseURL string
		path        string
	)

	newMigrator := func() *postgres.Migrator {
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		return postgres.NewMigrator(databaseURL, path, log)
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	cmd.PersistentFlags().StringVar(&path, "path", envOr("MIGRATIONS_PATH", "migrations"), "Directory containing migrations")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return newMigrator().Up()
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return newMigrator().Down()
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				version, dirty, err := newMigrator().Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			},
		},
	)
	return cmd
}

// get fetches path from the API and decodes the JSON body into dst.
func (o *apiOptions) get(path string, dst any) error {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(o.baseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	client := &http.Client{Timeout: o.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr dto.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d): %s", apiErr.Error, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(body)), 200))
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
