package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carebridge/enrollhooks/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hookctl",
	Short: "Enrollment webhook service CLI",
	Long: `hookctl is the command-line interface for the enrollment webhook
delivery service.

It registers and manages webhook subscriptions, inspects delivery health
and circuit breaker state, and dispatches test events.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.hookctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.hookctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "webhook service URL (default http://localhost:8080)")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(rotateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(deliveriesCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(versionCmd)
}

func api() *client.Client {
	return client.New(serverURL)
}

func cmdCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// ── register ─────────────────────────────────────────────────────────────────

var (
	registerEvents []string
	registerSecret string
)

var registerCmd = &cobra.Command{
	Use:   "register <https-url>",
	Short: "Register a webhook subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdCtx()
		defer cancel()

		res, err := api().RegisterWebhook(ctx, &client.RegisterWebhookRequest{
			URL:    args[0],
			Events: registerEvents,
			Secret: registerSecret,
		})
		if err != nil {
			return err
		}

		fmt.Printf("webhook_id: %s\n", res.WebhookID)
		fmt.Printf("secret:     %s\n", res.Secret)
		fmt.Println("\nStore the secret securely. It will not be shown again.")
		return nil
	},
}

func init() {
	registerCmd.Flags().StringSliceVar(&registerEvents, "events", nil, "event types to subscribe to (comma separated)")
	registerCmd.Flags().StringVar(&registerSecret, "secret", "", "signing secret (generated when omitted)")
	_ = registerCmd.MarkFlagRequired("events")
}

// ── list ─────────────────────────────────────────────────────────────────────

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active webhook subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdCtx()
		defer cancel()

		hooks, err := api().ListWebhooks(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tEVENTS\tCREATED")
		for _, h := range hooks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				h.ID, h.URL, strings.Join(h.Events, ","), h.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

// ── delete ───────────────────────────────────────────────────────────────────

var deleteCmd = &cobra.Command{
	Use:   "delete <webhook-id>",
	Short: "Soft-delete a webhook subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdCtx()
		defer cancel()

		if err := api().DeleteWebhook(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

// ── rotate-secret ────────────────────────────────────────────────────────────

var rotateCmd = &cobra.Command{
	Use:   "rotate-secret <webhook-id>",
	Short: "Rotate a webhook's signing secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdCtx()
		defer cancel()

		secret, err := api().RotateSecret(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("new_secret: %s\n", secret)
		fmt.Println("\nThe previous secret is no longer valid.")
		return nil
	},
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status <webhook-id>",
	Short: "Show delivery health and circuit breaker state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdCtx()
		defer cancel()

		st, err := api().DeliveryStatus(ctx, args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "delivery_status:\t%s\n", st.DeliveryStatus)
		fmt.Fprintf(w, "circuit:\t%s (%d consecutive failures)\n",
			st.Circuit.State, st.Circuit.ConsecutiveFailures)
		if st.Circuit.OpenedAt != nil {
			fmt.Fprintf(w, "opened_at:\t%s\n", st.Circuit.OpenedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(w, "total_deliveries:\t%d\n", st.HealthMetrics.TotalDeliveries)
		fmt.Fprintf(w, "successful:\t%d\n", st.HealthMetrics.SuccessfulDeliveries)
		fmt.Fprintf(w, "average_latency:\t%.1fms\n", st.HealthMetrics.AverageLatencyMs)
		fmt.Fprintf(w, "health_score:\t%.2f\n", st.HealthMetrics.HealthScore)
		return w.Flush()
	},
}

// ── deliveries ───────────────────────────────────────────────────────────────

var deliveriesLimit int

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries <webhook-id>",
	Short: "Show the recent delivery attempts for a webhook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdCtx()
		defer cancel()

		attempts, err := api().ListDeliveries(ctx, args[0], deliveriesLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT\tATTEMPT\tSTATUS\tHTTP\tLATENCY\tCREATED")
		for _, a := range attempts {
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%dms\t%s\n",
				a.EventType, a.Attempt, a.Status, a.HTTPStatus, a.LatencyMs,
				a.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	deliveriesCmd.Flags().IntVar(&deliveriesLimit, "limit", 20, "maximum attempts to show")
}

// ── test ─────────────────────────────────────────────────────────────────────

var testCmd = &cobra.Command{
	Use:   "test <webhook-id>",
	Short: "Trigger a synchronous test delivery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdCtx()
		defer cancel()

		res, err := api().TestWebhook(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("result: %s (HTTP %d, %dms)\n", res.Result, res.HTTPStatus, res.LatencyMs)
		if res.Error != "" {
			fmt.Printf("error:  %s\n", res.Error)
		}
		return nil
	},
}

// ── events ───────────────────────────────────────────────────────────────────

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List supported event types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdCtx()
		defer cancel()

		events, err := api().SupportedEvents(ctx)
		if err != nil {
			return err
		}
		for _, e := range events {
			fmt.Println(e)
		}
		return nil
	},
}

// ── dispatch ─────────────────────────────────────────────────────────────────

var dispatchData string

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <event-type>",
	Short: "Dispatch a domain event to all matching webhooks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdCtx()
		defer cancel()

		if !json.Valid([]byte(dispatchData)) {
			return fmt.Errorf("--data must be valid JSON")
		}

		report, err := api().DispatchEvent(ctx, args[0], json.RawMessage(dispatchData))
		if err != nil {
			return err
		}
		fmt.Printf("matched: %d  delivered: %d  failed: %d  skipped: %d\n",
			report.Matched, report.Delivered, report.Failed, report.Skipped)
		return nil
	},
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchData, "data", "{}", "event payload as JSON")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the hookctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("hookctl", version)
	},
}
