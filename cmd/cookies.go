package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/extract-cli/internal/resilience"
)

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Inspect and refresh stored session cookies",
}

// cookieStatus is one row of `cookies status` output.
type cookieStatus struct {
	Domain      string    `json:"domain"`
	Count       int       `json:"count"`
	RefreshedAt time.Time `json:"refreshedAt"`
	Stale       bool      `json:"stale"`
	Missing     bool      `json:"missing,omitempty"`
}

var cookiesStatusCmd = &cobra.Command{
	Use:   "status <domain>...",
	Short: "Show snapshot age and cookie counts per domain",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initExtractor("extract")
		if err != nil {
			return err
		}

		statuses := make([]cookieStatus, 0, len(args))
		for _, domain := range args {
			st := cookieStatus{Domain: domain}
			snap, err := env.Cookies.Load(domain)
			if err != nil {
				return err
			}
			if snap == nil {
				st.Missing = true
			} else {
				st.Count = snap.Count
				st.RefreshedAt = snap.RefreshedAt
				st.Stale = env.Cookies.Stale(snap)
			}
			statuses = append(statuses, st)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	},
}

var cookiesRefreshCmd = &cobra.Command{
	Use:   "refresh <domain>...",
	Short: "Capture fresh session cookies via the bridge browser",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initExtractor("extract")
		if err != nil {
			return err
		}
		if env.Bridge == nil {
			return eris.New("cookies: refresh needs the bridge; set EXTRACT_BRIDGE_BASE_URL and connect a browser")
		}

		// Operator command, so transient bridge hiccups are retried with
		// backoff. The extraction pipeline itself refreshes at most once.
		retryCfg := resilience.DefaultRetryConfig()
		retryCfg.OnRetry = resilience.RetryLogger("bridge", "refresh-cookies")

		for _, domain := range args {
			err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
				return env.Cookies.Refresh(ctx, domain)
			})
			if err != nil {
				return err
			}
			zap.L().Info("cookies refreshed", zap.String("domain", domain))
		}
		return nil
	},
}

func init() {
	cookiesCmd.AddCommand(cookiesStatusCmd)
	cookiesCmd.AddCommand(cookiesRefreshCmd)
	rootCmd.AddCommand(cookiesCmd)
}
