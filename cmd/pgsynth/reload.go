package pgsynth

import (
	"errors"
	"fmt"

	"github.com/edgeflare/pgsynth/pkg/trigger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newReloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask running servers to regenerate",
		Long: `Sends a reload request to running servers: a notification on reload.channel
when a database is configured and a message on reload.nats.subject when a NATS
server is configured.`,
		Args: cobra.NoArgs,
		RunE: runReload,
	}
	f := cmd.Flags()
	f.String("reload.channel", "pgsynth", "notification channel")
	f.String("reload.nats.url", "", "NATS server to publish on")
	f.String("reload.nats.subject", "", "NATS subject carrying reload requests")
	return cmd
}

func runReload(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	sent := 0
	if cfg.Database.ConnString != "" {
		pool, err := connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		if _, err := pool.Exec(ctx, "SELECT pg_notify($1, $2)", cfg.Reload.Channel, trigger.ReloadPayload); err != nil {
			return fmt.Errorf("notify %q: %w", cfg.Reload.Channel, err)
		}
		logger.Info("sent reload notification", zap.String("channel", cfg.Reload.Channel))
		sent++
	}
	if n := cfg.Reload.NATS; n.URL != "" {
		if err := trigger.Announce(n.URL, n.Subject); err != nil {
			return err
		}
		logger.Info("published reload request", zap.String("subject", n.Subject))
		sent++
	}
	if sent == 0 {
		return errors.New("reload needs database.conn_string or reload.nats.url")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reload requested (%d)\n", sent)
	return nil
}
