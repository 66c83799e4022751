package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tabkeeper"
	"pkt.systems/tabkeeper/internal/appconfig"
)

const stopTimeout = 10 * time.Second

func newRunCmd(cfgPath *string) *cobra.Command {
	var noChrome bool
	var noHTTP bool
	var startup string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Restore the session and keep it saved until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			serverCfg := tabkeeper.ConfigFromApp(cfg)
			if mode := strings.TrimSpace(startup); mode != "" {
				serverCfg.Startup = mode
			}
			var opts []tabkeeper.ServerOption
			if !noHTTP {
				opts = append(opts, tabkeeper.WithHTTP())
			}
			if !noChrome {
				opts = append(opts, tabkeeper.WithChrome())
			}
			browser, err := tabkeeper.New(serverCfg, tabkeeper.ServerDeps{Logger: logger}, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := browser.Start(ctx); err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
				defer cancel()
				if err := browser.Stop(stopCtx); err != nil {
					logger.Warn("browser stop failed", "err", err)
				}
			}()
			return browser.Wait()
		},
	}
	cmd.Flags().BoolVar(&noChrome, "no-chrome", false, "run without a Chrome backend (tabs stay unloaded)")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "disable the HTTP API")
	cmd.Flags().StringVar(&startup, "startup", "", "override session.startup (restore, recovery or fresh)")
	return cmd
}
