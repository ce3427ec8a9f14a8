package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/channel"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/channel/email"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/channel/irc"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/gateway"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/routing"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway, messaging channels and feedback workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")
	return cmd
}

// serve runs until ctx is cancelled or the gateway fails.
func serve(ctx context.Context, cfg config.Config) error {
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}

	channels := channel.NewRegistry(a.log)
	if cfg.Channels.IRC != nil {
		_ = channels.Register(irc.New(*cfg.Channels.IRC, a.log))
	}
	if cfg.Channels.Email != nil {
		_ = channels.Register(email.New(*cfg.Channels.Email, a.log))
	}

	opts := []gateway.ServerOption{
		gateway.WithService(a.svc),
		gateway.WithHooks(a.hooks),
		gateway.WithChannels(channels),
		gateway.WithFeedbackStats(a.feedback.Stats),
	}
	if a.queue != nil {
		opts = append(opts, gateway.WithEscalations(a.queue))
	}
	if raw, err := config.LoadRaw(paths.Config); err == nil {
		opts = append(opts, gateway.WithConfigRaw(raw))
	}
	srv, err := gateway.New(cfg, a.log, opts...)
	if err != nil {
		a.close(context.Background())
		return err
	}

	router := routing.NewRouter(channels, a.svc, requestTimeout(cfg.Pipeline), a.log)
	router.SetHooks(a.hooks)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Escalation.HotReload {
		pw, err := config.NewPolicyWatcher(paths.Config, a.policy, a.log)
		if err != nil {
			a.log.Warn().Err(err).Msg("escalation hot reload disabled")
		} else {
			g.Go(func() error { return pw.Run(gctx) })
		}
	}
	if channels.Count() > 0 {
		router.Wire(gctx)
		channels.StartAll(gctx)
		a.log.Info().Strs("channels", channels.List()).Msg("message routing active")
	}
	g.Go(func() error { return srv.Start(gctx) })

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := channels.StopAll(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("channels did not stop in time")
	}
	router.Wait()
	srv.Close()
	a.close(shutdownCtx)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// requestTimeout bounds one channel message: every synchronous stage at
// its timeout, once per allowed conflict re-run.
func requestTimeout(p config.PipelineConfig) time.Duration {
	t := p.StageTimeouts
	per := t.Intent + max(t.Knowledge, t.Emotion) + t.Anomaly
	return per * time.Duration(p.ConflictRetries+1)
}
