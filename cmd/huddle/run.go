package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danhigham/huddle/internal/config"
	"github.com/danhigham/huddle/internal/domain"
	"github.com/danhigham/huddle/internal/realtime"
	"github.com/danhigham/huddle/internal/state"
	"github.com/danhigham/huddle/internal/transport"
	"github.com/danhigham/huddle/internal/ui"
)

func newRunCmd(a *app) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the chat TUI (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTUI(cmd.Context(), kind)
		},
	}
	addKindFlag(cmd, &kind)
	return cmd
}

func (a *app) runTUI(ctx context.Context, kindName string) error {
	kind, ok := domain.ParseConversationKind(kindName)
	if !ok {
		return fmt.Errorf("unknown conversation kind %q", kindName)
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("%w (config: %s)", err, config.Path(a.dir))
	}

	session, client, err := a.bootstrap(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("starting session", zap.String("user", session.UserID))

	// Create store (drawFunc is set once the app exists)
	store := state.New(nil)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var tui *ui.App
	mgr := realtime.New(client,
		transport.NewWebSocketDialer(a.cfg.Server.WSURL, a.logger.Named("transport")),
		store,
		realtime.WithLogger(a.logger.Named("realtime")),
		realtime.WithMetrics(reg),
		realtime.OnSessionEnded(func(cause error) { tui.SessionEndedFunc()(cause) }),
		realtime.OnNotification(func(n domain.Notification) { tui.NotificationFunc()(n) }),
	)
	defer mgr.Disconnect()

	tui = ui.NewApp(store, mgr, session, kind)
	store.SetDrawFunc(tui.DrawFunc())

	if addr := a.cfg.MetricsAddr; addr != "" {
		srv := serveMetrics(addr, reg, a.logger.Named("metrics"))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	err = tui.Run()
	if errors.Is(err, domain.ErrUnauthorized) {
		if rmErr := config.RemoveSession(a.sessionPath()); rmErr != nil {
			a.logger.Warn("failed to remove rejected session", zap.Error(rmErr))
		}
		return fmt.Errorf("%w; run huddle login to sign in again", err)
	}
	return err
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}
