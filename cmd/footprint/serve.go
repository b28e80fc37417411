package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"footprint/internal/handler"
	"footprint/internal/hub"
	"footprint/internal/watcher"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan API and event stream over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			events := hub.New(a.logger.With("component", "sse"))
			go events.Run(ctx)
			go handler.Forward(ctx, e.bus, events)

			if watch && a.cfgFile != "" {
				w := watcher.New(a.cfgFile, func() { a.reload(e) },
					watcher.WithLogger(a.logger.With("component", "watcher")))
				go func() {
					if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
						a.logger.Warn("config watcher stopped", "error", err)
					}
				}()
			}

			h := handler.NewScanHandler(e.svc, e.registry, a.logger.With("component", "http"))
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(h, events),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server listening", "addr", addr)
				if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down server")
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()

			// end open event streams first so Shutdown does not wait on them
			cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("server shutdown error", "error", err)
			}
			stopRunning(e, a)
			a.logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "HTTP listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload module settings and posture when the config file changes")
	return cmd
}

// stopRunning stops scans still in progress and waits for them to record
// their final status
func stopRunning(e *env, a *app) {
	scans, err := e.svc.List(context.Background())
	if err != nil {
		return
	}
	for _, s := range scans {
		if !e.svc.Running(s.ID) {
			continue
		}
		if err := e.svc.Stop(s.ID); err == nil {
			e.svc.Wait(s.ID)
			a.logger.Info("scan stopped", "scan", s.ID)
		}
	}
}
