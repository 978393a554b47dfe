package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-intel/internal/config"
	"github.com/sells-group/listing-intel/internal/gateway"
	"github.com/sells-group/listing-intel/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the listing analysis API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initIntel(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(env.Stats, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr:              listenAddr(cfg.Server, servePort),
			Handler:           gateway.NewRouter(env.Orchestrator, gateway.OptionsFromConfig(cfg)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("graceful shutdown failed", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// listenAddr joins the configured host with the flag port when set, else the
// configured port.
func listenAddr(sc config.ServerConfig, flagPort int) string {
	port := flagPort
	if port == 0 {
		port = sc.Port
	}
	if port == 0 {
		port = 8080
	}
	return net.JoinHostPort(sc.Host, strconv.Itoa(port))
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config or PORT)")
	rootCmd.AddCommand(serveCmd)
}
