package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/dex-lang/dex-go/internal/api"
	"github.com/dex-lang/dex-go/internal/envconfig"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve libDex over HTTP",
		Long: `Start an HTTP server exposing evaluation, signature inspection and jaxpr
round trips. Every request runs in a fork of the session context seeded
with DEX_PRELUDE.

The listen address defaults to DEX_HOST, or 127.0.0.1:8080.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, addr, cmd)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $DEX_HOST)")

	return cmd
}

func listenAddr(flag string) (string, error) {
	if flag == "" {
		return envconfig.ListenAddr()
	}
	if _, _, err := net.SplitHostPort(flag); err != nil {
		return "", fmt.Errorf("invalid --addr %q: %w", flag, err)
	}
	return flag, nil
}

func runServe(rootOpts *RootOptions, addrFlag string, cmd *cobra.Command) error {
	f := newFormatter(rootOpts, cmd)

	address, err := listenAddr(addrFlag)
	if err != nil {
		return reportError(f, ErrCodeUsage, ExitCommandError, err)
	}
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return reportError(f, ErrCodeUsage, ExitCommandError, err)
	}
	defer ln.Close()

	s, cleanup, err := openSession(rootOpts, f)
	if err != nil {
		return err
	}
	defer cleanup()

	if !envconfig.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := slog.Default()
	srv := &http.Server{
		Handler:           api.NewServer(s, logger).Handler(),
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("listening", "addr", ln.Addr().String(), "library", s.Runtime().Path())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return reportError(f, ErrCodeServer, ExitFailure, err)
	}
	return nil
}
