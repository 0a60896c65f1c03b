package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/driftguard/internal/httpapi"
	"github.com/Iron-Ham/driftguard/internal/mcpserver"
	"github.com/Iron-Ham/driftguard/internal/metrics"
	"github.com/Iron-Ham/driftguard/internal/persist"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Run the MCP server on stdin/stdout for an agent host. With --http the
local HTTP surface (status, integrity, risk, history, panic, metrics) is
served from the same engine.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "Run only the local HTTP surface",
	Args:  cobra.NoArgs,
	RunE:  runHTTP,
}

func init() {
	serveCmd.Flags().String("http", "", "also serve HTTP on this address (e.g. 127.0.0.1:7733)")
	httpCmd.Flags().String("addr", "", "listen address (default server.http_addr)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(httpCmd)
}

// newRegistry returns a registry with process metrics and the engine
// recorder attached to a's bus.
func newRegistry(a *app) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)
	rec.SetState(a.engine.State())
	rec.Attach(a.engine.Bus())
	return reg
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	lock, err := persist.AcquireLock(a.engine.StateDir(), "serve", a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	reg := newRegistry(a)
	if _, err := a.engine.Initialize(ctx); err != nil {
		return err
	}

	if addr, _ := cmd.Flags().GetString("http"); addr != "" {
		router := httpapi.NewRouter(a.engine, reg, a.logger)
		go func() {
			if err := httpapi.Serve(ctx, addr, router, a.logger); err != nil {
				a.logger.Error("http server failed", "addr", addr, "error", err)
			}
		}()
	}

	srv := mcpserver.New(a.engine, Version, a.logger)
	return srv.Serve(ctx, os.Stdin, os.Stdout)
}

func runHTTP(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	lock, err := persist.AcquireLock(a.engine.StateDir(), "http", a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	reg := newRegistry(a)
	if _, err := a.engine.Initialize(ctx); err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.Server.HTTPAddr
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving http://%s (Ctrl+C to stop)\n", addr)
	return httpapi.Serve(ctx, addr, httpapi.NewRouter(a.engine, reg, a.logger), a.logger)
}
