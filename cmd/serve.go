package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rmb938/franz-graphql-registry/pkg/appdeployments"
	appDeploymentsRouter "github.com/rmb938/franz-graphql-registry/pkg/http/routers/appdeployments"
	"github.com/rmb938/franz-graphql-registry/pkg/http/routers/cdn"
	"github.com/rmb938/franz-graphql-registry/pkg/http/routers/policies"
	"github.com/rmb938/franz-graphql-registry/pkg/http/routers/targets"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the registry api and the cdn",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "address to listen on")
}

func newRouter(a *app, registry *prometheus.Registry) http.Handler {
	manager := appdeployments.NewManager(a.db, a.publisher, a.log.WithName("appdeployments"), a.metrics)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Set a timeout value on the request context (ctx), that will signal
	// through ctx.Done() that the request has timed out and further
	// processing should be stopped.
	r.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))
	r.Use(middleware.Heartbeat("/ping"))

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Mount("/cdn", cdn.NewRouter(a.publisher, a.log.WithName("cdn")))

	r.Group(func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Mount("/targets", targets.NewRouter(a.registry, a.log.WithName("targets")))
		r.Mount("/app-deployments", appDeploymentsRouter.NewRouter(manager, a.log.WithName("appdeployments")))
		r.Mount("/", policies.NewRouter(a.registry, a.log.WithName("policies")))
	})

	return r
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(ctx, promRegistry)
	if err != nil {
		return err
	}
	defer a.close()

	addr := cfg.HTTP.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           newRouter(a, promRegistry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
