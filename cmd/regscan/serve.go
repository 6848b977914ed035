package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rorkai/21st-sub000/analyzer"
	"github.com/rorkai/21st-sub000/api"
	"github.com/rorkai/21st-sub000/bundle"
	"github.com/rorkai/21st-sub000/catalog/natsbus"
	"github.com/rorkai/21st-sub000/graph"
	"github.com/rorkai/21st-sub000/processor/ast/ts"
	"github.com/spf13/cobra"
)

func serveCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	stack, err := openCatalog(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	resolver := graph.NewResolver(stack.lookup, a.cfg.Resolver,
		graph.WithLogger(a.logger),
		graph.WithMetrics(graph.NewMetrics(reg)))
	classifier := ts.NewClassifier(a.cfg.Classifier)

	opts := api.Options{
		Analyzer:     analyzer.New(a.cfg.Classifier, a.logger),
		Classifier:   classifier,
		Resolver:     resolver,
		Builder:      bundle.NewBuilder(resolver, classifier, a.cfg.Bundle, a.logger),
		Gatherer:     reg,
		MaxBodyBytes: a.cfg.Server.MaxBodyBytes,
		Logger:       a.logger,
	}

	if stack.nc != nil && a.cfg.Catalog.NATS.PublishResolutions {
		opts.Publisher = stack.nc
	}
	if stack.nc != nil && a.cfg.Catalog.NATS.Serve {
		// The responder reads the backend directly, never the NATS client.
		responder := natsbus.NewResponder(stack.backend, a.cfg.Catalog.NATS.Timeout, a.logger)
		if err := responder.Start(stack.nc, a.cfg.Catalog.NATS.Subject, a.cfg.Catalog.NATS.Queue); err != nil {
			return fmt.Errorf("start catalog responder: %w", err)
		}
		defer func() { _ = responder.Stop() }()
	}

	if stack.dir != nil && a.cfg.Catalog.Watch {
		if err := stack.dir.Watch(ctx); err != nil {
			return fmt.Errorf("watch catalog directory: %w", err)
		}
		go a.invalidateOnReload(ctx, stack)
	}

	a.logger.Info("Regscan ready",
		"version", Version,
		"addr", a.cfg.Server.Addr,
		"backend", a.cfg.Catalog.Backend)
	return api.New(opts).ListenAndServe(ctx, a.cfg.Server.Addr)
}

func (a *app) invalidateOnReload(ctx context.Context, stack *catalogStack) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-stack.dir.Events():
			changed := append(append([]string(nil), ev.Updated...), ev.Removed...)
			stack.invalidate(ctx, changed, a.logger)
			a.logger.Info("Catalog reloaded",
				"added", len(ev.Added),
				"updated", len(ev.Updated),
				"removed", len(ev.Removed),
				"errors", len(ev.Errors))
		}
	}
}
