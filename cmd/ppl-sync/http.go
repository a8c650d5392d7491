package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/ShipSync/config"
	"github.com/BearBump/ShipSync/internal/services/labelsync"
	"github.com/BearBump/ShipSync/internal/services/tracksync"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type opsServerOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	labelJob *labelsync.Job
	trackJob *tracksync.Job
	cfg      *config.Config
}

// runOpsServer exposes health, stats and manual triggers for the two
// sync jobs. Docs are mounted only when a swagger file is configured.
func runOpsServer(ctx context.Context, opts opsServerOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		out := map[string]any{}
		if opts.labelJob != nil {
			out["labels"] = opts.labelJob.Stats()
		}
		if opts.trackJob != nil {
			out["tracking"] = opts.trackJob.Stats()
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Avoid dumping secrets; show only operational sync settings.
		out := map[string]any{
			"labelIntervalSeconds":    opts.cfg.Sync.LabelIntervalSeconds,
			"labelBatchSize":          opts.cfg.Sync.LabelBatchSize,
			"labelMaxAttempts":        opts.cfg.Sync.LabelMaxAttempts,
			"labelMaxPendingAgeHours": opts.cfg.Sync.LabelMaxPendingAgeHours,
			"trackingIntervalSeconds": opts.cfg.Sync.TrackingIntervalSeconds,
			"trackingQueryLimit":      opts.cfg.Sync.TrackingQueryLimit,
			"carrierEnvironment":      opts.cfg.PPL.Environment,
			"carrierMode":             opts.cfg.PPL.Mode,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger/labels", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.labelJob == nil {
			_, _ = w.Write([]byte(`{"error":"label job not wired"}`))
			return
		}
		opts.labelJob.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	r.Post("/trigger/tracking", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.trackJob == nil {
			_, _ = w.Write([]byte(`{"error":"tracking job not wired"}`))
			return
		}
		opts.trackJob.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	if opts.swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, opts.swaggerPath)
		})

		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(opts.swaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}
