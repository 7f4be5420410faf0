// Command reteserver is an illustrative HTTP front-end over the engine's
// command surface. It is glue, not core: embedders linking the engine as a
// library never import this package or its dependencies.
package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reteforge/engine/cmd/reteserver/server"
	"github.com/reteforge/engine/engine/scheduler"
	"github.com/reteforge/engine/infrastructure/config"
	"github.com/reteforge/engine/infrastructure/logging"
	"github.com/reteforge/engine/infrastructure/metrics"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides RETESERVER_ADDR)")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  config.GetEnv("RETESERVER_LOG_LEVEL", "info"),
		Format: config.GetEnv("RETESERVER_LOG_FORMAT", "text"),
	})

	m := metrics.New(prometheus.DefaultRegisterer)

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = config.GetEnv("RETESERVER_ADDR", ":8080")
	}

	h := server.New(logger, m)

	if spec := config.GetEnv("RETESERVER_AUTORUN_CRON", ""); spec != "" {
		sched := scheduler.New(h.Registry, logger,
			config.GetEnvInt("RETESERVER_AUTORUN_FIRE_LIMIT", 0),
			config.GetEnvDuration("RETESERVER_AUTORUN_TIMEOUT", 5*time.Second))
		if _, err := sched.AddSchedule(spec); err != nil {
			log.Fatalf("reteserver: invalid RETESERVER_AUTORUN_CRON %q: %v", spec, err)
		}
		sched.Start()
		defer sched.Stop()
		logger.WithField("cron", spec).Info("reteserver autorun scheduler started")
	}

	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      h.Router(),
		ReadTimeout:  config.GetEnvDuration("RETESERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: config.GetEnvDuration("RETESERVER_WRITE_TIMEOUT", 10*time.Second),
	}

	logger.WithField("addr", listenAddr).Info("reteserver listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("reteserver: %v", err)
	}
}
