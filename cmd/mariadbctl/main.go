// Command mariadbctl wires a configuration file into a running Database and
// its optional admin HTTP surface: flag parsing, config load, component
// construction, signal-based graceful shutdown.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/skymond-software/mariadb-client/internal/admin"
	"github.com/skymond-software/mariadb-client/internal/config"
	"github.com/skymond-software/mariadb-client/internal/mariadb"
	"github.com/skymond-software/mariadb-client/internal/metrics"
)

func main() {
	configPath := flag.String("config", "configs/mariadbctl.yaml", "path to configuration file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("mariadbctl starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("configuration loaded from %s (address=%s)", *configPath, cfg.Redacted().Address)

	dbCfg, err := cfg.DatabaseConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	collector := metrics.New()
	dbCfg.Metrics = collector

	db := mariadb.NewDatabase(dbCfg)

	var adminServer *admin.Server
	if cfg.Admin.Enabled() {
		adminServer = admin.New(db, collector)
		addr := fmt.Sprintf("%s:%d", cfg.Admin.Bind, cfg.Admin.Port)
		if err := adminServer.Start(addr); err != nil {
			log.Fatalf("failed to start admin server: %v", err)
		}
		log.Printf("admin surface listening on %s", addr)
	}

	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		log.Printf("configuration changed on disk; restart mariadbctl to apply it")
		_ = newCfg
	})
	if err != nil {
		log.Printf("warning: config hot-reload not available: %v", err)
	}

	log.Printf("mariadbctl ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %s, shutting down...", sig)

	if configWatcher != nil {
		configWatcher.Stop()
	}
	if adminServer != nil {
		adminServer.Stop()
	}
	if err := db.Close(); err != nil {
		log.Printf("error closing database: %v", err)
	}

	log.Printf("mariadbctl stopped")
}
