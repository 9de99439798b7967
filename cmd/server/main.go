// Package main is the entry point for the traffic violation dashboard server
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/example/trafficwatch/internal/analysis"
	"github.com/example/trafficwatch/internal/config"
	"github.com/example/trafficwatch/internal/handlers"
	"github.com/example/trafficwatch/internal/intake"
	"github.com/example/trafficwatch/internal/jobs"
	"github.com/example/trafficwatch/internal/logging"
	"github.com/example/trafficwatch/internal/metrics"
	"github.com/example/trafficwatch/internal/middleware"
	"github.com/example/trafficwatch/internal/report"
	"github.com/example/trafficwatch/internal/storage"
	"github.com/example/trafficwatch/internal/theme"
	"github.com/example/trafficwatch/internal/workspace"
)

var (
	configFile = flag.String("config", "trafficwatch.json", "Configuration file path")
	testConfig = flag.Bool("test-config", false, "Test configuration and exit")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
	version    = "1.0.0"
)

// isPortInUse checks if the given port is already in use
func isPortInUse(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return true
	}
	listener.Close()
	return false
}

// findFreePort tries to find a free port starting from the given port.
// Stops searching after 100 ports or at 65535.
func findFreePort(startPort int) int {
	maxPortToTry := min(startPort+100, 65535)
	for port := startPort; port <= maxPortToTry; port++ {
		if !isPortInUse(port) {
			return port
		}
	}
	// Nothing free; the server will fail to bind and say so
	return startPort
}

// eventSink forwards workspace events to the hub, dropping per-tick
// progress when progress updates are disabled
func eventSink(hub *handlers.Hub, progress bool) func(workspace.Event) {
	return func(ev workspace.Event) {
		if !progress && ev.Type == workspace.EventUploadProgress {
			return
		}
		hub.Publish(ev)
	}
}

func main() {
	flag.Parse()

	if err := config.LoadConfig(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.AppConfig

	if *testConfig {
		fmt.Println("Configuration test successful")
		return
	}

	level := cfg.Logging.Level
	if *verbose {
		level = "debug"
	}
	logging.Init(level, cfg.Logging.Pretty, os.Stderr)

	fmt.Printf("\n=================================\n")
	fmt.Printf("Traffic Violation Dashboard v%s\n", version)
	fmt.Printf("=================================\n\n")

	if err := report.SetLicense(cfg.Report.UnidocLicenseKey); err != nil {
		log.Warn().Err(err).Msg("DOCX export license not applied")
	}

	var m *metrics.Metrics
	if cfg.Features.EnableMetrics {
		m = metrics.New()
	}

	hub := handlers.NewHub(cfg.Server.AllowedOrigins, m)
	hub.Run()

	prefs := theme.FilePreferences{Path: cfg.Theme.PrefsFile}
	themeStore := theme.Init(prefs, cfg.Theme.SystemDefault == string(theme.Dark))
	themeStore.OnChange(func(mode theme.Mode) {
		hub.Broadcast(handlers.MessageThemeChanged, map[string]interface{}{"mode": mode, "dark": mode == theme.Dark})
	})

	log.Info().Int("workers", cfg.Workers.Count).Int("queue", cfg.Workers.QueueSize).Msg("Initializing worker pool")
	pool := jobs.InitializeWorkerPool(cfg.Workers.Count, cfg.Workers.QueueSize)
	pool.OnFinish(m.ObserveTask)
	m.TrackArchiveQueue(pool)

	opts := []workspace.Option{
		workspace.WithEventSink(eventSink(hub, cfg.Features.EnableProgressUpdates)),
		workspace.WithSubmitterOptions(analysis.WithCompletionHook(m.ObserveAnalysis)),
	}

	var archiver *jobs.Archiver
	var evidence storage.Provider
	if cfg.Features.EnableArchive {
		provider, err := storage.FromConfig(cfg.Storage)
		if err != nil {
			log.Error().Err(err).Str("provider", cfg.Storage.Provider).Msg("Evidence archive disabled")
		} else {
			evidence = provider
			archiver = jobs.NewArchiver(pool, provider)
			opts = append(opts, workspace.WithArchiver(archiver))
			log.Info().Str("provider", provider.Type()).Msg("Evidence archive enabled")
		}
	}

	client := analysis.NewClientFromConfig(cfg.Backend)
	manager := workspace.NewManager(client, intake.FromConfig(cfg.Intake), opts...)
	m.TrackWorkspaces(manager.Len)
	log.Info().Str("backend", cfg.Backend.BaseURL).Msg("Detection backend configured")

	h := handlers.NewHandler(handlers.Options{
		Manager:  manager,
		Theme:    themeStore,
		Hub:      hub,
		Metrics:  m,
		Archiver: archiver,
		Evidence: evidence,
		SpoolDir: cfg.Server.SpoolDir,
	})

	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(middleware.Metrics(m)))
	h.Routes(router)
	router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.Server.UIDir)))

	handler := middleware.Chain(
		router,
		middleware.Logger(),
		middleware.Recover(),
		middleware.CORS(cfg.Server.AllowedOrigins),
		middleware.RequestID(),
	)

	originalPort := config.AppConfig.Server.Port
	if isPortInUse(originalPort) {
		newPort := findFreePort(originalPort)
		if newPort != originalPort {
			log.Warn().Int("port", originalPort).Int("alternative", newPort).Msg("Port in use, switching")
			config.AppConfig.Server.Port = newPort
		} else {
			log.Warn().Int("port", originalPort).Msg("Port in use and no alternative found, the server may fail to start")
		}
	}

	addr := config.GetAddressString()
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", addr).Msg("Starting server")

		var err error
		if cfg.Server.CertFile != "" && cfg.Server.KeyFile != "" {
			log.Info().Str("cert", cfg.Server.CertFile).Str("key", cfg.Server.KeyFile).Msg("Using TLS")
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-stop
	log.Info().Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Server forced to shutdown")
	}

	hub.Shutdown()
	manager.CloseAll()
	jobs.ShutdownWorkerPool()
	log.Info().Msg("Server shutdown complete")
}
