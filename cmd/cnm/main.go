// cmd/cnm/main.go
//
// This is the entry point for the module host.
//
// Flow:
// 1. Initialize .cnm/ in the project directory and load its config
// 2. Build the Manager with the Go and Lua interpreters
// 3. Discover and load modules, start them if autostart is on
// 4. Run the console (or wait for a signal in headless mode)
// 5. Stop and unload everything in reverse dependency order

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ComputerNetworkManager/Shared/internal/config"
	"github.com/ComputerNetworkManager/Shared/internal/logging"
	"github.com/ComputerNetworkManager/Shared/internal/metrics"
	"github.com/ComputerNetworkManager/Shared/internal/module"
	"github.com/ComputerNetworkManager/Shared/internal/tui"
	"github.com/ComputerNetworkManager/Shared/plugins"
)

const shutdownTimeout = 30 * time.Second

func main() {
	projectDir := flag.String("project", "", "path to the project directory (defaults to cwd)")
	headless := flag.Bool("headless", false, "run without the console and wait for SIGINT/SIGTERM")
	logLevel := flag.String("log-level", "", "override logging.level (debug, info, warn, error)")
	flag.Parse()

	project := *projectDir
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			die("determine working directory: %v", err)
		}
	}
	absoluteProject, err := filepath.Abs(project)
	if err != nil {
		die("resolve project dir: %v", err)
	}
	if err := config.InitProjectDir(absoluteProject); err != nil {
		die("init .cnm: %v", err)
	}
	cfg, err := config.NewConfig(absoluteProject)
	if err != nil {
		die("load config: %v", err)
	}

	levelName := cfg.LogLevel()
	if *logLevel != "" {
		levelName = *logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		die("%v", err)
	}
	logOpts := []logging.Option{logging.WithLevel(level)}
	if *headless {
		logOpts = append(logOpts, logging.WithMirror(os.Stderr))
	}
	logger, err := logging.New(cfg.LogPath(), logOpts...)
	if err != nil {
		die("open log: %v", err)
	}
	defer logger.Close()

	collector := metrics.NewCollector()
	mgr, err := newManager(logger, collector)
	if err != nil {
		die("register interpreters: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if addr := cfg.MetricsAddress(); addr != "" {
		metricsServer = serveMetrics(addr, collector, logger)
	}

	found, err := plugins.Discover(cfg.ModulesDir(), cfg.Exclude(), nil)
	if err != nil {
		logger.Warn("Discovery reported problems: %v", err)
	}
	loaded, err := plugins.LoadAll(ctx, mgr, found)
	if err != nil {
		logger.Warn("Some modules failed to load: %v", err)
	}
	logger.Info("Loaded %d of %d discovered modules from %s", len(loaded), len(found), cfg.ModulesDir())
	if cfg.Autostart() {
		if err := plugins.StartAll(ctx, mgr); err != nil {
			logger.Warn("Some modules failed to start: %v", err)
		}
	}

	if *headless {
		<-ctx.Done()
		logger.Info("Signal received, shutting down")
	} else {
		app := tui.NewApp(mgr,
			tui.WithLogger(logger),
			tui.WithContext(ctx),
			tui.WithDiscovery(cfg.ModulesDir(), cfg.Exclude()),
		)
		p := tea.NewProgram(app, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			logger.Error("Console failed: %v", err)
			fmt.Fprintf(os.Stderr, "Error running console: %v\n", err)
		}
	}

	// The signal context may already be cancelled here.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := plugins.Shutdown(shutdownCtx, mgr); err != nil {
		logger.Error("Shutdown incomplete: %v", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
}

func newManager(logger *logging.Logger, observer module.Observer) (*module.Manager, error) {
	mgr := module.NewManager(module.WithLogger(logger), module.WithObserver(observer))
	if err := mgr.RegisterInterpreter("go", plugins.NewGoInterpreter(), "golang", "yaegi"); err != nil {
		return nil, err
	}
	if err := mgr.RegisterInterpreter("lua", plugins.NewLuaInterpreter()); err != nil {
		return nil, err
	}
	return mgr, nil
}

func serveMetrics(addr string, collector *metrics.Collector, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped: %v", err)
		}
	}()
	logger.Info("Serving metrics on %s/metrics", addr)
	return srv
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
