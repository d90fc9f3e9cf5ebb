package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ComputerNetworkManager/Shared/internal/logging"
	"github.com/ComputerNetworkManager/Shared/internal/module"
	"github.com/ComputerNetworkManager/Shared/plugins"
)

// module-runner hosts a single module directory (plus any dependency
// directories passed with -with) until it receives SIGINT or SIGTERM.
func main() {
	dir := flag.String("dir", "", "module directory to run")
	logPath := flag.String("log", filepath.Join(os.TempDir(), "cnm-module-runner.log"), "log file path")
	logLevel := flag.String("log-level", "info", "minimum log level (debug, info, warn, error)")
	var with dirList
	flag.Var(&with, "with", "dependency module directory loaded before -dir (repeatable)")
	flag.Parse()

	if strings.TrimSpace(*dir) == "" {
		die("-dir is required")
	}
	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		die("%v", err)
	}
	logger, err := logging.New(*logPath, logging.WithLevel(level), logging.WithMirror(os.Stderr))
	if err != nil {
		die("open log: %v", err)
	}
	defer logger.Close()

	mgr := module.NewManager(module.WithLogger(logger))
	if err := mgr.RegisterInterpreter("go", plugins.NewGoInterpreter(), "golang", "yaegi"); err != nil {
		die("register go interpreter: %v", err)
	}
	if err := mgr.RegisterInterpreter("lua", plugins.NewLuaInterpreter()); err != nil {
		die("register lua interpreter: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var target *module.Module
	for _, d := range append(with, *dir) {
		mod, err := mgr.Load(ctx, d)
		if err != nil {
			die("load %s: %v", d, err)
		}
		target = mod
	}
	if err := plugins.StartAll(ctx, mgr); err != nil {
		_ = plugins.Shutdown(context.Background(), mgr)
		die("start: %v", err)
	}
	desc := target.Descriptor()
	fmt.Printf("%s %s (%s) running from %s. Press Ctrl+C to stop.\n", desc.Name, desc.Version, desc.Language, target.DataDirectory())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := plugins.Shutdown(shutdownCtx, mgr); err != nil {
		die("shutdown: %v", err)
	}
	fmt.Printf("%s stopped and unloaded.\n", desc.Name)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// dirList collects repeated -with flags.
type dirList []string

func (d *dirList) String() string {
	if d == nil {
		return ""
	}
	return strings.Join(*d, ", ")
}

func (d *dirList) Set(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("empty module directory")
	}
	*d = append(*d, trimmed)
	return nil
}
