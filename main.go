package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/anibaldeboni/zero-paper/sensormon/config"
	"github.com/anibaldeboni/zero-paper/sensormon/logging"
	"github.com/anibaldeboni/zero-paper/sensormon/measurement"
	"github.com/anibaldeboni/zero-paper/sensormon/publish"
	"github.com/anibaldeboni/zero-paper/sensormon/tui"
	"github.com/anibaldeboni/zero-paper/sensormon/web"
)

const logFileName = "sensormon.log"

type flags struct {
	configPath     string
	generateConfig string
	logLevel       string
	countdown      time.Duration
	interactive    bool
	version        bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("sensormon", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to configuration file (YAML or TOML)")
	fs.StringVar(&f.generateConfig, "generate-config", "", "Write an example configuration to this path and exit")
	fs.StringVar(&f.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	fs.DurationVar(&f.countdown, "countdown", -1, "Measurement duration, 0 runs until stopped (overrides config)")
	fs.BoolVar(&f.interactive, "tui", false, "Run the terminal interface")
	fs.BoolVar(&f.version, "version", false, "Show version information")
	fs.BoolVar(&f.version, "v", false, "Show version information (short)")
	err := fs.Parse(args)
	return f, err
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if f.version {
		PrintVersion()
		return
	}

	if f.generateConfig != "" {
		if err := config.GenerateExampleConfig(f.generateConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Example configuration written to %s\n", f.generateConfig)
		return
	}

	if err := run(f); err != nil {
		slog.Error("sensormon failed", "error", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.countdown >= 0 {
		cfg.Measurement.Countdown = f.countdown
	}

	logOpts := cfg.LogOptions()
	if f.interactive {
		// The terminal belongs to the TUI.
		logFile, err := openLogFile(cfg.Output.Path)
		if err != nil {
			return err
		}
		defer logFile.Close()
		logOpts.Writer = logFile
	}
	logger := logging.Init(logOpts)

	info := GetBuildInfo()
	logger.Info("starting sensormon", "version", info.Version, "commit", info.Commit, "go", info.GoVersion)
	if cfg.File != "" {
		logger.Info("configuration loaded", "file", cfg.File)
	} else {
		logger.Info("no configuration file found, using defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sensors, err := buildSensors(cfg)
	if err != nil {
		return err
	}

	opts := cfg.ControllerOptions(logging.Component("controller"))

	var publisher *publish.Publisher
	if cfg.MQTT.Enabled {
		publisher = publish.New(cfg.PublishConfig(), logging.Component("publish"))
		// Closed explicitly after the controller so late readings still go out.
		if err := publisher.Start(context.Background()); err != nil {
			logger.Warn("mqtt publishing disabled", "error", err)
			publisher = nil
		} else {
			opts.Taps = append(opts.Taps, publisher)
		}
	}

	observers := measurement.Observers{logObserver{logger: logging.Component("events")}}

	var hub *web.Hub
	if cfg.Web.Enabled {
		hub = web.NewHub(logging.Component("live"))
		observers = append(observers, hub)
	}

	var bridge *tui.Bridge
	if f.interactive {
		bridge = tui.NewBridge()
		observers = append(observers, bridge)
	}

	// Headless runs with a countdown exit when it ends.
	if !f.interactive {
		observers = append(observers, measurement.ObserverFuncs{Finished: stop})
	}

	ctrl, err := measurement.New(sensors, opts, observers)
	if err != nil {
		return errors.Join(err, closeSensors(sensors))
	}

	var wg sync.WaitGroup
	if cfg.Web.Enabled {
		server, err := web.NewServer(ctx, ctrl, cfg.WebConfig(), hub, logging.Component("web"))
		if err != nil {
			return errors.Join(err, ctrl.Close())
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(); err != nil {
				logger.Error("web server error", "error", err)
				stop()
			}
		}()
	}

	if f.interactive {
		err = runInteractive(ctrl, bridge, cfg.Measurement.Countdown)
		stop()
	} else {
		err = ctrl.Start(cfg.Measurement.Countdown)
		if err == nil {
			<-ctx.Done()
			logger.Info("shutdown requested")
		}
		stop()
	}

	return errors.Join(err, shutdown(logger, ctrl, publisher, &wg, cfg.Timeouts.ShutdownTimeout))
}

func runInteractive(ctrl *measurement.Controller, bridge *tui.Bridge, countdown time.Duration) error {
	p := tea.NewProgram(tui.NewModel(ctrl, countdown), tea.WithAltScreen())
	bridge.Attach(p)
	_, err := p.Run()
	return err
}

// shutdown stops the measurement, waits for the web server and flushes the
// publisher, giving up after timeout.
func shutdown(logger *slog.Logger, ctrl *measurement.Controller, publisher *publish.Publisher, wg *sync.WaitGroup, timeout time.Duration) error {
	logger.Info("waiting for components to shut down")

	var err error
	done := make(chan struct{})
	go func() {
		defer close(done)
		err = ctrl.Close()
		wg.Wait()
		if publisher != nil {
			err = errors.Join(err, publisher.Close())
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown completed")
		return err
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timed out after %s", timeout)
	}
}

func openLogFile(dir string) (io.WriteCloser, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
