package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/blecar/internal/ble"
	"github.com/chaz8081/blecar/internal/config"
	"github.com/chaz8081/blecar/internal/hotkey"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/blecar/config.yaml)")
	initConfig := flag.Bool("init", false, "write the default config file and exit")
	noColor := flag.Bool("no-color", false, "disable colored event output")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s", config.DefaultConfigPath())
			return
		}
		log.Printf("Wrote default config to %s", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	setupLogging(cfg.LogLevel)
	printBanner(cfg)

	writeProps, _ := cfg.WriteProperties() // checked by Validate
	adapter := ble.NewTinyGoAdapter(map[string]ble.Property{
		cfg.Target.WriteCharUUID: writeProps,
		cfg.Target.ReadCharUUID:  ble.PropRead | ble.PropNotify,
	})

	opts := cfg.ControllerOptions()
	printer := newEventPrinter(os.Stdout, !color.NoColor && !*noColor)
	opts.OnEvent = printer.Print
	if cfg.Radio.Probe {
		radio, err := ble.NewRadioProbe(cfg.Radio.Adapter)
		if err != nil {
			slog.Warn("radio power check unavailable", "adapter", cfg.Radio.Adapter, "error", err)
		} else {
			defer radio.Close()
			opts.Radio = radio
		}
	}

	ctrl, err := ble.NewController(adapter, opts)
	if err != nil {
		log.Fatalf("Failed to start BLE controller: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runConsole(gctx, ctrl, os.Stdin, os.Stdout)
	})

	var listener *hotkey.Listener
	if cfg.Controls.Enabled {
		bindings, _ := cfg.KeyBindings() // checked by Validate
		listener = hotkey.NewListener(bindings, cfg.Controls.Mode)
		go listener.Start()
		g.Go(func() error {
			return runHotkeys(gctx, ctrl, listener)
		})
		slog.Info("Keyboard driving ready", "mode", cfg.Controls.Mode)
	}

	fmt.Println("Ready! Type \"scan\" to find the car, \"help\" for commands. Ctrl+C to quit.")

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		log.Printf("ERROR: %v", err)
	}

	log.Println("Shutting down...")
	if err := ctrl.Close(); err != nil {
		log.Printf("ERROR: closing controller: %v", err)
	}
	log.Println("Goodbye!")
	if listener != nil {
		// Exit directly to avoid gohook's C cleanup crash.
		// The OS reclaims the event hook on process exit.
		os.Exit(0)
	}
}

// runConsole reads commands from r until quit, EOF or ctx is done.
func runConsole(ctx context.Context, c car, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(w, err)
				continue
			}
			if err := execute(c, cmd, w); err != nil {
				return err
			}
		}
	}
}

// runHotkeys forwards driving intents from the listener to the car.
func runHotkeys(ctx context.Context, c car, listener *hotkey.Listener) error {
	events := listener.Events()
	for {
		select {
		case <-ctx.Done():
			listener.Stop()
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				slog.Info("Hotkey listener stopped")
				return nil
			}
			// Failures are already in the event log.
			_ = c.Send(ev.Intent)
		}
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// setupLogging installs the default slog handler at the configured level.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== blecar ===")
	fmt.Printf("  Target:  %s (%s)\n", cfg.Target.Name, cfg.Target.Address)
	fmt.Printf("  Service: %s\n", cfg.Target.ServiceUUID)
	fmt.Printf("  Write:   %s [%s]\n", cfg.Target.WriteCharUUID, strings.Join(cfg.Target.WriteProperties, ", "))
	fmt.Printf("  Scan:    %s window\n", cfg.Scan.Timeout)
	if cfg.Controls.Enabled {
		fmt.Printf("  Keys:    %s mode\n", cfg.Controls.Mode)
	}
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("==============")
}
