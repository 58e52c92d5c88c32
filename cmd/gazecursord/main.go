package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/eorua8801/restructured-cursor/internal/actuator"
	"github.com/eorua8801/restructured-cursor/internal/settings"
)

const version = "0.4.0"

func printVersion() {
	fmt.Printf("gazecursord v%s\n", version)
	fmt.Println("Gaze-driven pointer daemon: smoothing, dwell click and edge scroll")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  gazecursord [OPTIONS]")
	fmt.Println("  gazecursord profile export [-o FILE]")
	fmt.Println("  gazecursord profile import FILE")
	fmt.Println("  gazecursord calibrations [-n N]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Reads gaze samples from an eye tracker over WebSocket, smooths them with")
	fmt.Println("  a one-euro filter and drives a virtual pointer: dwelling on a spot clicks,")
	fmt.Println("  holding gaze at the top or bottom edge scrolls.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -screen-width int, -screen-height int")
	fmt.Printf("        Target screen size in pixels (default %dx%d)\n", defaultScreenWidth, defaultScreenHeight)
	fmt.Println()
	fmt.Println("  -source-mode string")
	fmt.Println("        Gaze source: dial|listen|off (default \"dial\")")
	fmt.Println()
	fmt.Println("  -source-url string")
	fmt.Printf("        Tracker websocket URL in dial mode (default %q)\n", defaultSourceURL)
	fmt.Println()
	fmt.Println("  -http-addr string")
	fmt.Printf("        HTTP listen address for %s and %s (default %q; empty disables)\n", defaultStatePath, defaultSourcePath, defaultHTTPAddr)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("  -actuator string")
	fmt.Println("        Pointer backend: uinput|log (default \"uinput\")")
	fmt.Println()
	fmt.Println("  -uinput-device string")
	fmt.Printf("        uinput device node (default %q)\n", actuator.DefaultUinputPath)
	fmt.Println()
	fmt.Println("  -scroll-mode string")
	fmt.Println("        Scroll gesture: wheel|drag (default \"wheel\")")
	fmt.Println()
	fmt.Println("  -hotkey-devices string")
	fmt.Println("        Comma-separated keyboard input devices for hotkeys (default none)")
	fmt.Println()
	fmt.Println("  -db string")
	fmt.Printf("        Settings database (default %q; empty disables persistence)\n", defaultDBPath)
	fmt.Println()
	fmt.Println("  -profile string")
	fmt.Printf("        TOML settings profile (default %q)\n", defaultProfilePath)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SUBCOMMANDS:")
	fmt.Println("  profile export   Write the stored settings as a TOML profile")
	fmt.Println("  profile import   Load a TOML profile into the store")
	fmt.Println("  calibrations     List recent calibration attempts")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with defaults (tracker at ws://127.0.0.1:8766/gaze)")
	fmt.Println("  gazecursord")
	fmt.Println()
	fmt.Println("  # Dry run without uinput, tracker pushes to us")
	fmt.Println("  gazecursord -actuator log -source-mode listen")
	fmt.Println()
	fmt.Println("  # Hotkeys from a keyboard (PAUSE toggles tracking, F12 calibrates)")
	fmt.Println("  gazecursord -hotkey-devices /dev/input/event3")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - uinput needs write access to /dev/uinput (root or the 'input' group)")
	fmt.Println("  - Hotkey devices need read access (root or the 'input' group)")
	fmt.Println("  - Edits to the profile file are applied live when storage.watch_profile is set")
	fmt.Println()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "profile":
			runProfileSubcommand(os.Args[2:])
			return
		case "calibrations":
			runCalibrationsSubcommand(os.Args[2:])
			return
		}
	}

	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath    = flag.String("config", "", "YAML config file")
		screenWidth   = flag.Int("screen-width", defaultScreenWidth, "Target screen width in pixels")
		screenHeight  = flag.Int("screen-height", defaultScreenHeight, "Target screen height in pixels")
		sourceMode    = flag.String("source-mode", sourceModeDial, "Gaze source: dial|listen|off")
		sourceURL     = flag.String("source-url", defaultSourceURL, "Tracker websocket URL (dial mode)")
		httpAddr      = flag.String("http-addr", defaultHTTPAddr, "HTTP listen address (empty disables)")
		ipcSocketPath = flag.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
		actuatorKind  = flag.String("actuator", actuatorKindUinput, "Pointer backend: uinput|log")
		uinputDevice  = flag.String("uinput-device", actuator.DefaultUinputPath, "uinput device node")
		scrollMode    = flag.String("scroll-mode", string(actuator.ScrollModeWheel), "Scroll gesture: wheel|drag")
		hotkeyDevices = flag.String("hotkey-devices", "", "Comma-separated keyboard input devices")
		dbPath        = flag.String("db", defaultDBPath, "Settings database (empty disables persistence)")
		profilePath   = flag.String("profile", defaultProfilePath, "TOML settings profile")
		logLevelStr   = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		_             = flag.Bool("version", false, "Print version and exit")
		_             = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	// Only explicitly set flags override the config file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "screen-width":
			o.ScreenWidth = screenWidth
		case "screen-height":
			o.ScreenHeight = screenHeight
		case "source-mode":
			o.SourceMode = sourceMode
		case "source-url":
			o.SourceURL = sourceURL
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "actuator":
			o.ActuatorKind = actuatorKind
		case "uinput-device":
			o.ActuatorDevice = uinputDevice
		case "scroll-mode":
			o.ActuatorScrollMode = scrollMode
		case "hotkey-devices":
			o.HotkeyDevices = hotkeyDevices
		case "db":
			o.DBPath = dbPath
		case "profile":
			o.ProfilePath = profilePath
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	o.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("gazecursord failed", "error", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until SIGINT/SIGTERM or a fatal
// component error.
func run(cfg Config, logger *slog.Logger) error {
	sessionID := uuid.NewString()
	logger.Debug("starting gazecursord", "version", version, "session_id", sessionID)

	// Settings: config seed < store < profile.
	us, err := cfg.SeedSettings()
	if err != nil {
		return err
	}
	origin := "default"

	var store *settings.Store
	if cfg.Storage.DBPath != "" {
		store, err = openStore(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		stored, found, err := store.Load()
		switch {
		case err != nil:
			logger.Warn("settings load failed; using defaults", "error", err)
		case found:
			us, origin = stored, "store"
		default:
			if err := store.Save(us); err != nil {
				logger.Warn("seed settings save failed", "error", err)
			}
		}
	}

	profilePath := ExpandPath(cfg.Storage.ProfilePath)
	if profilePath != "" {
		if _, statErr := os.Stat(profilePath); statErr == nil {
			p, name, err := settings.LoadProfile(profilePath)
			if err != nil {
				logger.Warn("profile ignored", "path", profilePath, "error", err)
			} else {
				logger.Info("profile loaded", "path", profilePath, "name", name)
				us, origin = p, "profile"
				if store != nil {
					if err := store.Save(us); err != nil {
						logger.Warn("profile save to store failed", "error", err)
					}
				}
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigc:
			logger.Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Central event bus.
	events := make(chan Event, 256)

	worker, err := openActuator(cfg, events, logger)
	if err != nil {
		return err
	}
	defer worker.Close()

	state := NewDaemonState(us, cfg.PipelineScreen(), sessionID, time.Now(),
		time.Duration(cfg.Calibration.AutoDelayMS)*time.Millisecond)
	state.SettingsOrigin = origin

	env := effectEnv{Actuator: worker}
	if store != nil {
		env.Store = store
	}

	broadcasts := make(chan StateBroadcast, 512)
	wsServer := NewServer(logger, events, ServerConfig{})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, env, cfg.ToReduceConfig(), state, defaultTickHz, broadcasts, logger)
		return nil
	})
	g.Go(func() error {
		wsServer.Hub().Run(gctx)
		return nil
	})
	g.Go(func() error {
		RunBroadcaster(gctx, wsServer.Hub(), broadcasts, logger)
		return nil
	})
	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger)
	})

	sourceTimeout := time.Duration(cfg.Source.TimeoutMS) * time.Millisecond

	if cfg.HTTP.Addr != "" {
		mux := http.NewServeMux()
		wsServer.Register(mux, cfg.HTTP.StatePath)
		if cfg.Source.Mode == sourceModeListen {
			mux.Handle(cfg.Source.ListenPath, newGazeIngest(gctx, events, sourceTimeout, logger))
		}
		g.Go(func() error {
			return serveHTTP(gctx, cfg.HTTP.Addr, mux, logger)
		})
	}

	if cfg.Source.Mode == sourceModeDial {
		g.Go(func() error {
			return runGazeDial(gctx, cfg.Source.URL, sourceTimeout, events, logger)
		})
	}

	if len(cfg.Hotkeys.Devices) > 0 {
		keys, err := newHotkeyMap(cfg.Hotkeys)
		if err != nil {
			return err
		}
		g.Go(func() error {
			// Hotkeys are optional: a failing keyboard must not stop the daemon.
			if err := runHotkeys(gctx, cfg.Hotkeys.Devices, keys, events, logger); err != nil {
				logger.Error("hotkeys stopped", "error", err, "tip", "run as root or add user to 'input' group")
			}
			return nil
		})
	}

	if cfg.Storage.WatchProfile && profilePath != "" {
		g.Go(func() error {
			if err := os.MkdirAll(filepath.Dir(profilePath), 0755); err != nil {
				logger.Warn("profile watch disabled", "error", err)
				return nil
			}
			if err := watchProfile(gctx, profilePath, profileDebounce, events, logger); err != nil {
				logger.Warn("profile watch disabled", "error", err)
			}
			return nil
		})
	}

	listenInfo := []any{
		"ipc", cfg.IPC.SocketPath,
		"source_mode", cfg.Source.Mode,
		"screen", fmt.Sprintf("%dx%d", cfg.Screen.Width, cfg.Screen.Height),
		"actuator", cfg.Actuator.Kind,
		"preset", us.Preset,
		"settings_origin", origin,
	}
	if cfg.HTTP.Addr != "" {
		listenInfo = append(listenInfo, "http", cfg.HTTP.Addr)
	}
	if cfg.Source.Mode == sourceModeDial {
		listenInfo = append(listenInfo, "source_url", cfg.Source.URL)
	}
	logger.Info("listening", listenInfo...)

	return g.Wait()
}

func openStore(path string) (*settings.Store, error) {
	path = ExpandPath(path)
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	store, err := settings.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	return store, nil
}

// openActuator builds the pointer worker. A uinput device that cannot be
// opened falls back to the dry-run log device.
func openActuator(cfg Config, events chan<- Event, logger *slog.Logger) (*actuator.Worker, error) {
	mode, err := actuator.ParseScrollMode(cfg.Actuator.ScrollMode)
	if err != nil {
		return nil, err
	}
	amount, err := parseScrollAmount(cfg.Actuator.ScrollAmount)
	if err != nil {
		return nil, err
	}

	var dev actuator.Device
	if cfg.Actuator.Kind == actuatorKindUinput {
		u, err := actuator.OpenUinput(cfg.Actuator.Device, cfg.Actuator.Name,
			int32(cfg.Screen.Width), int32(cfg.Screen.Height), mode)
		if err != nil {
			logger.Warn("uinput unavailable; falling back to log actuator",
				"device", cfg.Actuator.Device, "error", err, "tip", "run as root or add user to 'input' group")
		} else {
			dev = u
		}
	}
	if dev == nil {
		dev = actuator.NewLogDevice(logger)
	}

	return actuator.NewWorker(dev, actuator.WorkerConfig{
		ScreenWidth:  float64(cfg.Screen.Width),
		ScreenHeight: float64(cfg.Screen.Height),
		Amount:       amount,
		WheelNotches: cfg.Actuator.WheelNotches,
		OnError: func(op string, err error) {
			select {
			case events <- ActuatorFailed{Op: op, Err: err, At: time.Now()}:
			default:
			}
		},
	}, logger), nil
}

// serveHTTP runs the state/ingest HTTP server until ctx is canceled.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("HTTP listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
