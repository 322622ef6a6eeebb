package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/camview/cmd"
	"github.com/smazurov/camview/internal/api"
	"github.com/smazurov/camview/internal/cameras"
	"github.com/smazurov/camview/internal/capture"
	"github.com/smazurov/camview/internal/clocksync"
	"github.com/smazurov/camview/internal/config"
	"github.com/smazurov/camview/internal/events"
	"github.com/smazurov/camview/internal/logging"
	"github.com/smazurov/camview/internal/player"
	"github.com/smazurov/camview/internal/probe"
	"github.com/smazurov/camview/internal/session"
	"github.com/smazurov/camview/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port         string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	AllowOrigins string `help:"Comma separated origins allowed to call the API, empty allows any" default:"" toml:"server.allow_origins" env:"SERVER_ALLOW_ORIGINS"`

	// Camera registry settings
	CamerasFile string `help:"Camera definitions file" default:"cameras.toml" toml:"cameras.file" env:"CAMERAS_FILE"`

	// Reachability probe settings
	ProbeTimeout string `help:"Probe connect and handshake timeout" default:"5s" toml:"probe.timeout" env:"PROBE_TIMEOUT"`

	// Player settings
	PlayerTimeout   string `help:"RTSP connection and setup timeout" default:"12s" toml:"player.timeout" env:"PLAYER_TIMEOUT"`
	PlayerUserAgent string `help:"RTSP User-Agent, defaults to the build version" default:"" toml:"player.user_agent" env:"PLAYER_USER_AGENT"`
	PlayerForceTCP  bool   `help:"Request interleaved TCP delivery" default:"true" toml:"player.force_tcp" env:"PLAYER_FORCE_TCP"`

	// Session settings
	SessionSeekTimezone string `help:"IANA zone for seek times without an offset, empty uses the host zone" default:"" toml:"session.seek_timezone" env:"SESSION_SEEK_TIMEZONE"`
	SessionSeekWait     string `help:"How long a seek request waits for the camera" default:"30s" toml:"session.seek_wait" env:"SESSION_SEEK_WAIT"`

	// Snapshot settings
	SnapshotsDir     string `help:"Directory for snapshot images" default:"snapshots" toml:"snapshots.dir" env:"SNAPSHOTS_DIR"`
	SnapshotsFFmpeg  string `help:"ffmpeg binary used for snapshots" default:"ffmpeg" toml:"snapshots.ffmpeg" env:"SNAPSHOTS_FFMPEG"`
	SnapshotsTimeout string `help:"Snapshot timeout" default:"10s" toml:"snapshots.timeout" env:"SNAPSHOTS_TIMEOUT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSession string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingPlayer  string `help:"Player logging level" default:"info" toml:"logging.player" env:"LOGGING_PLAYER"`
	LoggingProbe   string `help:"Probe logging level" default:"info" toml:"logging.probe" env:"LOGGING_PROBE"`
	LoggingCameras string `help:"Camera registry logging level" default:"info" toml:"logging.cameras" env:"LOGGING_CAMERAS"`
	LoggingCapture string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// duration parses a configured duration, falling back when it is empty or malformed.
func duration(logger *slog.Logger, name, value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		logger.Warn("Invalid duration, using default", "option", name, "value", value, "default", fallback)
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"session": opts.LoggingSession,
				"player":  opts.LoggingPlayer,
				"probe":   opts.LoggingProbe,
				"cameras": opts.LoggingCameras,
				"capture": opts.LoggingCapture,
				"api":     opts.LoggingAPI,
				"http":    opts.LoggingAPI,
			},
		})

		logger := logging.GetLogger("main")
		logger.Info("CamView starting", "version", version.String())

		// Create event bus for in-process event handling
		eventBus := events.New()
		logging.SetLogCallback(api.LogPublisher(eventBus))

		registry := cameras.NewRegistry(cameras.NewTOML(opts.CamerasFile), logging.GetLogger("cameras"))
		if loadErr := registry.Load(); loadErr != nil {
			logger.Warn("Failed to load cameras", "file", opts.CamerasFile, "error", loadErr)
		}

		// Hand edits to the cameras file replace the in-memory list
		camerasWatcher := config.NewConfigWatcher(opts.CamerasFile, cameras.ReadFile, logging.GetLogger("cameras"),
			config.WithErrorHandler[[]cameras.Camera](func(err error) {
				logger.Warn("Ignoring unreadable cameras file", "file", opts.CamerasFile, "error", err)
			}))
		camerasWatcher.OnReload(registry.Reload)

		seekZone := time.Local
		if opts.SessionSeekTimezone != "" {
			loc, err := time.LoadLocation(opts.SessionSeekTimezone)
			if err != nil {
				logger.Warn("Unknown seek timezone, using host zone", "timezone", opts.SessionSeekTimezone, "error", err)
			} else {
				seekZone = loc
			}
		}

		playerConfig := player.DefaultConfig()
		playerConfig.ForceReliableTransport = opts.PlayerForceTCP
		playerConfig.Timeout = duration(logger, "player.timeout", opts.PlayerTimeout, playerConfig.Timeout)
		playerConfig.ClientIdentifier = version.UserAgent()
		if opts.PlayerUserAgent != "" {
			playerConfig.ClientIdentifier = opts.PlayerUserAgent
		}

		capturer := capture.New(opts.SnapshotsDir,
			capture.WithFFmpeg(opts.SnapshotsFFmpeg),
			capture.WithTimeout(duration(logger, "snapshots.timeout", opts.SnapshotsTimeout, capture.DefaultTimeout)))

		hub := session.NewHub(player.NewRTSPFactory(), logging.GetLogger("session"),
			session.WithPlayerConfig(playerConfig),
			session.WithEvaluator(&clocksync.Evaluator{Now: time.Now, Location: seekZone}),
			session.WithSnapshotter(capturer),
			session.WithObserver(func(st session.Status) {
				eventBus.Publish(events.SessionStatusEvent{Status: st, Timestamp: events.Now()})
			}),
		)

		prober := probe.New(probe.WithTimeout(duration(logger, "probe.timeout", opts.ProbeTimeout, probe.DefaultTimeout)))

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Registry:          registry,
			Prober:            prober,
			Hub:               hub,
			EventBus:          eventBus,
			SeekLocation:      seekZone,
			SeekWait:          duration(logger, "session.seek_wait", opts.SessionSeekWait, api.DefaultSeekWait),
			AllowOrigins:      splitList(opts.AllowOrigins),
			PrometheusHandler: promhttp.Handler(),
		})

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if startErr := camerasWatcher.Start(); startErr != nil {
				logger.Warn("Cameras file will not be watched", "error", startErr)
			}

			// Every registry change reaches event stream clients as the full list
			go func() {
				for list := range registry.Watch(ctx) {
					eventBus.Publish(events.CamerasChangedEvent{Cameras: list, Timestamp: events.Now()})
				}
			}()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Release camera connections after the API stops taking requests
			hub.Stop()
			cancel()

			if stopErr := camerasWatcher.Stop(); stopErr != nil {
				logger.Error("Error stopping cameras watcher", "error", stopErr)
			}
		})
	})

	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateProbeCmd())
	cli.Root().AddCommand(cmd.CreatePlayCmd())

	// Run the CLI
	cli.Run()
}
