package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smazurov/camview/internal/logging"
	"github.com/smazurov/camview/internal/player"
	"github.com/smazurov/camview/internal/session"
	"github.com/smazurov/camview/internal/version"
	"github.com/spf13/cobra"
)

// playOptions are the flags of the play command.
type playOptions struct {
	username  string
	password  string
	seekTo    string
	checkSync bool
	duration  time.Duration
	forceTCP  bool
	timeout   time.Duration
	logJSON   bool
}

// CreatePlayCmd creates the play command.
func CreatePlayCmd() *cobra.Command {
	var opts playOptions

	cmd := &cobra.Command{
		Use:   "play [address]",
		Short: "Run a headless playback session",
		Long: `Opens a playback session for the camera address without the API server and logs every state change. ` +
			`Optionally seeks to a wall-clock time and checks the camera clock once playback starts. ` +
			`Runs until interrupted or until --duration passes.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if opts.logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)

			if err := runPlay(args[0], opts); err != nil {
				logging.GetLogger("play").Error("Playback failed", "error", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "Stream username")
	cmd.Flags().StringVar(&opts.password, "password", "", "Stream password")
	cmd.Flags().StringVar(&opts.seekTo, "seek-to", "", "Wall-clock time to seek to once playing, RFC 3339 or local \"2006-01-02 15:04:05\"")
	cmd.Flags().BoolVar(&opts.checkSync, "check-sync", false, "Compare the camera clock with the local clock once playing")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop after this long, 0 runs until interrupted")
	cmd.Flags().BoolVar(&opts.forceTCP, "force-tcp", true, "Request interleaved TCP delivery")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", player.DefaultConfig().Timeout, "Connection and setup timeout")
	cmd.Flags().BoolVar(&opts.logJSON, "log-json", false, "Log as JSON")

	return cmd
}

func runPlay(address string, opts playOptions) error {
	logger := logging.GetLogger("play")

	var target time.Time
	if opts.seekTo != "" {
		t, err := session.ParseTimestamp(opts.seekTo, time.Local)
		if err != nil {
			return err
		}
		target = t
	}

	cfg := player.DefaultConfig()
	cfg.ForceReliableTransport = opts.forceTCP
	cfg.Timeout = opts.timeout
	cfg.ClientIdentifier = version.UserAgent()

	playing := make(chan struct{}, 1)
	ctrl := session.New(player.NewRTSPFactory(),
		session.WithPlayerConfig(cfg),
		session.WithObserver(func(st session.Status) {
			logger.Info("Session status",
				"state", st.State,
				"playing", st.Playing,
				"seeking", st.Seeking,
				"position_ms", st.PositionMs,
				"error", st.ErrorMessage)
			if st.State == session.StatePlaying {
				select {
				case playing <- struct{}{}:
				default:
				}
			}
		}),
	)
	defer ctrl.Close()

	if err := ctrl.Open(session.Endpoint{ID: 1, Name: address, Address: address, Username: opts.username, Password: opts.password}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	if opts.checkSync || !target.IsZero() {
		select {
		case <-playing:
		case <-ctx.Done():
			return errors.New("camera never started playing")
		}
	}

	if opts.checkSync {
		result, err := ctrl.CheckTimeSync()
		if err != nil {
			return err
		}
		logger.Info(result.Status.Message(), "kind", result.Status.Kind, "camera_time", result.CameraTime)
	}

	if !target.IsZero() {
		select {
		case err := <-ctrl.SeekToTimestamp(target):
			var seekErr *session.SeekError
			switch {
			case err == nil:
				logger.Info("Seek complete", "target", target.Format(time.RFC3339))
			case errors.As(err, &seekErr):
				logger.Warn("Seek failed, still playing live", "reason", seekErr.Reason)
			default:
				return fmt.Errorf("seek: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}

	<-ctx.Done()
	logger.Info("Stopping", "status", ctrl.Status().State)
	return nil
}
