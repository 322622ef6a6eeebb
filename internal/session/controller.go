// Package session owns the lifecycle of live view playback sessions.
//
// A Controller drives one player.Player at a time. Every mutation of session
// state runs on the controller's owner loop; transport events are posted to
// that loop and dropped when they come from a handle the controller no longer
// holds.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/camview/internal/clocksync"
	"github.com/smazurov/camview/internal/endpoint"
	"github.com/smazurov/camview/internal/logging"
	"github.com/smazurov/camview/internal/player"
)

// DefaultSkipBack is the skip distance used when none is given.
const DefaultSkipBack = 10 * time.Second

// State is the session lifecycle state.
type State string

// Session states.
const (
	StateIdle    State = "idle"
	StateOpening State = "opening"
	StateReady   State = "ready"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateClosed  State = "closed"
	StateFailed  State = "failed"
)

var (
	// ErrNoSession is returned by operations that need an open transport.
	ErrNoSession = errors.New("no active session")
	// ErrClosed is returned by a stopped Hub.
	ErrClosed = errors.New("session hub closed")
)

// Banner texts for transport errors.
const (
	bannerNetwork = "Network connection failed. Please check your connection and try again."
	bannerTimeout = "Connection timed out. The camera might be offline."
	bannerDecoder = "Failed to initialize video decoder. The stream format might be unsupported."
	bannerAddress = "Invalid camera address"
)

// Endpoint is the camera a session is opened for.
type Endpoint struct {
	ID       int64
	Name     string
	Address  string
	Username string
	Password string
}

// Snapshotter captures a still frame from a stream.
type Snapshotter interface {
	Snapshot(ctx context.Context, cameraID int64, uri string) (string, error)
}

// Status is a point in time copy of the session.
type Status struct {
	SessionID     string           `json:"session_id,omitempty" doc:"Identifier of the current session"`
	CameraID      int64            `json:"camera_id" doc:"Camera the session was opened for"`
	State         State            `json:"state" enum:"idle,opening,ready,playing,paused,closed,failed" doc:"Lifecycle state"`
	Seeking       bool             `json:"seeking" doc:"A timestamp seek is in flight"`
	Playing       bool             `json:"playing" doc:"Playback requested"`
	URI           string           `json:"uri,omitempty" doc:"Stream URI without credentials"`
	ErrorMessage  string           `json:"error_message,omitempty" doc:"Dismissible playback error banner"`
	ErrorCode     player.ErrorCode `json:"error_code,omitempty" doc:"Transport error code behind the banner"`
	PositionMs    int64            `json:"position_ms" doc:"Playback position in milliseconds"`
	TimeSync      clocksync.Status `json:"time_sync" doc:"Last clock sync classification"`
	CameraTime    *time.Time       `json:"camera_time,omitempty" doc:"Camera clock at the last sync check"`
	LastSeekError string           `json:"last_seek_error,omitempty" doc:"Failure reason of the last seek"`
}

// Controller manages one playback session at a time.
type Controller struct {
	loop loop

	factory   player.Factory
	config    player.Config
	clock     *clocksync.Evaluator
	snapshots Snapshotter
	onChange  func(Status)
	base      *slog.Logger

	// Everything below is owned by the loop.
	logger      *slog.Logger
	id          string
	endpoint    Endpoint
	target      endpoint.Target
	handle      player.Player
	unsubscribe func()
	state       State
	playing     bool

	banner      string
	errCode     player.ErrorCode
	timeSync    clocksync.Status
	cameraTime  time.Time
	presentedMs int64

	seek        *pendingSeek
	seekErr     *player.Error
	lastSeekErr string

	// the transport lost its connection; the next Play must prepare again
	disconnected bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithPlayerConfig sets the transport configuration used for every source.
func WithPlayerConfig(cfg player.Config) Option {
	return func(c *Controller) { c.config = cfg }
}

// WithEvaluator replaces the clock sync evaluator.
func WithEvaluator(e *clocksync.Evaluator) Option {
	return func(c *Controller) { c.clock = e }
}

// WithSnapshotter sets the capture collaborator used by TakeSnapshot.
func WithSnapshotter(s Snapshotter) Option {
	return func(c *Controller) { c.snapshots = s }
}

// WithObserver registers fn to receive a Status after every change. fn runs
// on the owner loop and must not call back into the controller.
func WithObserver(fn func(Status)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// New creates an idle controller that builds transports with factory.
func New(factory player.Factory, opts ...Option) *Controller {
	c := &Controller{
		factory:     factory,
		config:      player.DefaultConfig(),
		clock:       clocksync.NewEvaluator(),
		base:        logging.GetLogger("session"),
		state:       StateIdle,
		timeSync:    clocksync.Unknown,
		presentedMs: player.TimeUnset,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.base
	return c
}

// Open starts a session for ep, replacing any current one. The previous
// transport is released before the new one is created. An address that
// cannot be normalized leaves the controller in StateFailed without creating
// a transport.
func (c *Controller) Open(ep Endpoint) error {
	var err error
	c.loop.call(func() { err = c.open(ep) })
	return err
}

func (c *Controller) open(ep Endpoint) error {
	c.teardown()

	c.id = uuid.NewString()
	c.endpoint = ep
	c.logger = c.base.With("camera_id", ep.ID, "session_id", c.id)
	c.playing = false
	c.banner = ""
	c.errCode = ""
	c.timeSync = clocksync.Unknown
	c.cameraTime = time.Time{}
	c.presentedMs = player.TimeUnset
	c.lastSeekErr = ""
	c.seekErr = nil
	c.disconnected = false
	defer c.notify()

	target, err := endpoint.Normalize(ep.Address)
	if err != nil {
		c.target = endpoint.Target{}
		c.state = StateFailed
		c.banner = bannerAddress
		c.logger.Warn("Session address rejected", "address", endpoint.Redact(ep.Address))
		return fmt.Errorf("open camera %d: %w", ep.ID, err)
	}
	c.target = target

	src, err := c.source()
	if err != nil {
		c.state = StateFailed
		c.banner = err.Error()
		return fmt.Errorf("open camera %d: %w", ep.ID, err)
	}

	handle := c.factory()
	if err := handle.SetSource(src); err != nil {
		handle.Release()
		c.state = StateFailed
		c.banner = err.Error()
		return fmt.Errorf("open camera %d: %w", ep.ID, err)
	}

	c.handle = handle
	sessionsActive.Inc()
	c.unsubscribe = handle.Subscribe(func(ev player.Event) {
		c.loop.post(func() { c.onEvent(handle, ev) })
	})

	c.state = StateOpening
	c.playing = true
	handle.Prepare()
	handle.Play()

	c.logger.Info("Session opening", "uri", target.URI)
	return nil
}

// source resolves the endpoint address again and applies credentials.
func (c *Controller) source() (player.Source, error) {
	target, err := endpoint.Normalize(c.endpoint.Address)
	if err != nil {
		return player.Source{}, err
	}
	uri := endpoint.WithCredentials(target.URI, c.endpoint.Username, c.endpoint.Password)
	return player.NewSource(uri, c.config)
}

// Close releases the transport. It is synchronous and safe to call on a
// controller that was never opened.
func (c *Controller) Close() {
	c.loop.call(func() {
		had := c.handle != nil
		c.teardown()
		if c.state == StateClosed {
			return
		}
		c.state = StateClosed
		c.playing = false
		if had {
			c.logger.Info("Session closed")
		}
		c.notify()
	})
}

// teardown cancels a pending seek, detaches the event sink and releases the
// transport, in that order.
func (c *Controller) teardown() {
	c.cancelSeek()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.handle != nil {
		c.handle.Release()
		c.handle = nil
		sessionsActive.Dec()
	}
}

func (c *Controller) onEvent(handle player.Player, ev player.Event) {
	if handle != c.handle {
		return
	}

	switch ev.Kind {
	case player.EventStateChanged:
		switch ev.State {
		case player.StateReady:
			c.banner = ""
			c.errCode = ""
			c.disconnected = false
			c.playing = handle.PlayWhenReady()
			switch {
			case c.playing:
				c.state = StatePlaying
			case c.state == StateOpening:
				c.state = StateReady
			default:
				c.state = StatePaused
			}
		case player.StateEnded:
			c.playing = false
			c.state = StateReady
		default:
			return
		}

	case player.EventError:
		if ev.Err == nil {
			return
		}
		transportErrorsTotal.WithLabelValues(string(ev.Err.Code)).Inc()
		// a pending seek reports its own failure
		if c.seek != nil || ev.Err == c.seekErr {
			return
		}
		c.banner = bannerFor(ev.Err)
		c.errCode = ev.Err.Code
		c.disconnected = true
		if c.state == StateOpening {
			c.state = StateReady
		}
		c.logger.Warn("Playback error", "code", ev.Err.Code, "error", ev.Err)

	default:
		return
	}

	c.notify()
}

func bannerFor(err *player.Error) string {
	switch err.Code {
	case player.ErrorNetworkConnectionFailed:
		return bannerNetwork
	case player.ErrorConnectionTimeout:
		return bannerTimeout
	case player.ErrorDecoderInitFailed:
		return bannerDecoder
	default:
		return "Playback error: " + err.Error()
	}
}

// TogglePlayback pauses a playing session and resumes a paused one. It
// returns whether playback is now requested.
func (c *Controller) TogglePlayback() (bool, error) {
	var playing bool
	var err error
	c.loop.call(func() {
		if c.handle == nil {
			err = ErrNoSession
			return
		}
		if c.playing {
			c.handle.Pause()
			c.playing = false
			if c.state == StatePlaying {
				c.state = StatePaused
			}
		} else {
			if c.disconnected {
				c.handle.Prepare()
				c.disconnected = false
			}
			c.handle.Play()
			c.playing = true
			if c.state == StatePaused || c.state == StateReady {
				c.state = StatePlaying
			}
		}
		playing = c.playing
		c.notify()
	})
	return playing, err
}

// SkipBack seeks d earlier than the current position, never before the
// start of the stream. A non-positive d uses DefaultSkipBack. It returns the
// position sought to.
func (c *Controller) SkipBack(d time.Duration) (int64, error) {
	if d <= 0 {
		d = DefaultSkipBack
	}

	var position int64
	var err error
	c.loop.call(func() {
		if c.handle == nil {
			err = ErrNoSession
			return
		}
		position = max(0, c.handle.CurrentPosition()-d.Milliseconds())
		c.handle.SeekTo(position)
		c.logger.Debug("Skipped back", "position_ms", position)
	})
	return position, err
}

// CheckTimeSync compares the transport's presentation clock with the local
// wall clock. Without presentation metadata the status is Unknown and the
// last known camera time is kept.
func (c *Controller) CheckTimeSync() (clocksync.Result, error) {
	var result clocksync.Result
	var err error
	c.loop.call(func() {
		if c.handle == nil {
			err = ErrNoSession
			return
		}

		timeline := c.handle.CurrentTimeline()
		if timeline.WindowCount() == 0 || timeline.Windows[0].PresentationStartTimeMs == player.TimeUnset {
			c.timeSync = clocksync.Unknown
			result = clocksync.Result{Status: clocksync.Unknown}
		} else {
			ms := timeline.Windows[0].PresentationStartTimeMs
			result = c.clock.Evaluate(ms)
			c.timeSync = result.Status
			c.cameraTime = result.CameraTime
			c.presentedMs = ms
		}

		timeSyncChecksTotal.WithLabelValues(string(result.Status.Kind)).Inc()
		c.logger.Debug("Time sync checked", "kind", result.Status.Kind, "diff_seconds", result.Status.DiffSeconds)
		c.notify()
	})
	return result, err
}

// SeekToTimestamp moves playback to the absolute wall clock time target by
// recreating the transport source with target as the position. It returns
// at once; the channel yields nil when the transport becomes ready, a
// *SeekError when the attempt fails, or ErrSeekCanceled when the seek is
// superseded. The session survives every outcome.
func (c *Controller) SeekToTimestamp(target time.Time) <-chan error {
	result := make(chan error, 1)
	c.loop.post(func() { c.seekTo(target, result) })
	return result
}

func (c *Controller) seekTo(target time.Time, result chan error) {
	if c.handle == nil {
		result <- ErrNoSession
		close(result)
		return
	}
	c.cancelSeek()

	handle := c.handle
	position := target.UnixMilli()
	s := &pendingSeek{
		handle:      handle,
		result:      result,
		target:      target,
		started:     time.Now(),
		prevState:   c.state,
		prevPlaying: c.playing,
	}
	c.seek = s

	var fired atomic.Bool
	s.unsubscribe = handle.Subscribe(func(ev player.Event) {
		if !settlesSeek(ev) || !fired.CompareAndSwap(false, true) {
			return
		}
		c.loop.post(func() { c.resolveSeek(s, ev) })
	})

	c.logger.Info("Seeking", "target", target.Format(time.RFC3339), "position_ms", position)

	if err := c.restartAt(handle, position); err != nil {
		c.seek = nil
		se := seekFailure(err.Error(), err)
		c.lastSeekErr = se.Reason
		seeksTotal.WithLabelValues(seekFailed).Inc()
		c.logger.Warn("Seek failed", "error", err)
		s.finish(se)
		c.notify()
		return
	}

	c.playing = true
	c.notify()
}

// restartAt points handle at a fresh source positioned at positionMillis.
func (c *Controller) restartAt(handle player.Player, positionMillis int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	src, err := c.source()
	if err != nil {
		return err
	}
	if err := handle.SetSource(src); err != nil {
		return err
	}
	handle.SeekTo(positionMillis)
	handle.Prepare()
	handle.Play()
	return nil
}

func settlesSeek(ev player.Event) bool {
	switch ev.Kind {
	case player.EventError:
		return ev.Err != nil
	case player.EventStateChanged:
		return ev.State == player.StateReady
	default:
		return false
	}
}

func (c *Controller) resolveSeek(s *pendingSeek, ev player.Event) {
	if c.seek != s {
		return
	}
	c.seek = nil

	var err error
	if ev.Kind == player.EventError {
		se := seekErrorFor(ev.Err)
		c.seekErr = ev.Err
		c.lastSeekErr = se.Reason
		if se.Rejected {
			c.state = s.prevState
			c.playing = s.prevPlaying
			if s.prevPlaying {
				s.handle.Play()
			} else {
				s.handle.Pause()
			}
			seeksTotal.WithLabelValues(seekRejected).Inc()
		} else {
			// the recreated source never connected, so nothing is playing
			c.state = StateReady
			c.playing = false
			c.banner = bannerFor(ev.Err)
			c.errCode = ev.Err.Code
			c.disconnected = true
			seeksTotal.WithLabelValues(seekFailed).Inc()
		}
		c.logger.Warn("Seek failed", "reason", se.Reason, "code", ev.Err.Code)
		err = se
	} else {
		c.lastSeekErr = ""
		c.banner = ""
		c.errCode = ""
		c.playing = s.handle.PlayWhenReady()
		if c.playing {
			c.state = StatePlaying
		} else {
			c.state = StatePaused
		}
		seeksTotal.WithLabelValues(seekSucceeded).Inc()
		c.logger.Info("Seek complete", "elapsed", time.Since(s.started))
	}

	s.finish(err)
	c.notify()
}

// cancelSeek deregisters a pending seek listener and resolves it.
func (c *Controller) cancelSeek() {
	if c.seek == nil {
		return
	}
	s := c.seek
	c.seek = nil
	s.finish(ErrSeekCanceled)
	seeksTotal.WithLabelValues(seekCanceled).Inc()
	c.logger.Debug("Pending seek canceled")
}

// TakeSnapshot grabs a frame from the session's stream through the capture
// collaborator. Playback state is not touched.
func (c *Controller) TakeSnapshot(ctx context.Context) (string, error) {
	if c.snapshots == nil {
		return "", errors.New("snapshots not configured")
	}

	var src player.Source
	var cameraID int64
	var err error
	c.loop.call(func() {
		if c.handle == nil {
			err = ErrNoSession
			return
		}
		cameraID = c.endpoint.ID
		src, err = c.source()
	})
	if err != nil {
		return "", err
	}

	return c.snapshots.Snapshot(ctx, cameraID, src.URI)
}

// Status returns a copy of the session state.
func (c *Controller) Status() Status {
	var st Status
	c.loop.call(func() { st = c.status() })
	return st
}

func (c *Controller) status() Status {
	st := Status{
		SessionID:     c.id,
		CameraID:      c.endpoint.ID,
		State:         c.state,
		Seeking:       c.seek != nil,
		Playing:       c.playing,
		URI:           endpoint.Redact(c.target.URI),
		ErrorMessage:  c.banner,
		ErrorCode:     c.errCode,
		TimeSync:      c.timeSync,
		LastSeekError: c.lastSeekErr,
	}
	if c.handle != nil {
		st.PositionMs = c.handle.CurrentPosition()
	}
	if c.presentedMs != player.TimeUnset {
		t := c.cameraTime
		st.CameraTime = &t
	}
	return st
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange(c.status())
	}
}
