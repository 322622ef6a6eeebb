package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/rtsp"
	"github.com/AlexxIT/go2rtc/pkg/tcp"
	"github.com/kelindar/event"
	"github.com/smazurov/camview/internal/endpoint"
	"github.com/smazurov/camview/internal/logging"
)

const (
	methodPlay  = "PLAY"
	methodPause = "PAUSE"

	noSeek int64 = -1
)

// RTSP is a Player backed by go2rtc's RTSP client. Media is always pulled
// over interleaved TCP.
type RTSP struct {
	mu         sync.Mutex
	dispatcher *event.Dispatcher
	unsubs     map[int]func()
	nextSub    int
	logger     *slog.Logger

	source   Source
	conn     *rtsp.Conn
	gen      uint64
	state    State
	released bool

	playWhenReady bool
	playing       bool
	handling      bool
	awaiting      string

	// position bookkeeping in stream milliseconds
	pendingSeek  int64
	basePosition int64
	playStarted  time.Time

	// camera clock at anchorPosition, or TimeUnset
	presentationMs int64
	anchorPosition int64
}

// NewRTSP creates an idle RTSP player.
func NewRTSP() *RTSP {
	return &RTSP{
		dispatcher:     event.NewDispatcher(),
		unsubs:         make(map[int]func()),
		logger:         logging.GetLogger("player"),
		state:          StateIdle,
		pendingSeek:    noSeek,
		presentationMs: TimeUnset,
	}
}

// NewRTSPFactory returns a Factory producing RTSP players.
func NewRTSPFactory() Factory {
	return func() Player { return NewRTSP() }
}

// Subscribe implements Player.
func (p *RTSP) Subscribe(fn func(Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return func() {}
	}

	id := p.nextSub
	p.nextSub++
	p.unsubs[id] = event.Subscribe(p.dispatcher, fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			unsub, ok := p.unsubs[id]
			delete(p.unsubs, id)
			p.mu.Unlock()
			if ok {
				unsub()
			}
		})
	}
}

// SetSource implements Player.
func (p *RTSP) SetSource(src Source) error {
	if src.URI == "" {
		return fmt.Errorf("empty source uri")
	}

	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrReleased
	}
	old := p.resetLocked()
	p.source = src
	p.state = StateIdle
	p.mu.Unlock()

	if old != nil {
		_ = old.Stop()
	}

	p.logger.Debug("Source set", "uri", endpoint.Redact(src.URI))
	return nil
}

// resetLocked invalidates in-flight work and detaches the connection.
func (p *RTSP) resetLocked() *rtsp.Conn {
	p.gen++
	old := p.conn
	p.conn = nil
	p.playing = false
	p.handling = false
	p.awaiting = ""
	p.pendingSeek = noSeek
	p.basePosition = 0
	p.presentationMs = TimeUnset
	p.anchorPosition = 0
	return old
}

// Prepare implements Player.
func (p *RTSP) Prepare() {
	p.mu.Lock()
	if p.released || p.source.URI == "" {
		p.mu.Unlock()
		return
	}
	old := p.conn
	p.conn = nil
	p.handling = false
	p.gen++
	gen := p.gen
	src := p.source
	p.state = StateBuffering
	p.mu.Unlock()

	if old != nil {
		_ = old.Stop()
	}

	p.publish(gen, Event{Kind: EventStateChanged, State: StateBuffering})
	go p.connect(gen, src)
}

// connect runs the DESCRIBE/SETUP exchange and starts playback if requested.
func (p *RTSP) connect(gen uint64, src Source) {
	logger := p.logger.With("uri", endpoint.Redact(src.URI))

	if !src.Config.ForceReliableTransport {
		logger.Debug("Datagram delivery not available, using interleaved TCP")
	}

	conn := rtsp.NewClient(src.URI)
	conn.UserAgent = src.Config.ClientIdentifier
	if src.Config.Timeout > 0 {
		conn.Timeout = int(src.Config.Timeout / time.Second)
	}

	if err := conn.Dial(); err != nil {
		p.abandon(gen, classifyNetError(err))
		return
	}

	if err := conn.Describe(); err != nil {
		_ = conn.Stop()
		// go2rtc keeps the body of an accepted DESCRIBE even when it cannot parse it
		if conn.SDP != "" {
			p.abandon(gen, &Error{Code: ErrorDecoderInitFailed, Message: "unreadable stream description", Cause: err})
			return
		}
		p.abandon(gen, classifyRequestError("DESCRIBE", nil, err))
		return
	}

	tracks := 0
	for _, media := range conn.Medias {
		if media.Direction != core.DirectionRecvonly || len(media.Codecs) == 0 {
			continue
		}
		if _, err := conn.GetTrack(media, media.Codecs[0]); err != nil {
			logger.Debug("Track setup failed", "kind", media.Kind, "error", err)
			continue
		}
		tracks++
	}
	if tracks == 0 {
		_ = conn.Stop()
		p.abandon(gen, &Error{Code: ErrorDecoderInitFailed, Message: "stream has no playable media"})
		return
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		_ = conn.Stop()
		return
	}
	p.conn = conn
	play := p.playWhenReady
	if !play {
		p.state = StateReady
	}
	p.mu.Unlock()

	conn.Listen(func(msg any) {
		if res, ok := msg.(*tcp.Response); ok {
			p.onResponse(gen, res)
		}
	})

	logger.Debug("Session set up", "tracks", tracks)

	if play {
		p.startPlay(gen, conn)
		return
	}
	p.publish(gen, Event{Kind: EventStateChanged, State: StateReady})
}

// startPlay sends the first PLAY synchronously, then hands the connection to
// the read loop.
func (p *RTSP) startPlay(gen uint64, conn *rtsp.Conn) {
	p.mu.Lock()
	seek := p.pendingSeek
	p.mu.Unlock()

	req := newRequest(methodPlay, conn, seek)
	res, err := conn.Do(req)
	if err != nil {
		playErr := classifyRequestError(methodPlay, res, err)
		if playErr.Code != ErrorRemote {
			p.mu.Lock()
			if gen == p.gen {
				p.conn = nil
			}
			p.mu.Unlock()
			_ = conn.Stop()
			p.abandon(gen, playErr)
			return
		}
		p.mu.Lock()
		if gen == p.gen {
			// a rejected PLAY leaves the session set up; a later Play retries live
			p.pendingSeek = noSeek
			p.state = StateReady
		}
		p.mu.Unlock()
		p.fail(gen, playErr)
		return
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.commitPlayLocked(seek, res)
	p.handling = true
	p.state = StateReady
	p.mu.Unlock()

	p.publish(gen, Event{Kind: EventStateChanged, State: StateReady})

	go p.handle(gen, conn)
}

// commitPlayLocked applies an acknowledged PLAY.
func (p *RTSP) commitPlayLocked(seek int64, res *tcp.Response) {
	if seek != noSeek {
		p.basePosition = seek
		p.pendingSeek = noSeek
	}
	p.playing = p.playWhenReady
	p.playStarted = time.Now()

	if res != nil {
		if clock, ok := parseRangeClock(res.Header.Get("Range")); ok {
			p.presentationMs = clock
			p.anchorPosition = p.basePosition
		}
	}
}

func (p *RTSP) handle(gen uint64, conn *rtsp.Conn) {
	err := conn.Handle()

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.handling = false
	p.playing = false
	p.pendingSeek = noSeek
	p.mu.Unlock()

	if err != nil && !errors.Is(err, net.ErrClosed) {
		p.fail(gen, classifyRequestError("PLAY", nil, err))
		return
	}

	p.mu.Lock()
	p.state = StateEnded
	p.mu.Unlock()
	p.publish(gen, Event{Kind: EventStateChanged, State: StateEnded})
}

// onResponse handles replies to requests written while the read loop owns
// the connection.
func (p *RTSP) onResponse(gen uint64, res *tcp.Response) {
	p.mu.Lock()
	if gen != p.gen || !p.handling || p.awaiting == "" {
		p.mu.Unlock()
		return
	}
	method := p.awaiting
	p.awaiting = ""

	if res.StatusCode >= 300 {
		p.pendingSeek = noSeek
		p.mu.Unlock()
		p.fail(gen, &Error{
			Code:    ErrorRemote,
			Message: fmt.Sprintf("%s rejected with status %d", method, res.StatusCode),
		})
		return
	}

	if method != methodPlay {
		p.mu.Unlock()
		return
	}
	p.commitPlayLocked(p.pendingSeek, res)
	p.state = StateReady
	p.mu.Unlock()

	p.publish(gen, Event{Kind: EventStateChanged, State: StateReady})
}

// Play implements Player.
func (p *RTSP) Play() {
	p.mu.Lock()
	p.playWhenReady = true
	conn := p.conn
	gen := p.gen
	handling := p.handling
	ready := p.state == StateReady
	if conn == nil || p.playing {
		p.mu.Unlock()
		return
	}
	if handling {
		p.awaiting = methodPlay
		seek := p.pendingSeek
		p.mu.Unlock()
		p.write(gen, conn, newRequest(methodPlay, conn, seek))
		return
	}
	if ready {
		p.state = StateBuffering
	}
	p.mu.Unlock()

	if ready {
		go p.startPlay(gen, conn)
	}
}

// Pause implements Player.
func (p *RTSP) Pause() {
	p.mu.Lock()
	p.playWhenReady = false
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.basePosition = p.positionLocked()
	p.playing = false
	conn := p.conn
	gen := p.gen
	p.awaiting = methodPause
	p.mu.Unlock()

	p.write(gen, conn, newRequest(methodPause, conn, noSeek))
}

// PlayWhenReady implements Player.
func (p *RTSP) PlayWhenReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playWhenReady
}

// SeekTo implements Player.
func (p *RTSP) SeekTo(positionMillis int64) {
	if positionMillis < 0 {
		positionMillis = 0
	}

	p.mu.Lock()
	p.pendingSeek = positionMillis
	if !p.handling || !p.playing || p.conn == nil {
		p.mu.Unlock()
		return
	}
	conn := p.conn
	gen := p.gen
	p.awaiting = methodPlay
	p.mu.Unlock()

	p.write(gen, conn, newRequest(methodPlay, conn, positionMillis))
}

// CurrentPosition implements Player.
func (p *RTSP) CurrentPosition() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pendingSeek != noSeek && !p.playing {
		return p.pendingSeek
	}
	return p.positionLocked()
}

func (p *RTSP) positionLocked() int64 {
	if !p.playing {
		return p.basePosition
	}
	return p.basePosition + time.Since(p.playStarted).Milliseconds()
}

// CurrentTimeline implements Player.
func (p *RTSP) CurrentTimeline() Timeline {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return Timeline{}
	}
	start := TimeUnset
	if p.presentationMs != TimeUnset {
		start = p.presentationMs + (p.positionLocked() - p.anchorPosition)
	}
	return Timeline{Windows: []Window{{PresentationStartTimeMs: start}}}
}

// Release implements Player.
func (p *RTSP) Release() {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	old := p.resetLocked()
	p.state = StateIdle
	unsubs := p.unsubs
	p.unsubs = make(map[int]func())
	p.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if old != nil {
		_ = old.Stop()
	}
	p.logger.Debug("Player released")
}

func (p *RTSP) write(gen uint64, conn *rtsp.Conn, req *tcp.Request) {
	if err := conn.WriteRequest(req); err != nil {
		p.fail(gen, classifyNetError(err))
	}
}

// abandon reports a connection attempt that never reached the ready state.
// The player returns to idle and forgets any pending seek, so the next
// Prepare starts live.
func (p *RTSP) abandon(gen uint64, err *Error) {
	p.mu.Lock()
	if gen == p.gen {
		p.pendingSeek = noSeek
		p.state = StateIdle
	}
	p.mu.Unlock()
	p.fail(gen, err)
}

// fail reports err unless gen has been superseded.
func (p *RTSP) fail(gen uint64, err *Error) {
	p.mu.Lock()
	if gen != p.gen || p.released {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.logger.Debug("Playback error", "code", err.Code, "error", err)
	p.publish(gen, Event{Kind: EventError, Err: err})
}

func (p *RTSP) publish(gen uint64, ev Event) {
	p.mu.Lock()
	stale := gen != p.gen || p.released
	p.mu.Unlock()
	if stale {
		return
	}
	event.Publish(p.dispatcher, ev)
}

func newRequest(method string, conn *rtsp.Conn, seek int64) *tcp.Request {
	req := &tcp.Request{
		Method: method,
		URL:    conn.URL,
		Header: map[string][]string{},
	}
	if seek != noSeek {
		req.Header.Set("Range", formatRange(seek))
	}
	return req
}

// classifyNetError maps connection level failures to error codes.
func classifyNetError(err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: ErrorConnectionTimeout, Message: err.Error(), Cause: err}
	}
	return &Error{Code: ErrorNetworkConnectionFailed, Message: err.Error(), Cause: err}
}

// classifyRequestError separates RTSP refusals from connections the camera
// dropped or never answered on.
func classifyRequestError(method string, res *tcp.Response, err error) *Error {
	if res != nil && res.StatusCode >= 300 {
		return &Error{
			Code:    ErrorRemote,
			Message: fmt.Sprintf("%s rejected with status %d", method, res.StatusCode),
			Cause:   err,
		}
	}
	if isRefusal(err) {
		return &Error{Code: ErrorRemote, Message: err.Error(), Cause: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{
			Code:    ErrorNetworkConnectionFailed,
			Message: fmt.Sprintf("connection closed during %s", method),
			Cause:   err,
		}
	}
	return classifyNetError(err)
}

// isRefusal matches the errors go2rtc returns in place of a non-success
// response it consumed itself.
func isRefusal(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "wrong response on ") ||
		msg == "user/pass not provided" ||
		msg == "wrong user/pass"
}
