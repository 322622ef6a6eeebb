package session

import (
	"context"
	"errors"
	"sync"

	"github.com/smazurov/camview/internal/player"
)

// fakePlayer records calls and delivers events synchronously on emit.
type fakePlayer struct {
	mu       sync.Mutex
	subs     map[int]func(player.Event)
	nextSub  int
	sources  []player.Source
	prepared int
	plays    int
	pauses   int
	seeks    []int64

	playWhenReady bool
	position      int64
	timeline      player.Timeline
	released      bool

	// leaky keeps delivering to unsubscribed sinks, like a transport with
	// events still in flight.
	leaky        bool
	setSourceErr error
	panicPrepare bool
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{subs: make(map[int]func(player.Event))}
}

type fakeFactory struct {
	mu      sync.Mutex
	players []*fakePlayer
	setup   func(*fakePlayer)
}

func (f *fakeFactory) New() player.Player {
	p := newFakePlayer()
	if f.setup != nil {
		f.setup(p)
	}
	f.mu.Lock()
	f.players = append(f.players, p)
	f.mu.Unlock()
	return p
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.players)
}

func (f *fakeFactory) last() *fakePlayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.players[len(f.players)-1]
}

func (p *fakePlayer) SetSource(src player.Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return player.ErrReleased
	}
	if p.setSourceErr != nil {
		return p.setSourceErr
	}
	p.sources = append(p.sources, src)
	return nil
}

func (p *fakePlayer) Prepare() {
	p.mu.Lock()
	p.prepared++
	panicking := p.panicPrepare
	p.mu.Unlock()
	if panicking {
		panic("decoder exploded")
	}
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	p.playWhenReady = true
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses++
	p.playWhenReady = false
}

func (p *fakePlayer) PlayWhenReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playWhenReady
}

func (p *fakePlayer) SeekTo(positionMillis int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeks = append(p.seeks, positionMillis)
	p.position = positionMillis
}

func (p *fakePlayer) CurrentPosition() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayer) CurrentTimeline() player.Timeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeline
}

func (p *fakePlayer) Subscribe(fn func(player.Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.leaky {
			delete(p.subs, id)
		}
	}
}

func (p *fakePlayer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	if !p.leaky {
		p.subs = make(map[int]func(player.Event))
	}
}

func (p *fakePlayer) emit(ev player.Event) {
	p.mu.Lock()
	subs := make([]func(player.Event), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (p *fakePlayer) ready() {
	p.emit(player.Event{Kind: player.EventStateChanged, State: player.StateReady})
}

func (p *fakePlayer) fail(code player.ErrorCode, msg string) *player.Error {
	err := &player.Error{Code: code, Message: msg}
	p.emit(player.Event{Kind: player.EventError, Err: err})
	return err
}

func (p *fakePlayer) subscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *fakePlayer) isReleased() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

type fakeSnapshotter struct {
	cameraID int64
	uri      string
	err      error
}

func (s *fakeSnapshotter) Snapshot(_ context.Context, cameraID int64, uri string) (string, error) {
	s.cameraID = cameraID
	s.uri = uri
	if s.err != nil {
		return "", s.err
	}
	return "/snapshots/1.jpg", nil
}

var errBoom = errors.New("boom")
