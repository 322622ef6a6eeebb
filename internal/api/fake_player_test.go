package api

import (
	"context"
	"sync"

	"github.com/smazurov/camview/internal/player"
)

// scriptPlayer becomes ready on every Prepare unless seekErr is set and a
// wall clock seek preceded it.
type scriptPlayer struct {
	mu       sync.Mutex
	subs     map[int]func(player.Event)
	nextSub  int
	position int64
	timeline player.Timeline
	seeked   bool
	playing  bool
	seekErr  *player.Error
	released bool
}

func newScriptPlayer() *scriptPlayer {
	return &scriptPlayer{subs: make(map[int]func(player.Event))}
}

func (p *scriptPlayer) SetSource(player.Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return player.ErrReleased
	}
	return nil
}

func (p *scriptPlayer) Prepare() {
	p.mu.Lock()
	ev := player.Event{Kind: player.EventStateChanged, State: player.StateReady}
	if p.seeked && p.seekErr != nil {
		ev = player.Event{Kind: player.EventError, Err: p.seekErr}
	}
	p.seeked = false
	p.mu.Unlock()
	p.emit(ev)
}

func (p *scriptPlayer) Play() {
	p.mu.Lock()
	p.playing = true
	p.mu.Unlock()
}

func (p *scriptPlayer) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

func (p *scriptPlayer) PlayWhenReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *scriptPlayer) SeekTo(positionMillis int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = positionMillis
	p.seeked = true
}

func (p *scriptPlayer) CurrentPosition() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *scriptPlayer) CurrentTimeline() player.Timeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeline
}

func (p *scriptPlayer) Subscribe(fn func(player.Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *scriptPlayer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	p.subs = make(map[int]func(player.Event))
}

func (p *scriptPlayer) emit(ev player.Event) {
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

type scriptFactory struct {
	mu      sync.Mutex
	players []*scriptPlayer
	setup   func(*scriptPlayer)
}

func (f *scriptFactory) New() player.Player {
	p := newScriptPlayer()
	if f.setup != nil {
		f.setup(p)
	}
	f.mu.Lock()
	f.players = append(f.players, p)
	f.mu.Unlock()
	return p
}

func (f *scriptFactory) last() *scriptPlayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.players[len(f.players)-1]
}

type stubSnapshotter struct {
	err error
}

func (s stubSnapshotter) Snapshot(_ context.Context, _ int64, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "/var/lib/camview/snapshots/camera-1.jpg", nil
}
