package notify

import (
	"sync"
	"time"

	"github.com/go-go-golems/helpdesk/pkg/clock"
)

const DefaultBannerTTL = 3 * time.Second

type BannerState struct {
	Success string
	Error   string
}

// Banner holds one success and one error message. Each clears itself
// after the configured TTL; setting a slot again restarts its timer.
type Banner struct {
	clock clock.Clock
	ttl   time.Duration

	mu         sync.Mutex
	state      BannerState
	successGen uint64
	errorGen   uint64
	successT   *clock.Timer
	errorT     *clock.Timer
	listeners  []func(BannerState)
}

func NewBanner(c clock.Clock, ttl time.Duration) *Banner {
	if ttl <= 0 {
		ttl = DefaultBannerTTL
	}
	return &Banner{clock: clock.OrReal(c), ttl: ttl}
}

func (b *Banner) Success(msg string) {
	b.mu.Lock()
	b.state.Success = msg
	b.successGen++
	gen := b.successGen
	b.successT.Stop()
	b.successT = b.clock.AfterFunc(b.ttl, func() {
		b.clear(func() bool {
			if b.successGen != gen {
				return false
			}
			b.state.Success = ""
			return true
		})
	})
	b.mu.Unlock()
	b.changed()
}

func (b *Banner) Error(msg string) {
	b.mu.Lock()
	b.state.Error = msg
	b.errorGen++
	gen := b.errorGen
	b.errorT.Stop()
	b.errorT = b.clock.AfterFunc(b.ttl, func() {
		b.clear(func() bool {
			if b.errorGen != gen {
				return false
			}
			b.state.Error = ""
			return true
		})
	})
	b.mu.Unlock()
	b.changed()
}

// Clear empties both slots immediately.
func (b *Banner) Clear() {
	b.mu.Lock()
	b.successT.Stop()
	b.errorT.Stop()
	b.successGen++
	b.errorGen++
	b.state = BannerState{}
	b.mu.Unlock()
	b.changed()
}

func (b *Banner) State() BannerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Banner) OnChange(fn func(BannerState)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

func (b *Banner) clear(apply func() bool) {
	b.mu.Lock()
	ok := apply()
	b.mu.Unlock()
	if ok {
		b.changed()
	}
}

func (b *Banner) changed() {
	b.mu.Lock()
	st := b.state
	ls := append([]func(BannerState){}, b.listeners...)
	b.mu.Unlock()
	for _, fn := range ls {
		fn(st)
	}
}
