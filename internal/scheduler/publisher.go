package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/nerrad567/bluegauge/internal/render"
)

// Publisher hands presentations from the scheduler to UI readers.
//
// Latest never blocks. Each subscriber channel holds at most one value: a
// newer presentation replaces one the reader has not taken yet, so a slow
// or blocked reader never holds up the scheduler.
type Publisher struct {
	latest atomic.Pointer[render.Presentation]

	mu   sync.Mutex
	subs map[int]chan *render.Presentation
	next int
}

func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[int]chan *render.Presentation)}
}

// Latest returns the most recent presentation, or nil before the first
// publish.
func (p *Publisher) Latest() *render.Presentation {
	return p.latest.Load()
}

// Subscribe returns a channel receiving every new presentation, primed with
// the current one if any. cancel closes the channel; it is safe to call
// more than once.
func (p *Publisher) Subscribe() (<-chan *render.Presentation, func()) {
	ch := make(chan *render.Presentation, 1)

	p.mu.Lock()
	id := p.next
	p.next++
	p.subs[id] = ch
	if cur := p.latest.Load(); cur != nil {
		ch <- cur
	}
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(ch)
			p.mu.Unlock()
		})
	}
	return ch, cancel
}

func (p *Publisher) publish(pres *render.Presentation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.latest.Store(pres)
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		// Only publish sends, under p.mu, so the slot is free.
		ch <- pres
	}
}
