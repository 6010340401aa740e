package progress

import (
	"sync"
	"sync/atomic"
)

// Percent maps byte progress to an integer percentage,
// round(sent*100/total), clamped to [0,100]. A zero total reports 0.
func Percent(sent, total int64) int {
	if total <= 0 || sent <= 0 {
		return 0
	}
	if sent >= total {
		return 100
	}
	return int((sent*100 + total/2) / total)
}

// Projector accumulates bytes sent for one batch and publishes the
// projected percentage whenever it moves forward. The reported percentage
// never decreases.
type Projector struct {
	total    int64
	sent     atomic.Int64
	percent  atomic.Int32
	onChange func(percent int)

	mu sync.Mutex // orders onChange calls
}

// NewProjector returns a projector for a body of total bytes. onChange is
// called from the writing goroutine each time the percentage increases.
func NewProjector(total int64, onChange func(percent int)) *Projector {
	return &Projector{total: total, onChange: onChange}
}

// Add records n more bytes sent.
func (p *Projector) Add(n int64) {
	if n <= 0 {
		return
	}
	p.advance(Percent(p.sent.Add(n), p.total))
}

// Complete forces 100%. Used once the whole body has been handed to the
// transport, which also covers zero-byte batches.
func (p *Projector) Complete() {
	p.advance(100)
}

// Percent returns the last reported percentage.
func (p *Projector) Percent() int {
	return int(p.percent.Load())
}

// Sent returns the bytes recorded so far.
func (p *Projector) Sent() int64 {
	return p.sent.Load()
}

// Total returns the expected byte count.
func (p *Projector) Total() int64 {
	return p.total
}

func (p *Projector) advance(pct int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int32(pct) <= p.percent.Load() {
		return
	}
	p.percent.Store(int32(pct))
	if p.onChange != nil {
		p.onChange(pct)
	}
}
