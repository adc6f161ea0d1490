// Package trend classifies the short-term direction of each side's ask price.
package trend

import (
	"fmt"
	"sync"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

const (
	DefaultWindow     = 5
	DefaultMinSamples = 3
	DefaultThreshold  = 0.005
)

// Config tunes the classifier.
type Config struct {
	Window     int     // samples kept per market per side
	MinSamples int     // below this the trend is always NoProgress
	Threshold  float64 // minimum net move between oldest and newest sample
}

// ring is a fixed-capacity window of the most recent prices.
type ring struct {
	buf  []float64
	head int // next write position
	n    int
}

func newRing(size int) *ring {
	return &ring{buf: make([]float64, size)}
}

func (r *ring) push(p float64) {
	r.buf[r.head] = p
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// values returns the samples oldest first.
func (r *ring) values() []float64 {
	out := make([]float64, r.n)
	start := (r.head - r.n + len(r.buf)) % len(r.buf)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

type marketWindows struct {
	mu    sync.Mutex
	sides map[domain.Side]*ring
}

// Detector keeps one window per market per side.
type Detector struct {
	cfg     Config
	mu      sync.RWMutex
	markets map[string]*marketWindows
}

// NewDetector applies defaults to zero-valued fields.
func NewDetector(cfg Config) *Detector {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.MinSamples > cfg.Window {
		cfg.MinSamples = cfg.Window
	}
	if cfg.Threshold < 0 {
		cfg.Threshold = 0
	}
	return &Detector{cfg: cfg, markets: make(map[string]*marketWindows)}
}

func (d *Detector) windows(marketID string) *marketWindows {
	d.mu.RLock()
	w, ok := d.markets[marketID]
	d.mu.RUnlock()
	if ok {
		return w
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok = d.markets[marketID]; ok {
		return w
	}
	w = &marketWindows{sides: map[domain.Side]*ring{
		domain.SideUp:   newRing(d.cfg.Window),
		domain.SideDown: newRing(d.cfg.Window),
	}}
	d.markets[marketID] = w
	return w
}

// Observe appends price to the side's window and returns the new trend.
// An invalid price leaves the window untouched.
func (d *Detector) Observe(marketID string, side domain.Side, price float64) (domain.Trend, error) {
	if !side.Valid() {
		return domain.TrendNoProgress, fmt.Errorf("trend.Observe: unknown side %q", side)
	}
	if !domain.ValidPrice(price) {
		return domain.TrendNoProgress, fmt.Errorf("trend.Observe: %s price %.4f: %w", side, price, domain.ErrInvalidPrice)
	}

	w := d.windows(marketID)
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.sides[side]
	r.push(price)
	return Classify(r.values(), d.cfg.MinSamples, d.cfg.Threshold), nil
}

// State returns the current classification without adding a sample.
func (d *Detector) State(marketID string, side domain.Side) domain.Trend {
	samples := d.Window(marketID, side)
	return Classify(samples, d.cfg.MinSamples, d.cfg.Threshold)
}

// Window returns a copy of the side's samples, oldest first.
func (d *Detector) Window(marketID string, side domain.Side) []float64 {
	d.mu.RLock()
	w, ok := d.markets[marketID]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.sides[side]
	if !ok {
		return nil
	}
	return r.values()
}

// Forget drops the windows of a closed market.
func (d *Detector) Forget(marketID string) {
	d.mu.Lock()
	delete(d.markets, marketID)
	d.mu.Unlock()
}

// Classify labels samples (oldest first). Rising requires every step to be
// non-decreasing and a net rise of at least threshold; Falling mirrors it.
// A flat series is NoProgress.
func Classify(samples []float64, minSamples int, threshold float64) domain.Trend {
	if len(samples) < minSamples || len(samples) < 2 {
		return domain.TrendNoProgress
	}

	nonDecreasing, nonIncreasing := true, true
	for i := 1; i < len(samples); i++ {
		switch {
		case samples[i] < samples[i-1]:
			nonDecreasing = false
		case samples[i] > samples[i-1]:
			nonIncreasing = false
		}
	}

	net := samples[len(samples)-1] - samples[0]
	switch {
	case nonDecreasing && net > 0 && net >= threshold:
		return domain.TrendRising
	case nonIncreasing && net < 0 && -net >= threshold:
		return domain.TrendFalling
	}
	return domain.TrendNoProgress
}
