package skeleton

import "sync"

// Live is the body-pose configuration the running server poses the user
// with. It is safe for concurrent use.
type Live struct {
	mu     sync.RWMutex
	config *Config
}

// NewLive returns a live model seeded with values.
func NewLive(values map[ConfigValue]float64) *Live {
	c := NewConfig()
	c.SetAll(values)
	return &Live{config: c}
}

// Values returns every key with its effective value.
func (l *Live) Values() map[ConfigValue]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Values()
}

// Height returns the summed height-contributing values.
func (l *Live) Height() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Height()
}

// Update runs fn with exclusive access to the config.
func (l *Live) Update(fn func(c *Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.config)
}
