// package clock provides the external time/frame signal that drives the
// skinning engine. Hosts either scrub a ManualClock from editor input or tick
// a WallClock from their render loop; the skinner subscribes to whichever is
// in use and receives (external frame, external rate) pairs.
package clock

import "sync"

// FrameCallback receives the external frame signal: a monotonic (or scrubbed)
// frame counter and the rate that counter advances at, in frames per second.
type FrameCallback func(extFrame float64, extRate float32)

// Subscription is the token returned by Subscribe. Release detaches the
// callback; it is safe to call more than once but takes effect exactly once.
type Subscription struct {
	once    sync.Once
	release func()
}

// Release detaches the subscription from its clock.
func (s *Subscription) Release() {
	s.once.Do(s.release)
}

// Clock is an external frame signal source.
type Clock interface {
	// Subscribe registers a callback invoked on every signal emission.
	// The returned token must be released exactly once during teardown.
	//
	// Parameters:
	//   - cb: the callback to invoke with each (frame, rate) pair
	//
	// Returns:
	//   - *Subscription: the release token for this registration
	Subscribe(cb FrameCallback) *Subscription
}

// subscribers is the shared registry implementation behind the clock types.
type subscribers struct {
	mu     sync.Mutex
	subs   map[uint64]FrameCallback
	nextID uint64
}

func (s *subscribers) add(cb FrameCallback) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[uint64]FrameCallback)
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = cb
	return &Subscription{release: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}}
}

// broadcast invokes every registered callback with the given signal.
// Callbacks run outside the registry lock so a callback may release its own
// subscription.
func (s *subscribers) broadcast(extFrame float64, extRate float32) {
	s.mu.Lock()
	cbs := make([]FrameCallback, 0, len(s.subs))
	for _, cb := range s.subs {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(extFrame, extRate)
	}
}

// ManualClock is a host-driven frame signal for scrub/editor use. The host
// calls Seek with the external frame it wants the engine to show; there is no
// internal timer.
type ManualClock struct {
	subscribers
	rate float32
}

var _ Clock = &ManualClock{}

// NewManualClock creates a manual clock advertising the given external rate.
//
// Parameters:
//   - rate: the external frame rate in frames per second
//
// Returns:
//   - *ManualClock: the new clock
func NewManualClock(rate float32) *ManualClock {
	return &ManualClock{rate: rate}
}

func (c *ManualClock) Subscribe(cb FrameCallback) *Subscription {
	return c.add(cb)
}

// Seek emits the given external frame to all subscribers. Seeking backwards
// is allowed; subscribers decide how to map the value.
//
// Parameters:
//   - extFrame: the external frame counter value
func (c *ManualClock) Seek(extFrame float64) {
	c.broadcast(extFrame, c.rate)
}
