package clock

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// WallClock is a wall-time frame signal for continuous playback. The host
// calls Tick from its per-frame render callback; each tick emits the external
// frame derived from elapsed wall time. Uses GLFW's timer so the signal is
// consistent with a GLFW-hosted render loop.
// GLFW reference: https://www.glfw.org/docs/latest/input_guide.html#time
type WallClock struct {
	subscribers
	rate  float32
	epoch float64
}

var _ Clock = &WallClock{}

// NewWallClock initializes GLFW's timer subsystem and creates a wall clock
// whose frame counter starts at zero.
//
// Parameters:
//   - rate: the external frame rate in frames per second
//
// Returns:
//   - *WallClock: the new clock
//   - error: error if GLFW initialization fails
func NewWallClock(rate float32) (*WallClock, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("clock: failed to initialize glfw: %w", err)
	}
	return &WallClock{rate: rate, epoch: glfw.GetTime()}, nil
}

func (c *WallClock) Subscribe(cb FrameCallback) *Subscription {
	return c.add(cb)
}

// Tick emits the current external frame, computed from wall time since the
// clock was created. Call once per host render frame.
func (c *WallClock) Tick() {
	elapsed := glfw.GetTime() - c.epoch
	c.broadcast(elapsed*float64(c.rate), c.rate)
}

// Reset moves the clock's epoch to now, restarting the frame counter at zero.
func (c *WallClock) Reset() {
	c.epoch = glfw.GetTime()
}

// Terminate releases GLFW resources. Call once during host teardown, after
// all subscriptions are released.
func (c *WallClock) Terminate() {
	glfw.Terminate()
}
