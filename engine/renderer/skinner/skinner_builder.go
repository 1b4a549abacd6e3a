package skinner

import (
	"time"

	"github.com/Carmen-Shannon/splat-go/engine/renderer/palette"
)

// poolIdleTimeout is how long an idle prep worker lingers before the pool
// reclaims it.
const poolIdleTimeout = 1 * time.Second

// SkinnerBuilderOption is a functional option used to configure a Skinner
// during construction.
type SkinnerBuilderOption func(*skinnerImpl)

// WithPalette supplies an externally owned palette instead of letting the
// driver create its own. The caller remains responsible for releasing it.
//
// Parameters:
//   - pal: the palette to write transforms into
//
// Returns:
//   - SkinnerBuilderOption: the option to apply
func WithPalette(pal palette.Palette) SkinnerBuilderOption {
	return func(s *skinnerImpl) {
		s.pal = pal
		s.ownsPalette = false
	}
}

// WithMode sets the frame-mapping policy for the driver.
//
// Parameters:
//   - mode: ModeScrub to clamp or ModePlayback to wrap
//
// Returns:
//   - SkinnerBuilderOption: the option to apply
func WithMode(mode Mode) SkinnerBuilderOption {
	return func(s *skinnerImpl) {
		s.mode = mode
	}
}

// WithPrepWorkers sets the worker count for the parallel per-skeleton prep
// phase. Values below one are ignored.
//
// Parameters:
//   - workers: the number of prep workers
//
// Returns:
//   - SkinnerBuilderOption: the option to apply
func WithPrepWorkers(workers int) SkinnerBuilderOption {
	return func(s *skinnerImpl) {
		if workers >= 1 {
			s.prepWorkers = workers
		}
	}
}

// WithRefreshCallback registers the signal fired once per completed step in
// which any skeleton updated. The renderer uses it to refetch point positions.
//
// Parameters:
//   - callback: the refresh signal
//
// Returns:
//   - SkinnerBuilderOption: the option to apply
func WithRefreshCallback(callback func()) SkinnerBuilderOption {
	return func(s *skinnerImpl) {
		s.refreshCallback = callback
	}
}

// WithPaletteBinding overrides the bind group binding index used for the
// palette's staged writes.
//
// Parameters:
//   - binding: the binding index
//
// Returns:
//   - SkinnerBuilderOption: the option to apply
func WithPaletteBinding(binding int) SkinnerBuilderOption {
	return func(s *skinnerImpl) {
		s.paletteBinding = binding
	}
}

// WithPointSkinBinding overrides the bind group binding index used for staged
// per-point skin uploads.
//
// Parameters:
//   - binding: the binding index
//
// Returns:
//   - SkinnerBuilderOption: the option to apply
func WithPointSkinBinding(binding int) SkinnerBuilderOption {
	return func(s *skinnerImpl) {
		s.pointSkinBinding = binding
	}
}
