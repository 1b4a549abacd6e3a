package skinner

import (
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/splat-go/common"
	"github.com/Carmen-Shannon/splat-go/engine/model"
)

// InverseBindPoseCache lazily computes and memoizes the inverse of each bone's
// bind-pose world transform, per skeleton instance. The bind pose is assumed
// static: there is no invalidation path, and a skeleton whose rest-pose data
// changes after first use will not be reflected.
type InverseBindPoseCache struct {
	mu    *sync.Mutex
	cache map[*model.Skeleton][][16]float32
}

// NewInverseBindPoseCache creates an empty cache.
//
// Returns:
//   - *InverseBindPoseCache: the new cache
func NewInverseBindPoseCache() *InverseBindPoseCache {
	return &InverseBindPoseCache{
		mu:    &sync.Mutex{},
		cache: make(map[*model.Skeleton][][16]float32),
	}
}

// Get returns the skeleton's inverse bind-pose transforms, solving and
// inverting the rest pose on first use. When the rest pose is unavailable an
// empty (non-nil) result is cached and a warning logged once; callers treat an
// empty result as "skinning disabled for this skeleton".
//
// Parameters:
//   - skel: the skeleton to look up
//
// Returns:
//   - [][16]float32: one inverse bind transform per bone, or empty when unavailable
func (c *InverseBindPoseCache) Get(skel *model.Skeleton) [][16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.cache[skel]; ok {
		return cached
	}

	bind, err := SolveRestPose(skel)
	if err != nil {
		slog.Warn("bind pose unavailable, skinning disabled for skeleton",
			"skeleton", skeletonName(skel), "error", err)
		empty := make([][16]float32, 0)
		c.cache[skel] = empty
		return empty
	}

	inverse := make([][16]float32, len(bind))
	for i := range bind {
		if !common.Invert4(inverse[i][:], bind[i][:]) {
			slog.Warn("bind transform is singular, using identity inverse",
				"skeleton", skeletonName(skel), "bone", i)
			common.Identity(inverse[i][:])
		}
	}

	c.cache[skel] = inverse
	return inverse
}

// Forget drops a skeleton's cached entry. Used on skeleton teardown so the
// cache does not pin destroyed skeletons.
//
// Parameters:
//   - skel: the skeleton to drop
func (c *InverseBindPoseCache) Forget(skel *model.Skeleton) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, skel)
}
