package skinner

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/splat-go/common"
	"github.com/Carmen-Shannon/splat-go/engine/clock"
	"github.com/Carmen-Shannon/splat-go/engine/config"
	"github.com/Carmen-Shannon/splat-go/engine/model"
	"github.com/Carmen-Shannon/splat-go/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/splat-go/engine/renderer/palette"
)

// Mode selects the frame-mapping policy for a driver instance. The two
// policies are never mixed: a driver clamps or wraps, decided at construction.
type Mode int

const (
	// ModeScrub clamps the mapped frame to [0, numFrames-1]; scrubbing past
	// the clip's end holds the last frame.
	ModeScrub Mode = iota

	// ModePlayback wraps the mapped frame via modulo for continuous looping
	// playback.
	ModePlayback
)

// ModeFromName converts a config playback_mode value to a Mode, defaulting to
// ModeScrub for unknown names.
//
// Parameters:
//   - name: the mode name ("scrub" or "playback")
//
// Returns:
//   - Mode: the corresponding mode
func ModeFromName(name string) Mode {
	if name == config.ModeNamePlayback {
		return ModePlayback
	}
	return ModeScrub
}

// MapExternalFrame converts an external frame counter into a clip frame index:
// t = extFrame/extRate, index = floor(t·clipRate), then clamped (ModeScrub) or
// wrapped modulo numFrames (ModePlayback). Non-positive rates or frame counts
// map to frame 0.
//
// Parameters:
//   - extFrame: the external frame counter value
//   - extRate: the external signal's rate in frames per second
//   - clipRate: the clip's sample rate in frames per second
//   - numFrames: the clip's frame count
//   - mode: the mapping policy
//
// Returns:
//   - int: the resolved clip frame index
func MapExternalFrame(extFrame float64, extRate, clipRate float32, numFrames int, mode Mode) int {
	if numFrames <= 0 || extRate <= 0 || clipRate <= 0 {
		return 0
	}

	t := extFrame / float64(extRate)
	idx := int(math.Floor(t * float64(clipRate)))

	switch mode {
	case ModePlayback:
		idx %= numFrames
		if idx < 0 {
			idx += numFrames
		}
	default:
		if idx < 0 {
			idx = 0
		}
		if idx >= numFrames {
			idx = numFrames - 1
		}
	}

	return idx
}

// linkedAsset tracks one point cloud linked to a bound skeleton, together
// with the provider holding its per-point GPU buffers.
type linkedAsset struct {
	pc       *model.PointCloud
	provider bind_group_provider.BindGroupProvider

	// bindFailed is set after an explicit binding failure so the asset is not
	// re-attempted (and re-warned) every step.
	bindFailed bool
}

// skeletonBinding is the driver's per-skeleton state: the palette range, the
// bone-to-slot mapping derived from it, the linked asset set, and the last
// frame written. lastFrame of -1 means Bound(idle): no frame applied yet.
type skeletonBinding struct {
	skel    *model.Skeleton
	clip    *model.AnimationClip
	handle  palette.Handle
	slotMap []uint32
	linked  []*linkedAsset

	lastFrame int
}

// skinnerImpl is the concrete implementation of the Skinner driver.
type skinnerImpl struct {
	mu *sync.Mutex

	mode Mode

	pal         palette.Palette
	ownsPalette bool

	invBind *InverseBindPoseCache

	bindings map[*model.Skeleton]*skeletonBinding

	refreshCallback func()

	// prepPool manages a bounded set of reusable goroutines for the parallel
	// per-skeleton prep phase of Step. Workers persist across steps; palette
	// ranges are disjoint per skeleton so the tasks never contend on slots.
	prepPool    worker.DynamicWorkerPool
	prepWorkers int
	taskID      int

	paletteBinding, pointSkinBinding int

	stagedMu        *sync.Mutex
	stagedWriteData []bind_group_provider.BufferWrite

	clockSub *clock.Subscription
}

// Skinner is the frame-driven deformation driver for skinned point clouds. It
// binds skeletons to palette ranges, links assets to skeletons, and turns an
// external time/frame signal into palette updates: on each step it solves the
// pose for the mapped frame, multiplies in the cached inverse bind pose, writes
// the result into every bound skeleton's slot range, and fires the refresh
// callback exactly once per completed step. Failures degrade per skeleton:
// the pose freezes on the last good frame and nothing crashes.
type Skinner interface {
	// BindSkeleton reserves a palette range sized to the skeleton's bone
	// count and associates the clip that will drive it. A skeleton is bound
	// at most once; rebinding requires ReleaseSkeleton first.
	//
	// Parameters:
	//   - skel: the skeleton to bind
	//   - clip: the clip that supplies per-frame local transforms
	//
	// Returns:
	//   - error: error on double-bind or palette exhaustion
	BindSkeleton(skel *model.Skeleton, clip *model.AnimationClip) error

	// ReleaseSkeleton unlinks all assets, frees the skeleton's palette range
	// for reuse, and drops its cached inverse bind pose.
	//
	// Parameters:
	//   - skel: the skeleton to release
	//
	// Returns:
	//   - error: error if the skeleton is not bound
	ReleaseSkeleton(skel *model.Skeleton) error

	// Link adds a point cloud to the skeleton's linked set. The asset's
	// per-point binding is created lazily on the next step. An asset follows
	// at most one skeleton; relinking requires an Unlink first.
	//
	// Parameters:
	//   - skel: the bound skeleton to link against
	//   - pc: the point cloud to link
	//
	// Returns:
	//   - error: error if the skeleton is not bound or the asset is linked
	//     to a different skeleton
	Link(skel *model.Skeleton, pc *model.PointCloud) error

	// Unlink removes a point cloud from the skeleton's linked set and
	// discards the asset's binding. Palette slots stay with the skeleton;
	// they are freed by ReleaseSkeleton, not by unlinking.
	//
	// Parameters:
	//   - skel: the skeleton to unlink from
	//   - pc: the point cloud to unlink
	Unlink(skel *model.Skeleton, pc *model.PointCloud)

	// Step runs one synchronous update for an external frame signal: frame
	// mapping, pose solve, inverse-bind multiply, and palette writes for every
	// bound skeleton whose mapped frame changed, then one refresh signal.
	// Within a step those phases are strictly ordered; the renderer observes
	// palette state only after the refresh callback fires.
	//
	// Parameters:
	//   - extFrame: the external frame counter value
	//   - extRate: the external signal's rate in frames per second
	Step(extFrame float64, extRate float32)

	// AttachClock subscribes Step to a clock signal, releasing any previous
	// subscription. The subscription is released during Release.
	//
	// Parameters:
	//   - c: the clock to subscribe to
	AttachClock(c clock.Clock)

	// Palette returns the shared transform palette this driver writes to.
	//
	// Returns:
	//   - palette.Palette: the palette
	Palette() palette.Palette

	// StagedWriteData returns and clears pending GPU buffer writes: the
	// driver's per-asset point-skin writes followed by the palette's slot
	// writes. The external renderer drains this once per frame.
	//
	// Returns:
	//   - []bind_group_provider.BufferWrite: the pending writes
	StagedWriteData() []bind_group_provider.BufferWrite

	// BoundSkeletons returns the number of currently bound skeletons.
	//
	// Returns:
	//   - int: the bound skeleton count
	BoundSkeletons() int

	// Release releases the clock subscription, every skeleton binding and
	// asset provider, and the palette when this driver created it. Further
	// steps are no-ops.
	Release()
}

var _ Skinner = &skinnerImpl{}

// NewSkinner creates a skinning driver with the provided options. Without
// options it owns a fresh default-capacity palette, clamps frames (ModeScrub),
// and sizes its prep pool to the CPU count.
//
// Parameters:
//   - options: functional options to configure the driver
//
// Returns:
//   - Skinner: the new driver
func NewSkinner(options ...SkinnerBuilderOption) Skinner {
	return newSkinner(config.Default(), options...)
}

// NewSkinnerFromConfig creates a skinning driver from a YAML config file:
// palette rows, playback mode and prep worker count come from the file, with
// missing or invalid entries falling back to defaults. Options are applied
// after the config and override it.
//
// Parameters:
//   - path: the config file path
//   - options: functional options applied on top of the config
//
// Returns:
//   - Skinner: the new driver
func NewSkinnerFromConfig(path string, options ...SkinnerBuilderOption) Skinner {
	cfg, err := config.Load(path)
	if err != nil {
		slog.Warn("config load failed, using defaults", "path", path, "error", err)
	}
	return newSkinner(cfg, options...)
}

func newSkinner(cfg config.Config, options ...SkinnerBuilderOption) Skinner {
	s := &skinnerImpl{
		mu:               &sync.Mutex{},
		stagedMu:         &sync.Mutex{},
		mode:             ModeFromName(cfg.PlaybackMode),
		invBind:          NewInverseBindPoseCache(),
		bindings:         make(map[*model.Skeleton]*skeletonBinding),
		prepWorkers:      cfg.PrepWorkers,
		paletteBinding:   0,
		pointSkinBinding: 1,
	}
	s.stagedWriteData = make([]bind_group_provider.BufferWrite, 0, 8)

	for _, option := range options {
		option(s)
	}

	if s.pal == nil {
		s.pal = palette.NewPalette(uint32(cfg.PaletteRows))
		s.ownsPalette = true
	}

	// Initialize the prep pool after options so WithPrepWorkers can override
	// the default. Queue size of 256 accommodates typical skeleton counts
	// with headroom.
	s.prepPool = worker.NewDynamicWorkerPool(s.prepWorkers, 256, poolIdleTimeout)

	return s
}

func (s *skinnerImpl) BindSkeleton(skel *model.Skeleton, clip *model.AnimationClip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if skel == nil || skel.NumBones() == 0 {
		return fmt.Errorf("skinner: cannot bind empty skeleton")
	}
	if _, ok := s.bindings[skel]; ok {
		return fmt.Errorf("skinner: skeleton %q already bound", skel.Name)
	}

	handle, err := s.pal.Alloc(uint32(skel.NumBones()))
	if err != nil {
		slog.Warn("palette allocation failed, skeleton will not animate",
			"skeleton", skel.Name, "bones", skel.NumBones(), "error", err)
		return fmt.Errorf("skinner: bind %q: %w", skel.Name, err)
	}

	slotMap := make([]uint32, skel.NumBones())
	for i := range slotMap {
		slotMap[i] = handle.First + uint32(i)
	}

	s.bindings[skel] = &skeletonBinding{
		skel:      skel,
		clip:      clip,
		handle:    handle,
		slotMap:   slotMap,
		lastFrame: -1,
	}

	return nil
}

func (s *skinnerImpl) ReleaseSkeleton(skel *model.Skeleton) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[skel]
	if !ok {
		return fmt.Errorf("skinner: skeleton %q is not bound", skeletonName(skel))
	}

	for _, la := range b.linked {
		la.pc.Binding = nil
		la.provider.Release()
	}
	b.linked = nil

	if err := s.pal.Free(b.handle); err != nil {
		slog.Warn("failed to free palette range", "skeleton", skel.Name, "error", err)
	}
	s.invBind.Forget(skel)
	delete(s.bindings, skel)

	return nil
}

func (s *skinnerImpl) Link(skel *model.Skeleton, pc *model.PointCloud) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[skel]
	if !ok {
		return fmt.Errorf("skinner: skeleton %q is not bound", skeletonName(skel))
	}

	// An asset owns exactly one binding record, so it follows exactly one
	// skeleton at a time. Relinking requires an unlink first.
	for _, other := range s.bindings {
		for _, la := range other.linked {
			if la.pc != pc {
				continue
			}
			if other == b {
				return nil
			}
			return fmt.Errorf("skinner: point cloud %q is already linked to skeleton %q",
				pc.Name, other.skel.Name)
		}
	}

	b.linked = append(b.linked, &linkedAsset{
		pc:       pc,
		provider: bind_group_provider.NewBindGroupProvider("point_skin_" + pc.Name),
	})

	return nil
}

func (s *skinnerImpl) Unlink(skel *model.Skeleton, pc *model.PointCloud) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[skel]
	if !ok {
		return
	}

	for i, la := range b.linked {
		if la.pc != pc {
			continue
		}
		la.pc.Binding = nil
		la.provider.Release()
		b.linked = append(b.linked[:i], b.linked[i+1:]...)
		return
	}
}

func (s *skinnerImpl) Step(extFrame float64, extRate float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bindings == nil {
		return
	}

	// Phase 1: parallel per-skeleton prep — pose solve, inverse-bind multiply,
	// palette range write, lazy asset binding. Ranges are disjoint per
	// skeleton, so tasks only contend on the palette's own lock. A WaitGroup
	// provides the per-step barrier.
	var wg sync.WaitGroup
	updates := make([]bool, len(s.bindings))

	i := 0
	for _, b := range s.bindings {
		bCap := b
		slot := i
		id := s.taskID
		s.taskID++
		i++

		wg.Add(1)
		s.prepPool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				updates[slot] = s.prepSkeleton(bCap, extFrame, extRate)
				return nil, nil
			},
		})
	}
	wg.Wait()

	updated := false
	for _, u := range updates {
		updated = updated || u
	}
	if !updated {
		return
	}

	// Phase 2: stage the palette's dirty range, then signal the renderer.
	// The signal fires at most once per step, after all writes have landed.
	s.pal.Flush(s.paletteBinding)
	if s.refreshCallback != nil {
		s.refreshCallback()
	}
}

// prepSkeleton runs the per-skeleton portion of one step and reports whether
// anything changed. Palette writes happen only on a frame change; asset
// bindings are ensured on every step so an asset linked while the mapped
// frame is parked (clamped at the clip end, say) still gets its buffers.
// Solve failures log and leave the previous palette contents in place,
// freezing the pose on the last good frame.
func (s *skinnerImpl) prepSkeleton(b *skeletonBinding, extFrame float64, extRate float32) bool {
	if b.clip == nil {
		return false
	}

	updated := s.ensureAssetBindings(b)

	frame := MapExternalFrame(extFrame, extRate, b.clip.FrameRate, b.clip.FrameCount, s.mode)
	if frame == b.lastFrame {
		return updated
	}

	world, err := SolveFrame(b.skel, b.clip, frame)
	if err != nil {
		slog.Warn("pose solve failed, freezing previous pose",
			"skeleton", b.skel.Name, "frame", frame, "error", err)
		return updated
	}

	inverse := s.invBind.Get(b.skel)
	if len(inverse) == 0 {
		// Bind pose unavailable; skinning is disabled for this skeleton.
		return updated
	}

	final := make([][16]float32, len(world))
	for i := range world {
		if i < len(inverse) {
			common.Mul4(final[i][:], world[i][:], inverse[i][:])
		} else {
			final[i] = world[i]
		}
	}

	if err := s.pal.SetTransforms(b.handle, final); err != nil {
		slog.Warn("palette write rejected", "skeleton", b.skel.Name, "error", err)
		return updated
	}

	b.lastFrame = frame
	return true
}

// ensureAssetBindings lazily creates the per-point binding for any linked
// asset that does not have one yet, staging its GPU upload on success, and
// reports whether any binding was created. Binding failure is explicit and
// final for that asset.
func (s *skinnerImpl) ensureAssetBindings(b *skeletonBinding) bool {
	bound := false
	for _, la := range b.linked {
		if la.pc.Binding != nil || la.bindFailed {
			continue
		}

		binding, err := Bind(la.pc, b.slotMap)
		if err != nil {
			slog.Warn("skinning disabled for asset", "asset", la.pc.Name, "error", err)
			la.bindFailed = true
			continue
		}
		la.pc.Binding = binding
		bound = true

		skins := PackPointSkins(binding)
		raw := common.SliceToBytes(skins)
		snapshot := make([]byte, len(raw))
		copy(snapshot, raw)

		s.stagedMu.Lock()
		s.stagedWriteData = append(s.stagedWriteData, bind_group_provider.BufferWrite{
			Provider: la.provider,
			Binding:  s.pointSkinBinding,
			Offset:   0,
			Data:     snapshot,
		})
		s.stagedMu.Unlock()
	}
	return bound
}

func (s *skinnerImpl) AttachClock(c clock.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clockSub != nil {
		s.clockSub.Release()
	}
	s.clockSub = c.Subscribe(func(extFrame float64, extRate float32) {
		s.Step(extFrame, extRate)
	})
}

func (s *skinnerImpl) Palette() palette.Palette {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pal
}

func (s *skinnerImpl) StagedWriteData() []bind_group_provider.BufferWrite {
	s.stagedMu.Lock()
	w := s.stagedWriteData
	s.stagedWriteData = s.stagedWriteData[:0]
	s.stagedMu.Unlock()

	return append(w, s.pal.StagedWriteData()...)
}

func (s *skinnerImpl) BoundSkeletons() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bindings)
}

func (s *skinnerImpl) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clockSub != nil {
		s.clockSub.Release()
		s.clockSub = nil
	}

	for skel, b := range s.bindings {
		for _, la := range b.linked {
			la.pc.Binding = nil
			la.provider.Release()
		}
		b.linked = nil
		if err := s.pal.Free(b.handle); err != nil {
			slog.Warn("failed to free palette range", "skeleton", skel.Name, "error", err)
		}
		delete(s.bindings, skel)
	}
	s.bindings = nil

	if s.ownsPalette {
		s.pal.Release()
	}
	s.stagedWriteData = nil
}
