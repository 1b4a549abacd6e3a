package palette

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/splat-go/common"
	"github.com/Carmen-Shannon/splat-go/engine/renderer/bind_group_provider"
)

const (
	// SlotsPerRow is the number of palette slots encoded per texture row.
	SlotsPerRow = 512

	// TexelsPerSlot is the number of RGBA32Float texels one slot occupies.
	TexelsPerSlot = 3

	// IdentitySlot is the reserved sentinel slot that always decodes to the
	// identity transform. It is never allocated and never overwritten.
	IdentitySlot = 0
)

var (
	// ErrExhausted is returned by Alloc when no contiguous free range of the
	// requested size remains.
	ErrExhausted = errors.New("palette: capacity exhausted")

	// ErrStaleHandle is returned when an operation presents a handle whose
	// range was freed, never allocated, or reallocated since.
	ErrStaleHandle = errors.New("palette: stale or invalid handle")
)

// Handle identifies an allocated range of palette slots. The generation field
// detects use of handles whose range has been freed and handed out again.
type Handle struct {
	// First is the index of the range's first slot.
	First uint32

	// Count is the number of slots in the range.
	Count uint32

	// Generation is the allocation generation that produced this handle.
	Generation uint32
}

// span is a free range [first, first+count).
type span struct {
	first, count uint32
}

// allocation is the book-keeping record for a live range.
type allocation struct {
	count, generation uint32
}

// paletteImpl is the concrete implementation of the shared transform palette.
// It owns the CPU-side slot array, the arena allocator state, dirty-range
// tracking, and GPU write staging for the external renderer to drain.
type paletteImpl struct {
	mu *sync.Mutex

	provider bind_group_provider.BindGroupProvider

	rows     uint32
	capacity uint32

	slots []GPUPaletteEntry

	free        []span
	allocations map[uint32]allocation
	nextGen     uint32

	dirty                bool
	dirtyStart, dirtyEnd uint32

	stagedWriteData []bind_group_provider.BufferWrite

	// Reusable staging buffer to avoid per-frame heap allocations.
	// wgpu's queue.WriteBuffer copies data internally before returning,
	// so a single buffer reused every frame is safe.
	stagingSlots []byte
}

// Palette is the process-wide shared array of GPU-visible transform slots.
// Multiple independently-animated skeletons each hold a disjoint allocated
// range; slot writes within those ranges never overlap, so per-frame updates
// from different owners need no coordination beyond the palette's own lock.
type Palette interface {
	// Capacity returns the total number of slots, including the identity sentinel.
	//
	// Returns:
	//   - uint32: the slot capacity
	Capacity() uint32

	// Alloc reserves a contiguous range of n slots. Freed ranges are reused;
	// two live ranges are never overlapping.
	//
	// Parameters:
	//   - n: the number of slots to reserve
	//
	// Returns:
	//   - Handle: the handle identifying the reserved range
	//   - error: ErrExhausted when no contiguous range of n slots remains
	Alloc(n uint32) (Handle, error)

	// Free releases a range for reuse and resets its slots to identity.
	// Handles from a previous generation of the same range are rejected.
	//
	// Parameters:
	//   - h: the handle to release
	//
	// Returns:
	//   - error: ErrStaleHandle if the handle does not match a live range
	Free(h Handle) error

	// Slot resolves a range-local bone index to an absolute palette slot.
	//
	// Parameters:
	//   - h: the range handle
	//   - bone: the index within the range
	//
	// Returns:
	//   - uint32: the absolute slot index, or IdentitySlot when invalid
	//   - bool: false if the handle is stale or bone is out of range
	Slot(h Handle, bone uint32) (uint32, bool)

	// SetTransform overwrites one slot in a range with a column-major 4x4
	// transform and widens the dirty range for the next GPU upload.
	//
	// Parameters:
	//   - h: the range handle
	//   - bone: the index within the range
	//   - m: the column-major transform to store
	//
	// Returns:
	//   - error: ErrStaleHandle if the handle does not match a live range
	SetTransform(h Handle, bone uint32, m [16]float32) error

	// SetTransforms overwrites a whole range in one call, taking the lock
	// once. len(ms) transforms are written starting at the range's first slot;
	// extra entries beyond the range are ignored.
	//
	// Parameters:
	//   - h: the range handle
	//   - ms: the column-major transforms to store
	//
	// Returns:
	//   - error: ErrStaleHandle if the handle does not match a live range
	SetTransforms(h Handle, ms [][16]float32) error

	// Transform reads back the expanded transform currently stored in a slot.
	//
	// Parameters:
	//   - slot: the absolute slot index
	//
	// Returns:
	//   - [16]float32: the column-major transform (identity for out-of-range slots)
	Transform(slot uint32) [16]float32

	// Flush stages the dirty slot range as a GPU buffer write against the
	// given binding and clears the dirty state.
	//
	// Parameters:
	//   - binding: the bind group binding index for the palette buffer
	//
	// Returns:
	//   - uint32: the number of slots staged, 0 when nothing was dirty
	Flush(binding int) uint32

	// StagedWriteData returns and clears the pending GPU buffer writes.
	// The external renderer should call this to drain staged writes.
	//
	// Returns:
	//   - []bind_group_provider.BufferWrite: the slice of pending buffer writes
	StagedWriteData() []bind_group_provider.BufferWrite

	// TextureStaging encodes the full palette as RGBA32Float texel data,
	// TexelsPerSlot texels per slot, SlotsPerRow slots per row, for hosts
	// that consume the palette through a texture rather than a storage buffer.
	//
	// Returns:
	//   - common.TextureStagingData: the texel data with dimensions
	TextureStaging() common.TextureStagingData

	// StagedTextureWrite wraps TextureStaging as a full texture upload against
	// this palette's provider, ready for the external renderer to submit.
	//
	// Parameters:
	//   - binding: the bind group binding index for the palette texture
	//
	// Returns:
	//   - bind_group_provider.TextureWrite: the upload descriptor
	StagedTextureWrite(binding int) bind_group_provider.TextureWrite

	// Provider returns the BindGroupProvider holding this palette's GPU resources.
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the provider
	Provider() bind_group_provider.BindGroupProvider

	// Release frees all GPU resources held by the palette's provider.
	Release()
}

var _ Palette = &paletteImpl{}

// NewPalette creates a transform palette backed by rows texture rows of
// SlotsPerRow slots each. Slot 0 is initialized to identity and reserved;
// every slot starts as identity so unmapped references decode harmlessly.
//
// Parameters:
//   - rows: the number of backing texture rows (minimum 1)
//
// Returns:
//   - Palette: the new palette
func NewPalette(rows uint32) Palette {
	if rows < 1 {
		rows = 1
	}
	capacity := rows * SlotsPerRow

	p := &paletteImpl{
		mu:          &sync.Mutex{},
		provider:    bind_group_provider.NewBindGroupProvider("transform_palette"),
		rows:        rows,
		capacity:    capacity,
		slots:       make([]GPUPaletteEntry, capacity),
		free:        []span{{first: 1, count: capacity - 1}},
		allocations: make(map[uint32]allocation),
		nextGen:     1,
	}
	for i := range p.slots {
		p.slots[i] = identityEntry()
	}
	p.stagedWriteData = make([]bind_group_provider.BufferWrite, 0, 8)
	p.stagingSlots = make([]byte, int(capacity)*(&GPUPaletteEntry{}).Size())

	// The identity sentinel must reach the GPU at least once.
	p.dirty = true
	p.dirtyStart = 0
	p.dirtyEnd = 1

	return p
}

func (p *paletteImpl) Capacity() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

func (p *paletteImpl) Alloc(n uint32) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n == 0 {
		return Handle{}, fmt.Errorf("palette: zero-size allocation")
	}

	// First fit over the sorted free list.
	for i, s := range p.free {
		if s.count < n {
			continue
		}
		h := Handle{First: s.first, Count: n, Generation: p.nextGen}
		p.nextGen++

		if s.count == n {
			p.free = append(p.free[:i], p.free[i+1:]...)
		} else {
			p.free[i] = span{first: s.first + n, count: s.count - n}
		}

		p.allocations[h.First] = allocation{count: n, generation: h.Generation}
		return h, nil
	}

	return Handle{}, fmt.Errorf("%w: requested %d slots", ErrExhausted, n)
}

func (p *paletteImpl) Free(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.validate(h); err != nil {
		return err
	}
	delete(p.allocations, h.First)

	// Reset freed slots to identity so stale GPU references decode harmlessly.
	for i := h.First; i < h.First+h.Count; i++ {
		p.slots[i] = identityEntry()
	}
	p.widenDirty(h.First, h.First+h.Count)

	p.insertFree(span{first: h.First, count: h.Count})
	return nil
}

func (p *paletteImpl) Slot(h Handle, bone uint32) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.validate(h) != nil || bone >= h.Count {
		return IdentitySlot, false
	}
	return h.First + bone, true
}

func (p *paletteImpl) SetTransform(h Handle, bone uint32, m [16]float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.validate(h); err != nil {
		return err
	}
	if bone >= h.Count {
		return fmt.Errorf("palette: bone %d outside range of %d slots", bone, h.Count)
	}

	slot := h.First + bone
	p.slots[slot] = NewGPUPaletteEntry(m)
	p.widenDirty(slot, slot+1)
	return nil
}

func (p *paletteImpl) SetTransforms(h Handle, ms [][16]float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.validate(h); err != nil {
		return err
	}

	count := uint32(len(ms))
	if count > h.Count {
		count = h.Count
	}
	for i := uint32(0); i < count; i++ {
		p.slots[h.First+i] = NewGPUPaletteEntry(ms[i])
	}
	if count > 0 {
		p.widenDirty(h.First, h.First+count)
	}
	return nil
}

func (p *paletteImpl) Transform(slot uint32) [16]float32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot >= p.capacity {
		e := identityEntry()
		return e.Matrix()
	}
	return p.slots[slot].Matrix()
}

func (p *paletteImpl) Flush(binding int) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.dirty {
		return 0
	}

	count := p.dirtyEnd - p.dirtyStart
	entrySize := (&GPUPaletteEntry{}).Size()
	offset := uint64(p.dirtyStart) * uint64(entrySize)

	dirty := p.slots[p.dirtyStart:p.dirtyEnd]
	raw := common.SliceToBytes(dirty)
	buf := p.stagingSlots[:len(raw)]
	copy(buf, raw)

	p.stagedWriteData = append(p.stagedWriteData, bind_group_provider.BufferWrite{
		Provider: p.provider,
		Binding:  binding,
		Offset:   offset,
		Data:     buf,
	})

	p.dirty = false
	p.dirtyStart = 0
	p.dirtyEnd = 0

	return count
}

func (p *paletteImpl) StagedWriteData() []bind_group_provider.BufferWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.stagedWriteData
	p.stagedWriteData = p.stagedWriteData[:0]
	return w
}

func (p *paletteImpl) TextureStaging() common.TextureStagingData {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw := common.SliceToBytes(p.slots)
	pixels := make([]byte, len(raw))
	copy(pixels, raw)

	return common.TextureStagingData{
		Pixels: pixels,
		Width:  SlotsPerRow * TexelsPerSlot,
		Height: p.rows,
	}
}

func (p *paletteImpl) StagedTextureWrite(binding int) bind_group_provider.TextureWrite {
	staging := p.TextureStaging()

	p.mu.Lock()
	defer p.mu.Unlock()
	return bind_group_provider.TextureWrite{
		Provider: p.provider,
		Binding:  binding,
		Staging:  staging,
	}
}

func (p *paletteImpl) Provider() bind_group_provider.BindGroupProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.provider
}

func (p *paletteImpl) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.provider != nil {
		p.provider.Release()
	}
	p.slots = nil
	p.free = nil
	p.allocations = nil
	p.stagedWriteData = nil
	p.stagingSlots = nil
}

// validate checks a handle against the live allocation table.
// Callers must hold p.mu.
func (p *paletteImpl) validate(h Handle) error {
	a, ok := p.allocations[h.First]
	if !ok || a.count != h.Count || a.generation != h.Generation {
		return ErrStaleHandle
	}
	return nil
}

// widenDirty grows the dirty range to cover [start, end).
// Callers must hold p.mu.
func (p *paletteImpl) widenDirty(start, end uint32) {
	if !p.dirty {
		p.dirtyStart = start
		p.dirtyEnd = end
		p.dirty = true
		return
	}
	if start < p.dirtyStart {
		p.dirtyStart = start
	}
	if end > p.dirtyEnd {
		p.dirtyEnd = end
	}
}

// insertFree adds a span to the sorted free list, coalescing with adjacent
// spans. Callers must hold p.mu.
func (p *paletteImpl) insertFree(s span) {
	idx := len(p.free)
	for i, f := range p.free {
		if f.first > s.first {
			idx = i
			break
		}
	}

	p.free = append(p.free, span{})
	copy(p.free[idx+1:], p.free[idx:])
	p.free[idx] = s

	// Coalesce with the following span, then the preceding one.
	if idx+1 < len(p.free) && p.free[idx].first+p.free[idx].count == p.free[idx+1].first {
		p.free[idx].count += p.free[idx+1].count
		p.free = append(p.free[:idx+1], p.free[idx+2:]...)
	}
	if idx > 0 && p.free[idx-1].first+p.free[idx-1].count == p.free[idx].first {
		p.free[idx-1].count += p.free[idx].count
		p.free = append(p.free[:idx], p.free[idx+1:]...)
	}
}
