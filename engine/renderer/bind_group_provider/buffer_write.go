package bind_group_provider

import "github.com/Carmen-Shannon/splat-go/common"

// BufferWrite describes a single GPU buffer write operation targeting a specific binding
// on a BindGroupProvider at a given byte offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}

// TextureWrite describes a full texture upload targeting a specific binding on a
// BindGroupProvider. The transform palette stages one of these when a host consumes
// the palette through its texture encoding rather than a storage buffer.
type TextureWrite struct {
	Provider BindGroupProvider
	Binding  int
	Staging  common.TextureStagingData
}
