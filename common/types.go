// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

// TextureStagingData holds raw texel data for a texture binding pending GPU upload.
// This is primarily used by the transform palette to stage its RGBA32Float texel
// encoding before the external renderer creates the GPU texture.
type TextureStagingData struct {
	// Pixels is the byte slice representing the raw texel data for the texture.
	Pixels []byte
	// Width is the width of the texture in texels.
	Width uint32
	// Height is the height of the texture in texels.
	Height uint32
}
