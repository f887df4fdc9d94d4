package types

import "fmt"

// Chunk describes one byte range of the source object. It is created
// empty by the producer at a keyframe-aligned offset and filled by exactly
// one worker; whoever holds the pointer owns Data.
type Chunk struct {
	Offset     int64  // multiple of the TS packet size
	Size       int64  // requested length in bytes
	Data       []byte // fetched bytes, possibly fewer than Size at end of object
	Downloaded bool   // last fetch attempt succeeded at the transport level
}

// NewChunk returns an empty descriptor for [offset, offset+size).
func NewChunk(offset, size int64) *Chunk {
	return &Chunk{Offset: offset, Size: size}
}

// End returns the exclusive end offset of the requested range.
func (c *Chunk) End() int64 {
	return c.Offset + c.Size
}

// RangeHeader returns the HTTP Range header value for the requested bytes.
func (c *Chunk) RangeHeader() string {
	return fmt.Sprintf("bytes=%d-%d", c.Offset, c.Offset+c.Size-1)
}

// ShortRead reports a transport success that returned fewer bytes than
// requested, which marks the end of the object.
func (c *Chunk) ShortRead() bool {
	return c.Downloaded && int64(len(c.Data)) < c.Size
}

// Reset discards any fetched bytes ahead of a new attempt.
func (c *Chunk) Reset() {
	c.Data = c.Data[:0]
	c.Downloaded = false
}

// Filename formats the chunk offset into a sink file pattern such as
// "chunk_%d.ts".
func (c *Chunk) Filename(pattern string) string {
	return fmt.Sprintf(pattern, c.Offset)
}
