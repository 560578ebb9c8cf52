// Package chunk defines the immutable tensor payload shared by items.
package chunk

// Key identifies a Chunk uniquely within a service lifetime.
type Key uint64

// Chunk is an immutable blob of tensor data. Once constructed its Data must
// not be mutated; callers that need to hold it alive keep a strong
// reference (a *Chunk), never a copy of Data.
type Chunk struct {
	Key  Key
	Data []byte
}

// New builds a Chunk, taking ownership of data (the caller must not reuse
// the slice afterwards).
func New(key Key, data []byte) *Chunk {
	return &Chunk{Key: key, Data: data}
}

// Size returns the serialized byte size of the chunk's payload.
func (c *Chunk) Size() int64 {
	if c == nil {
		return 0
	}
	return int64(len(c.Data))
}
