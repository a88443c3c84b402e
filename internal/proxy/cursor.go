package proxy

import "sync/atomic"

// Cursor is a rotation counter shared by concurrent fetch attempts.
// The zero value is ready to use.
type Cursor struct {
	n atomic.Uint64
}

// Next returns the next index in [0, size) and advances the cursor.
// Read and increment happen in one atomic operation; the modulo is applied
// to the value that operation returned, so the index stays in range even
// when the counter wraps.
func (c *Cursor) Next(size int) int {
	if size <= 0 {
		return 0
	}
	v := c.n.Add(1) - 1
	return int(v % uint64(size))
}

// Load returns the number of selections made so far.
func (c *Cursor) Load() uint64 {
	return c.n.Load()
}
