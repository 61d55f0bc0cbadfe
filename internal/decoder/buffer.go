package decoder

import "github.com/genricoloni/hificlock/internal/domain"

// maxRetained caps the carried-over remainder; anything larger cannot be a
// valid incomplete frame
const maxRetained = MaxPayload + HeaderSize

// Buffer accumulates reads and keeps the undecoded remainder between them.
// It is not safe for concurrent use; each reader owns one.
type Buffer struct {
	dec     *Decoder
	pending []byte

	// Skipped is the running total of bytes dropped during resync
	Skipped uint64
	// Overflows counts how often the remainder was discarded
	Overflows uint64
}

// NewBuffer creates an empty buffer around dec
func NewBuffer(dec *Decoder) *Buffer {
	return &Buffer{dec: dec}
}

// Feed appends p and returns every chunk completed by it
func (b *Buffer) Feed(p []byte) []domain.RawChunk {
	b.pending = append(b.pending, p...)

	res := b.dec.Decode(b.pending)
	b.Skipped += uint64(res.Skipped)

	rest := b.pending[res.Consumed:]
	if len(rest) > maxRetained {
		b.Overflows++
		rest = nil
	}

	// Compact so the backing array does not grow without bound
	b.pending = append(b.pending[:0], rest...)
	return res.Chunks
}

// Pending returns the number of retained bytes
func (b *Buffer) Pending() int {
	return len(b.pending)
}

// Reset drops any retained bytes
func (b *Buffer) Reset() {
	b.pending = b.pending[:0]
}
