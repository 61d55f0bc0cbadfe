// Package decoder parses the receiver's length-prefixed metadata frames.
//
// Frame layout:
//
//	+-----------+-----------+----------------------+-----------------+
//	| signature | type code | length (u64, BE)     | payload         |
//	| 4 bytes   | 4 bytes   | 8 bytes              | length bytes    |
//	+-----------+-----------+----------------------+-----------------+
//
// The stream is not guaranteed to start on a frame boundary and may contain
// foreign bytes, so the decoder resynchronizes one byte at a time.
package decoder

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/genricoloni/hificlock/internal/domain"
)

const (
	// DefaultSignature is the literal that opens every frame
	DefaultSignature = "ssnc"

	// HeaderSize is signature + code + length
	HeaderSize = 4 + 4 + 8

	// MaxPayload bounds a single frame. A header declaring more than this is
	// treated as a false signature match.
	MaxPayload = 16 * 1024 * 1024
)

// Decoder splits byte buffers into chunks
type Decoder struct {
	signature []byte
}

// New creates a decoder for the given 4-byte signature.
// An invalid signature falls back to DefaultSignature.
func New(signature string) *Decoder {
	if len(signature) != 4 {
		signature = DefaultSignature
	}
	return &Decoder{signature: []byte(signature)}
}

// Result describes one pass over a buffer
type Result struct {
	Chunks []domain.RawChunk
	// Consumed is the number of leading bytes the caller may discard
	Consumed int
	// Skipped counts bytes dropped while resynchronizing
	Skipped int
}

// Decode extracts every complete frame from buf. Bytes belonging to an
// incomplete trailing frame are not consumed. Payloads are copied, so buf
// may be reused by the caller.
func (d *Decoder) Decode(buf []byte) Result {
	var res Result
	off := 0

	for len(buf)-off >= len(d.signature) {
		if !bytes.Equal(buf[off:off+len(d.signature)], d.signature) {
			off++
			res.Skipped++
			continue
		}

		if len(buf)-off < HeaderSize {
			break // header incomplete
		}

		code := domain.Code(buf[off+4 : off+8])
		length := binary.BigEndian.Uint64(buf[off+8 : off+HeaderSize])

		if length > MaxPayload {
			// Signature bytes inside foreign data; resync past them
			off++
			res.Skipped++
			continue
		}

		end := off + HeaderSize + int(length)
		if end > len(buf) {
			break // payload incomplete
		}

		payload := make([]byte, length)
		copy(payload, buf[off+HeaderSize:end])

		res.Chunks = append(res.Chunks, domain.RawChunk{
			Code:    code,
			Length:  length,
			Payload: payload,
		})
		off = end
	}

	// Trailing bytes shorter than a signature can only be kept if they could
	// still be the start of one
	off += d.unmatchableTail(buf[off:], &res)

	res.Consumed = off
	return res
}

// unmatchableTail returns how many leading bytes of a short tail can never
// begin a signature and may be dropped
func (d *Decoder) unmatchableTail(tail []byte, res *Result) int {
	if len(tail) >= len(d.signature) {
		return 0
	}
	for i := 0; i < len(tail); i++ {
		if bytes.HasPrefix(d.signature, tail[i:]) {
			res.Skipped += i
			return i
		}
	}
	res.Skipped += len(tail)
	return len(tail)
}

// Encode builds a frame. It is used by tests and by sources that synthesize
// chunks from other transports.
func (d *Decoder) Encode(code domain.Code, payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	copy(frame, d.signature)
	copy(frame[4:8], padCode(code))
	binary.BigEndian.PutUint64(frame[8:HeaderSize], uint64(len(payload)))
	copy(frame[HeaderSize:], payload)
	return frame
}

func padCode(code domain.Code) []byte {
	c := string(code)
	if len(c) < 4 {
		c += strings.Repeat(" ", 4-len(c))
	}
	return []byte(c[:4])
}

// Text decodes a payload as UTF-8, replacing invalid sequences with U+FFFD
func Text(payload []byte) string {
	return strings.ToValidUTF8(string(payload), "\uFFFD")
}
