package decoder

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/genricoloni/hificlock/internal/domain"
)

func TestDecoder_Decode(t *testing.T) {
	dec := New(DefaultSignature)

	title := dec.Encode(domain.CodeTitle, []byte("The Gathering of the Clouds"))
	artist := dec.Encode(domain.CodeArtist, []byte("Anathema"))

	tests := []struct {
		name          string
		input         []byte
		expectedCodes []domain.Code
		expectedUsed  int
		expectedSkip  int
	}{
		{
			name:          "Single Frame",
			input:         title,
			expectedCodes: []domain.Code{domain.CodeTitle},
			expectedUsed:  len(title),
		},
		{
			name:          "Two Frames Back To Back",
			input:         append(append([]byte{}, title...), artist...),
			expectedCodes: []domain.Code{domain.CodeTitle, domain.CodeArtist},
			expectedUsed:  len(title) + len(artist),
		},
		{
			name:          "Garbage Before Frame",
			input:         append([]byte("\x00\xffjunk"), artist...),
			expectedCodes: []domain.Code{domain.CodeArtist},
			expectedUsed:  6 + len(artist),
			expectedSkip:  6,
		},
		{
			name:          "Truncated Payload Is Not Consumed",
			input:         artist[:len(artist)-3],
			expectedCodes: nil,
			expectedUsed:  0,
		},
		{
			name:          "Truncated Header Is Not Consumed",
			input:         artist[:10],
			expectedCodes: nil,
			expectedUsed:  0,
		},
		{
			name:          "Partial Signature Tail Is Kept",
			input:         append(append([]byte{}, title...), 's', 's'),
			expectedCodes: []domain.Code{domain.CodeTitle},
			expectedUsed:  len(title),
		},
		{
			name:          "Unmatchable Tail Is Dropped",
			input:         []byte("xyz"),
			expectedCodes: nil,
			expectedUsed:  3,
			expectedSkip:  3,
		},
		{
			name:          "Empty Payload",
			input:         dec.Encode(domain.CodePause, nil),
			expectedCodes: []domain.Code{domain.CodePause},
			expectedUsed:  HeaderSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := dec.Decode(tt.input)

			if len(res.Chunks) != len(tt.expectedCodes) {
				t.Fatalf("expected %d chunks, got %d", len(tt.expectedCodes), len(res.Chunks))
			}
			for i, code := range tt.expectedCodes {
				if res.Chunks[i].Code != code {
					t.Errorf("chunk %d: expected code %q, got %q", i, code, res.Chunks[i].Code)
				}
				if res.Chunks[i].Length != uint64(len(res.Chunks[i].Payload)) {
					t.Errorf("chunk %d: length %d does not match payload %d", i, res.Chunks[i].Length, len(res.Chunks[i].Payload))
				}
			}
			if res.Consumed != tt.expectedUsed {
				t.Errorf("expected %d bytes consumed, got %d", tt.expectedUsed, res.Consumed)
			}
			if res.Skipped != tt.expectedSkip {
				t.Errorf("expected %d bytes skipped, got %d", tt.expectedSkip, res.Skipped)
			}
		})
	}
}

// TestBuffer_PrefixSafety splits a frame at every possible boundary and
// checks the two reads reproduce the original chunk.
func TestBuffer_PrefixSafety(t *testing.T) {
	dec := New(DefaultSignature)
	payload := []byte("Weather Systems")
	frame := dec.Encode(domain.CodeAlbum, payload)

	for split := 0; split <= len(frame); split++ {
		buf := NewBuffer(dec)

		first := buf.Feed(frame[:split])
		second := buf.Feed(frame[split:])
		chunks := append(first, second...)

		if len(chunks) != 1 {
			t.Fatalf("split %d: expected 1 chunk, got %d", split, len(chunks))
		}
		if chunks[0].Code != domain.CodeAlbum || !bytes.Equal(chunks[0].Payload, payload) {
			t.Errorf("split %d: got %q %q", split, chunks[0].Code, chunks[0].Payload)
		}
		if buf.Pending() != 0 {
			t.Errorf("split %d: %d bytes left pending", split, buf.Pending())
		}
	}
}

func TestBuffer_ResyncOneByteAtATime(t *testing.T) {
	dec := New(DefaultSignature)
	buf := NewBuffer(dec)

	stream := append([]byte("ssnx-garbage-ss"), dec.Encode(domain.CodeResume, nil)...)

	var chunks []domain.RawChunk
	for i := range stream {
		chunks = append(chunks, buf.Feed(stream[i:i+1])...)
	}

	if len(chunks) != 1 || chunks[0].Code != domain.CodeResume {
		t.Fatalf("expected a single prsm chunk, got %+v", chunks)
	}
	if buf.Skipped != 15 {
		t.Errorf("expected 15 skipped bytes, got %d", buf.Skipped)
	}
}

func TestDecoder_OversizedLengthResyncs(t *testing.T) {
	dec := New(DefaultSignature)

	bogus := make([]byte, HeaderSize)
	copy(bogus, DefaultSignature)
	copy(bogus[4:], "PICT")
	binary.BigEndian.PutUint64(bogus[8:], MaxPayload+1)

	good := dec.Encode(domain.CodeTitle, []byte("ok"))
	res := dec.Decode(append(bogus, good...))

	if len(res.Chunks) != 1 || res.Chunks[0].Code != domain.CodeTitle {
		t.Fatalf("expected to recover the title frame, got %+v", res.Chunks)
	}
}

func TestDecoder_CustomSignature(t *testing.T) {
	dec := New("core")
	frame := dec.Encode(domain.CodeArtist, []byte("x"))

	if got := New(DefaultSignature).Decode(frame); len(got.Chunks) != 0 {
		t.Errorf("default decoder should not accept a core frame")
	}
	if got := dec.Decode(frame); len(got.Chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(got.Chunks))
	}
	if New("toolong").signature == nil || string(New("toolong").signature) != DefaultSignature {
		t.Errorf("invalid signature should fall back to default")
	}
}

func TestText_ReplacesInvalidUTF8(t *testing.T) {
	got := Text([]byte{'A', 0xff, 'B'})
	if got != "A\uFFFDB" {
		t.Errorf("expected replacement character, got %q", got)
	}
	if Text([]byte("Anathema")) != "Anathema" {
		t.Error("valid text must round-trip unchanged")
	}
}
