// internal/codec/codec.go
package codec

// Word/byte packing for the dongle's register byte stream.
// Two bytes per register, high byte first. No IO.

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxChunkWords is the largest register count written in one uplink transaction.
const MaxChunkWords = 64

// Terminator ends every AT command and every hex-encoded uplink payload.
const Terminator = "\r\n"

// PackBytes packs b two bytes per word, big-endian within the word.
// An odd trailing byte is padded with zero.
func PackBytes(b []byte) []uint16 {
	n := (len(b) + 1) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		hi := uint16(b[2*i]) << 8
		var lo uint16
		if 2*i+1 < len(b) {
			lo = uint16(b[2*i+1])
		}
		out[i] = hi | lo
	}
	return out
}

// UnpackWords is the inverse of PackBytes (padding bytes included).
func UnpackWords(words []uint16) []byte {
	out := make([]byte, len(words)*2)
	for i, w := range words {
		out[2*i] = byte(w >> 8)
		out[2*i+1] = byte(w)
	}
	return out
}

// EncodeCommand terminates cmd with CR LF and packs it into register words.
func EncodeCommand(cmd string) []uint16 {
	return PackBytes([]byte(cmd + Terminator))
}

// MarshalPayload renders an uplink payload as text.
// Strings and byte slices pass through; anything else is JSON-encoded.
func MarshalPayload(v any) (string, error) {
	switch p := v.(type) {
	case string:
		return p, nil
	case []byte:
		return string(p), nil
	case json.RawMessage:
		return string(p), nil
	case nil:
		return "", errors.New("codec: nil payload")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("codec: marshal payload: %w", err)
	}
	return string(b), nil
}

// EncodePayload hex-encodes the UTF-8 text, appends CR LF and packs it.
func EncodePayload(text string) []uint16 {
	h := hex.EncodeToString([]byte(text))
	return PackBytes([]byte(h + Terminator))
}

// Chunk is one uplink register write. Offset is relative to the send-start address.
type Chunk struct {
	Offset uint16
	Words  []uint16
}

// Split cuts words into chunks of at most MaxChunkWords, in order.
// Offsets are 16-bit; callers bound len(words) to the target window.
func Split(words []uint16) []Chunk {
	if len(words) == 0 {
		return nil
	}
	chunks := make([]Chunk, 0, (len(words)+MaxChunkWords-1)/MaxChunkWords)
	for off := 0; off < len(words); off += MaxChunkWords {
		end := off + MaxChunkWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			Offset: uint16(off),
			Words:  words[off:end],
		})
	}
	return chunks
}

// DecodeText decodes register words as UTF-8 text. Trailing NUL padding is dropped.
func DecodeText(words []uint16) (string, error) {
	b := bytes.TrimRight(UnpackWords(words), "\x00")
	if !utf8.Valid(b) {
		return "", errors.New("codec: invalid utf-8 in response")
	}
	return string(b), nil
}

// DecodeField decodes a fixed-width identity/telemetry field, removing every NUL.
func DecodeField(words []uint16) (string, error) {
	b := bytes.ReplaceAll(UnpackWords(words), []byte{0}, nil)
	if !utf8.Valid(b) {
		return "", errors.New("codec: invalid utf-8 in field")
	}
	return string(b), nil
}

// DecodeQuotedHex extracts the bytes between the first two '"' characters,
// hex-decodes them and returns the UTF-8 text.
func DecodeQuotedHex(b []byte) (string, error) {
	first := bytes.IndexByte(b, '"')
	if first < 0 {
		return "", errors.New("codec: opening quote not found")
	}
	second := bytes.IndexByte(b[first+1:], '"')
	if second < 0 {
		return "", errors.New("codec: closing quote not found")
	}
	inner := b[first+1 : first+1+second]

	raw := make([]byte, hex.DecodedLen(len(inner)))
	if _, err := hex.Decode(raw, inner); err != nil {
		return "", fmt.Errorf("codec: hex decode: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", errors.New("codec: invalid utf-8 in quoted payload")
	}
	return string(raw), nil
}
