// internal/codec/codec_test.go
package codec

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

func TestEncodeCommandRoundTrip(t *testing.T) {
	cases := []struct {
		cmd  string
		want []byte
	}{
		// "AT" + CRLF = 4 bytes, even
		{"AT", []byte("AT\r\n")},
		// "ATZ" + CRLF = 5 bytes, odd -> one zero pad byte
		{"ATZ", []byte("ATZ\r\n\x00")},
		{"AT+BISGET=?", []byte("AT+BISGET=?\r\n\x00")},
		{"AT+BISS", []byte("AT+BISS\r\n\x00")},
		{"AT+BISFMT=1", []byte("AT+BISFMT=1\r\n\x00")},
		{"AT+CGMR", []byte("AT+CGMR\r\n\x00")},
		{"AT+CSQ", []byte("AT+CSQ\r\n")},
	}

	for _, c := range cases {
		words := EncodeCommand(c.cmd)
		got := UnpackWords(words)
		if !bytes.Equal(got, c.want) {
			t.Errorf("%q: decoded %q, want %q", c.cmd, got, c.want)
		}
		if len(words) != (len(c.cmd)+2+1)/2 {
			t.Errorf("%q: %d words", c.cmd, len(words))
		}
	}
}

func TestPackBytesBigEndian(t *testing.T) {
	words := PackBytes([]byte{0x41, 0x54, 0x0D})
	if len(words) != 2 || words[0] != 0x4154 || words[1] != 0x0D00 {
		t.Fatalf("unexpected words %04X", words)
	}
}

func TestEncodePayloadHex(t *testing.T) {
	words := EncodePayload(`{"m":1}`)
	got := string(UnpackWords(words))
	want := hex.EncodeToString([]byte(`{"m":1}`)) + "\r\n"
	if got != want {
		t.Fatalf("payload bytes %q, want %q", got, want)
	}
}

func TestSplitChunks(t *testing.T) {
	for _, n := range []int{1, 63, 64, 65, 128, 129, 300} {
		words := make([]uint16, n)
		for i := range words {
			words[i] = uint16(i + 1)
		}

		chunks := Split(words)
		var joined []uint16
		for i, c := range chunks {
			if int(c.Offset) != i*MaxChunkWords {
				t.Fatalf("n=%d chunk %d offset %d", n, i, c.Offset)
			}
			if i < len(chunks)-1 && len(c.Words) != MaxChunkWords {
				t.Fatalf("n=%d chunk %d has %d words", n, i, len(c.Words))
			}
			if len(c.Words) == 0 || len(c.Words) > MaxChunkWords {
				t.Fatalf("n=%d chunk %d bad size %d", n, i, len(c.Words))
			}
			joined = append(joined, c.Words...)
		}
		if len(joined) != n {
			t.Fatalf("n=%d joined %d", n, len(joined))
		}
		for i := range joined {
			if joined[i] != words[i] {
				t.Fatalf("n=%d mismatch at %d", n, i)
			}
		}
	}

	if Split(nil) != nil {
		t.Fatalf("empty input should yield no chunks")
	}
}

func TestMarshalPayload(t *testing.T) {
	s, err := MarshalPayload(map[string][]float64{"m": {1.23, 4.56, -100, -5}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if s != `{"m":[1.23,4.56,-100,-5]}` {
		t.Fatalf("got %s", s)
	}

	s, _ = MarshalPayload("raw text")
	if s != "raw text" {
		t.Fatalf("string passthrough got %q", s)
	}

	if _, err := MarshalPayload(nil); err == nil {
		t.Fatalf("expected error for nil payload")
	}
}

func TestDecodeText(t *testing.T) {
	words := PackBytes([]byte("Uplink Completed\r\n\x00"))
	got, err := DecodeText(words)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if got != "Uplink Completed\r\n" {
		t.Fatalf("got %q", got)
	}

	if _, err := DecodeText([]uint16{0xFFFE}); err == nil {
		t.Fatalf("expected utf-8 error")
	}
}

func TestDecodeField(t *testing.T) {
	words := PackBytes([]byte("HS-1\x00\x00"))
	got, err := DecodeField(words)
	if err != nil || got != "HS-1" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestDecodeQuotedHex(t *testing.T) {
	inner := hex.EncodeToString([]byte("01020304,68656c6c6f,-97,7.5"))
	frame := []byte(`+BISGET: "` + inner + `"` + "\r\nOK\r\n")

	got, err := DecodeQuotedHex(frame)
	if err != nil {
		t.Fatalf("DecodeQuotedHex: %v", err)
	}
	if got != "01020304,68656c6c6f,-97,7.5" {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeQuotedHexErrors(t *testing.T) {
	cases := []string{
		"no quotes at all",
		`only "one quote`,
		`"zz"`,
	}
	for _, c := range cases {
		if _, err := DecodeQuotedHex([]byte(c)); err == nil {
			t.Errorf("%q: expected error", c)
		} else if !strings.HasPrefix(err.Error(), "codec:") {
			t.Errorf("%q: unexpected error %v", c, err)
		}
	}
}
