// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"strings"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		frame Frame
	}{
		{
			name:  "small request",
			frame: Frame{Kind: KindRequest, Payload: []byte("tiny")},
		},
		{
			name:  "empty payload",
			frame: Frame{Kind: KindControl, Payload: nil},
		},
		{
			name:  "response",
			frame: Frame{Kind: KindResponse, Payload: []byte{0xA1, 0x62, 0x69, 0x64, 0x01}},
		},
		{
			name:  "compressible payload",
			frame: Frame{Kind: KindUpdates, Payload: bytes.Repeat([]byte("update payload "), 500)},
		},
		{
			name: "incompressible payload",
			frame: func() Frame {
				payload := make([]byte, 8*1024)
				rand.Read(payload)
				return Frame{Kind: KindUpdates, Payload: payload}
			}(),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			var buffer bytes.Buffer
			if err := WriteFrame(&buffer, test.frame); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}

			got, err := ReadFrame(&buffer)
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}

			if got.Kind != test.frame.Kind {
				t.Errorf("kind: got %s, want %s", got.Kind, test.frame.Kind)
			}
			if !bytes.Equal(got.Payload, test.frame.Payload) {
				t.Errorf("payload: got %d bytes, want %d bytes", len(got.Payload), len(test.frame.Payload))
			}
		})
	}
}

func TestWriteFrameCompressesLargePayloads(t *testing.T) {
	t.Parallel()
	payload := bytes.Repeat([]byte(`{"type":"message.new","pts":12345}`), 200)
	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, Frame{Kind: KindUpdates, Payload: payload}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	// Wire size should be well below the raw payload for repetitive
	// content.
	if buffer.Len() >= len(payload) {
		t.Errorf("frame size %d not smaller than payload %d", buffer.Len(), len(payload))
	}

	header := buffer.Bytes()[:frameHeaderLength]
	if tag := CompressionTag(header[1]); tag == CompressionNone {
		t.Error("large repetitive payload was not compressed")
	}
	if raw := binary.BigEndian.Uint32(header[2:6]); int(raw) != len(payload) {
		t.Errorf("header raw length = %d, want %d", raw, len(payload))
	}
}

func TestWriteFrameSkipsSmallPayloads(t *testing.T) {
	t.Parallel()
	payload := bytes.Repeat([]byte("ab"), 100) // compressible but under threshold
	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, Frame{Kind: KindRequest, Payload: payload}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	header := buffer.Bytes()[:frameHeaderLength]
	if tag := CompressionTag(header[1]); tag != CompressionNone {
		t.Errorf("small payload compressed with %s, want none", tag)
	}
}

func TestWriteReadMultipleFrames(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer

	frames := []Frame{
		{Kind: KindRequest, Payload: []byte("first")},
		{Kind: KindResponse, Payload: []byte("second")},
		{Kind: KindUpdates, Payload: bytes.Repeat([]byte("third "), 400)},
		{Kind: KindControl, Payload: []byte("fourth")},
	}

	for _, frame := range frames {
		if err := WriteFrame(&buffer, frame); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	for index, want := range frames {
		got, err := ReadFrame(&buffer)
		if err != nil {
			t.Fatalf("ReadFrame[%d]: %v", index, err)
		}
		if got.Kind != want.Kind {
			t.Errorf("frame[%d] kind: got %s, want %s", index, got.Kind, want.Kind)
		}
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("frame[%d] payload mismatch", index)
		}
	}
}

func TestReadFramePayloadTooLarge(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	var header [frameHeaderLength]byte
	header[0] = byte(KindUpdates)
	binary.BigEndian.PutUint32(header[2:6], MaxPayloadLength+1)
	binary.BigEndian.PutUint32(header[6:10], 16)
	buffer.Write(header[:])

	if _, err := ReadFrame(&buffer); err == nil {
		t.Fatal("expected error for oversized raw length")
	}

	buffer.Reset()
	binary.BigEndian.PutUint32(header[2:6], 16)
	binary.BigEndian.PutUint32(header[6:10], MaxPayloadLength+1)
	buffer.Write(header[:])

	if _, err := ReadFrame(&buffer); err == nil {
		t.Fatal("expected error for oversized encoded length")
	}
}

func TestReadFrameTruncatedStream(t *testing.T) {
	t.Parallel()
	var full bytes.Buffer
	if err := WriteFrame(&full, Frame{Kind: KindRequest, Payload: []byte("payload bytes")}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	// Every strict prefix of a valid frame must fail to parse.
	encoded := full.Bytes()
	for cut := range len(encoded) {
		if _, err := ReadFrame(bytes.NewReader(encoded[:cut])); err == nil {
			t.Fatalf("ReadFrame succeeded on %d of %d bytes", cut, len(encoded))
		}
	}
}

func TestReadFrameRawSizeMismatch(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	payload := []byte("sixteen byte pay")
	var header [frameHeaderLength]byte
	header[0] = byte(KindResponse)
	header[1] = byte(CompressionNone)
	binary.BigEndian.PutUint32(header[2:6], uint32(len(payload)+3))
	binary.BigEndian.PutUint32(header[6:10], uint32(len(payload)))
	buffer.Write(header[:])
	buffer.Write(payload)

	_, err := ReadFrame(&buffer)
	if err == nil {
		t.Fatal("expected error for raw/encoded size mismatch")
	}
	if !strings.Contains(err.Error(), "does not match") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind Kind
		want string
	}{
		{KindRequest, "request"},
		{KindResponse, "response"},
		{KindUpdates, "updates"},
		{KindControl, "control"},
		{Kind(0x7F), "unknown(0x7f)"},
	}
	for _, test := range tests {
		if got := test.kind.String(); got != test.want {
			t.Errorf("Kind(%d).String() = %q, want %q", test.kind, got, test.want)
		}
	}
}
