// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind identifies what envelope a frame carries. Kinds are protocol
// constants; changing them breaks wire compatibility.
type Kind byte

const (
	// KindRequest carries a Request envelope. Client→server only.
	KindRequest Kind = 0x01

	// KindResponse carries a Response envelope answering a Request by
	// correlation ID. Server→client only.
	KindResponse Kind = 0x02

	// KindUpdates carries an UpdateBatch envelope: server-pushed
	// updates not correlated with any request. Server→client only.
	KindUpdates Kind = 0x03

	// KindControl carries a Control envelope: session-level notices
	// such as salt rotation and ping replies. Server→client only.
	KindControl Kind = 0x04
)

// String returns the lowercase name of the kind for log output.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindUpdates:
		return "updates"
	case KindControl:
		return "control"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(k))
	}
}

// frameHeaderLength is the fixed size of a frame header: 1 byte kind,
// 1 byte compression tag, 4 bytes raw (uncompressed) payload length,
// 4 bytes encoded payload length. Lengths are big-endian uint32.
const frameHeaderLength = 10

// MaxPayloadLength bounds both the encoded and the decompressed
// payload size of a single frame. 16 MB is far beyond any legitimate
// envelope; the limit exists so a corrupt or hostile length prefix
// cannot trigger an enormous allocation.
const MaxPayloadLength = 16 * 1024 * 1024

// compressThreshold is the payload size below which WriteFrame does
// not attempt compression. Small envelopes (acks, pings, short
// responses) never win back the header and CPU cost.
const compressThreshold = 1024

// Frame is a single protocol frame. Payload is always the plain
// (decompressed) envelope encoding; compression happens inside
// WriteFrame and ReadFrame.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// WriteFrame writes a framed envelope to w:
// [kind][compression tag][raw length][encoded length][payload].
// Payloads of compressThreshold bytes or more are compressed when
// that makes them smaller; incompressible payloads go out unchanged
// under CompressionNone.
func WriteFrame(w io.Writer, frame Frame) error {
	if len(frame.Payload) > MaxPayloadLength {
		return fmt.Errorf("wire: payload length %d exceeds maximum %d", len(frame.Payload), MaxPayloadLength)
	}

	tag := CompressionNone
	encoded := frame.Payload
	if len(frame.Payload) >= compressThreshold {
		compressed, chosenTag, err := compressAuto(frame.Payload)
		if err != nil {
			return fmt.Errorf("wire: compress payload: %w", err)
		}
		encoded = compressed
		tag = chosenTag
	}

	var header [frameHeaderLength]byte
	header[0] = byte(frame.Kind)
	header[1] = byte(tag)
	binary.BigEndian.PutUint32(header[2:6], uint32(len(frame.Payload)))
	binary.BigEndian.PutUint32(header[6:10], uint32(len(encoded)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if len(encoded) > 0 {
		if _, err := w.Write(encoded); err != nil {
			return fmt.Errorf("wire: write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one framed envelope from r, decompressing the
// payload if needed. A stream that ends cleanly between frames yields
// io.EOF. Returns an error if the stream is malformed, either length
// exceeds MaxPayloadLength, or the decompressed size does not match
// the header's raw length.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("wire: read frame header: %w", err)
	}

	kind := Kind(header[0])
	tag := CompressionTag(header[1])
	rawLength := binary.BigEndian.Uint32(header[2:6])
	encodedLength := binary.BigEndian.Uint32(header[6:10])

	if rawLength > MaxPayloadLength {
		return Frame{}, fmt.Errorf("wire: raw payload length %d exceeds maximum %d", rawLength, MaxPayloadLength)
	}
	if encodedLength > MaxPayloadLength {
		return Frame{}, fmt.Errorf("wire: encoded payload length %d exceeds maximum %d", encodedLength, MaxPayloadLength)
	}

	encoded := make([]byte, encodedLength)
	if encodedLength > 0 {
		if _, err := io.ReadFull(r, encoded); err != nil {
			return Frame{}, fmt.Errorf("wire: read frame payload: %w", err)
		}
	}

	payload, err := decompress(encoded, tag, int(rawLength))
	if err != nil {
		return Frame{}, fmt.Errorf("wire: decompress %s frame: %w", kind, err)
	}
	return Frame{Kind: kind, Payload: payload}, nil
}
