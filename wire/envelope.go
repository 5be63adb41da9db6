// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"

	"github.com/courier-foundation/courier/lib/codec"
)

// Request is the client→server envelope for one RPC invocation.
type Request struct {
	// ID correlates the eventual Response with this request. IDs are
	// assigned by the sender and are unique within one connection.
	ID uint64 `cbor:"id"`

	// Method is the dotted RPC method name (e.g. "auth.sendCode").
	Method string `cbor:"method"`

	// Params is the CBOR-encoded method parameter struct. Empty for
	// parameterless methods.
	Params codec.RawMessage `cbor:"params,omitempty"`

	// Salt is the server salt the request is stamped with. Zero
	// before key negotiation completes.
	Salt int64 `cbor:"salt,omitempty"`
}

// Response is the server→client envelope answering one Request.
// Exactly one of Result and Error is set.
type Response struct {
	// ID echoes the Request.ID this response answers.
	ID uint64 `cbor:"id"`

	// Result is the CBOR-encoded method result on success.
	Result codec.RawMessage `cbor:"result,omitempty"`

	// Error is the structured failure on error.
	Error *ServerError `cbor:"error,omitempty"`
}

// Update is one server-pushed event.
type Update struct {
	// Type names the update variant (e.g. "message.new",
	// "user.status"). Dispatch filters match on it.
	Type string `cbor:"type"`

	// Payload is the CBOR-encoded update body; its schema depends on
	// Type.
	Payload codec.RawMessage `cbor:"payload,omitempty"`

	// Pts is the event's position in the server's per-session event
	// sequence, when the update participates in it.
	Pts int64 `cbor:"pts,omitempty"`

	// Date is the server-side event time in unix seconds.
	Date int64 `cbor:"date,omitempty"`
}

// UpdateState is the client's position in the server's update
// sequence. Persisted in the session record so a reconnecting client
// resumes where it left off instead of refetching history. The json
// tags serve the file-based session store.
type UpdateState struct {
	Pts  int64 `cbor:"pts" json:"pts"`
	Qts  int64 `cbor:"qts" json:"qts"`
	Seq  int64 `cbor:"seq" json:"seq"`
	Date int64 `cbor:"date" json:"date"`
}

// UpdateBatch is the server→client envelope carrying pushed updates.
type UpdateBatch struct {
	// Updates are the events, in server order.
	Updates []Update `cbor:"updates"`

	// State, when present, is the authoritative sequence position
	// after applying this batch.
	State *UpdateState `cbor:"state,omitempty"`
}

// ServerSalt is one time-windowed salt issued by the server. Requests
// are stamped with the salt whose validity window covers the send
// time. Times are unix seconds.
type ServerSalt struct {
	Salt       int64 `cbor:"salt" json:"salt"`
	ValidSince int64 `cbor:"valid_since" json:"valid_since"`
	ValidUntil int64 `cbor:"valid_until" json:"valid_until"`
}

// Control operation names.
const (
	// ControlSaltRotate replaces the client's salt set. Carries Salts.
	ControlSaltRotate = "salt_rotate"

	// ControlNewSession reports that the server discarded its session
	// state; the client must adopt the carried State and treat its
	// local update position as stale.
	ControlNewSession = "new_session"

	// ControlPong answers a "ping" request outside the response path.
	// Carries PingID.
	ControlPong = "pong"
)

// Control is the server→client envelope for session-level notices.
type Control struct {
	// Op is one of the Control* operation names.
	Op string `cbor:"op"`

	// Salts is the replacement salt set for ControlSaltRotate.
	Salts []ServerSalt `cbor:"salts,omitempty"`

	// State is the fresh sequence position for ControlNewSession.
	State *UpdateState `cbor:"state,omitempty"`

	// PingID echoes the ping correlation value for ControlPong.
	PingID uint64 `cbor:"ping_id,omitempty"`
}

// NewRequestFrame encodes a Request into a KindRequest frame.
func NewRequestFrame(request Request) (Frame, error) {
	payload, err := codec.Marshal(request)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: encode request %q: %w", request.Method, err)
	}
	return Frame{Kind: KindRequest, Payload: payload}, nil
}

// NewResponseFrame encodes a Response into a KindResponse frame.
func NewResponseFrame(response Response) (Frame, error) {
	payload, err := codec.Marshal(response)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: encode response %d: %w", response.ID, err)
	}
	return Frame{Kind: KindResponse, Payload: payload}, nil
}

// NewUpdatesFrame encodes an UpdateBatch into a KindUpdates frame.
func NewUpdatesFrame(batch UpdateBatch) (Frame, error) {
	payload, err := codec.Marshal(batch)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: encode update batch: %w", err)
	}
	return Frame{Kind: KindUpdates, Payload: payload}, nil
}

// NewControlFrame encodes a Control into a KindControl frame.
func NewControlFrame(control Control) (Frame, error) {
	payload, err := codec.Marshal(control)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: encode control %q: %w", control.Op, err)
	}
	return Frame{Kind: KindControl, Payload: payload}, nil
}

// ParseRequest decodes the Request carried by a KindRequest frame.
func ParseRequest(frame Frame) (Request, error) {
	if frame.Kind != KindRequest {
		return Request{}, fmt.Errorf("wire: expected request frame, got %s", frame.Kind)
	}
	var request Request
	if err := codec.Unmarshal(frame.Payload, &request); err != nil {
		return Request{}, fmt.Errorf("wire: decode request: %w", err)
	}
	return request, nil
}

// ParseResponse decodes the Response carried by a KindResponse frame.
func ParseResponse(frame Frame) (Response, error) {
	if frame.Kind != KindResponse {
		return Response{}, fmt.Errorf("wire: expected response frame, got %s", frame.Kind)
	}
	var response Response
	if err := codec.Unmarshal(frame.Payload, &response); err != nil {
		return Response{}, fmt.Errorf("wire: decode response: %w", err)
	}
	return response, nil
}

// ParseUpdates decodes the UpdateBatch carried by a KindUpdates frame.
func ParseUpdates(frame Frame) (UpdateBatch, error) {
	if frame.Kind != KindUpdates {
		return UpdateBatch{}, fmt.Errorf("wire: expected updates frame, got %s", frame.Kind)
	}
	var batch UpdateBatch
	if err := codec.Unmarshal(frame.Payload, &batch); err != nil {
		return UpdateBatch{}, fmt.Errorf("wire: decode update batch: %w", err)
	}
	return batch, nil
}

// ParseControl decodes the Control carried by a KindControl frame.
func ParseControl(frame Frame) (Control, error) {
	if frame.Kind != KindControl {
		return Control{}, fmt.Errorf("wire: expected control frame, got %s", frame.Kind)
	}
	var control Control
	if err := codec.Unmarshal(frame.Payload, &control); err != nil {
		return Control{}, fmt.Errorf("wire: decode control: %w", err)
	}
	return control, nil
}
