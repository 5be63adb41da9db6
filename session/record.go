// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"sort"
	"time"

	"github.com/courier-foundation/courier/wire"
)

// ErrKeyMismatch is returned by SetAuthKey when the record already
// holds a different key. The key for a session identifier never
// changes silently; a caller that really wants a new key must Reset
// the record first.
var ErrKeyMismatch = errors.New("session: auth key already set to a different value")

// User is the signed-in account, recorded after a successful
// authentication so IsAuthorized checks need not hit the server.
type User struct {
	ID        int64  `json:"id" cbor:"id"`
	Username  string `json:"username,omitempty" cbor:"username,omitempty"`
	FirstName string `json:"first_name,omitempty" cbor:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty" cbor:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty" cbor:"phone,omitempty"`
	Bot       bool   `json:"bot,omitempty" cbor:"bot,omitempty"`
}

// Record is the durable state of one client session. It is a plain
// value with no internal locking; the client guards the live record
// with its own mutex and stores only snapshots.
type Record struct {
	// ID names the session. It doubles as the storage key.
	ID string `json:"id" cbor:"id"`

	// Endpoint is the server address the session was created against.
	Endpoint string `json:"endpoint,omitempty" cbor:"endpoint,omitempty"`

	// AuthKey is the negotiated long-lived key. Empty until key
	// negotiation completes. Immutable afterwards except via Reset.
	AuthKey []byte `json:"auth_key,omitempty" cbor:"auth_key,omitempty"`

	// KeyFingerprint identifies AuthKey on the wire.
	KeyFingerprint uint64 `json:"key_fingerprint,omitempty" cbor:"key_fingerprint,omitempty"`

	// Salts are the server-issued time-windowed salts, ordered by
	// ValidSince ascending.
	Salts []wire.ServerSalt `json:"salts,omitempty" cbor:"salts,omitempty"`

	// State is the update sequence position. Moves only forward
	// except on ResetState.
	State wire.UpdateState `json:"state" cbor:"state"`

	// User is the signed-in account, nil while unauthenticated.
	User *User `json:"user,omitempty" cbor:"user,omitempty"`
}

// New returns an empty record for the given session identifier.
func New(id string) *Record {
	return &Record{ID: id}
}

// HasKey reports whether key negotiation has completed.
func (r *Record) HasKey() bool {
	return len(r.AuthKey) > 0
}

// SetAuthKey installs the negotiated key and its fingerprint. Setting
// the same key again is a no-op; setting a different one fails with
// ErrKeyMismatch.
func (r *Record) SetAuthKey(key []byte, fingerprint uint64) error {
	if r.HasKey() {
		if string(r.AuthKey) == string(key) {
			return nil
		}
		return ErrKeyMismatch
	}
	r.AuthKey = append([]byte(nil), key...)
	r.KeyFingerprint = fingerprint
	return nil
}

// Advance moves the update position forward. Each field is clamped to
// the maximum of its current and incoming value, so replayed or
// out-of-order state reports can never move the position backward.
func (r *Record) Advance(state wire.UpdateState) {
	if state.Pts > r.State.Pts {
		r.State.Pts = state.Pts
	}
	if state.Qts > r.State.Qts {
		r.State.Qts = state.Qts
	}
	if state.Seq > r.State.Seq {
		r.State.Seq = state.Seq
	}
	if state.Date > r.State.Date {
		r.State.Date = state.Date
	}
}

// ResetState zeroes the update position, forcing a full resync. Used
// when the server reports a new session without carrying a position.
func (r *Record) ResetState() {
	r.State = wire.UpdateState{}
}

// Reset wipes everything except the identifier and endpoint: auth
// key, fingerprint, salts, update position, user. After Reset the
// record is as if freshly created.
func (r *Record) Reset() {
	r.AuthKey = nil
	r.KeyFingerprint = 0
	r.Salts = nil
	r.State = wire.UpdateState{}
	r.User = nil
}

// RotateSalts replaces the salt set, kept sorted by ValidSince.
func (r *Record) RotateSalts(salts []wire.ServerSalt) {
	r.Salts = append([]wire.ServerSalt(nil), salts...)
	sort.Slice(r.Salts, func(i, j int) bool {
		return r.Salts[i].ValidSince < r.Salts[j].ValidSince
	})
}

// CurrentSalt returns the salt whose validity window covers now. When
// no window matches (clock skew, stale salt set), it falls back to
// the salt with the latest ValidSince. Returns zero when no salts are
// known at all.
func (r *Record) CurrentSalt(now time.Time) int64 {
	if len(r.Salts) == 0 {
		return 0
	}
	unix := now.Unix()
	// Walk newest to oldest so overlapping windows prefer the
	// freshest salt.
	for i := len(r.Salts) - 1; i >= 0; i-- {
		salt := r.Salts[i]
		if salt.ValidSince <= unix && unix < salt.ValidUntil {
			return salt.Salt
		}
	}
	return r.Salts[len(r.Salts)-1].Salt
}

// Clone returns a deep copy. The client persists clones so the store
// never observes a record mutated mid-write.
func (r *Record) Clone() *Record {
	clone := *r
	clone.AuthKey = append([]byte(nil), r.AuthKey...)
	clone.Salts = append([]wire.ServerSalt(nil), r.Salts...)
	if r.User != nil {
		user := *r.User
		clone.User = &user
	}
	return &clone
}
