// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

// SRP parameters fixed by the protocol: a 2048-bit modulus, padded
// big-endian serialization, pbkdf2-sha512 password stretching.
const (
	modulusLength        = 256
	pbkdf2Iterations     = 100000
	primalityRounds      = 20
	saltExtensionLength  = 32
	maxEphemeralAttempts = 10
)

// minEphemeralBits leaves a 2^64 margin at both ends of the group:
// an ephemeral too close to 0 or p leaks the exchange.
const minEphemeralBits = 2048 - 64

// PasswordParams is the reply to auth.getPassword: whether the
// account has a password, the SRP group and salts to prove it with,
// and the parameters to use when deriving a new verifier.
type PasswordParams struct {
	// HasPassword reports whether two-factor auth is enabled.
	HasPassword bool `cbor:"has_password"`

	// Hint is the user-chosen reminder for the current password.
	Hint string `cbor:"hint,omitempty"`

	// SRPID identifies this sign-in attempt and is echoed back in the
	// proof. The server invalidates it after one use.
	SRPID int64 `cbor:"srp_id,omitempty"`

	// G and P describe the group, Salt1 and Salt2 are the account's
	// salts, GB is the server's ephemeral value for this attempt.
	// Present only when HasPassword.
	G     int64  `cbor:"g,omitempty"`
	P     []byte `cbor:"p,omitempty"`
	Salt1 []byte `cbor:"salt1,omitempty"`
	Salt2 []byte `cbor:"salt2,omitempty"`
	GB    []byte `cbor:"g_b,omitempty"`

	// NewG, NewP, NewSalt1, NewSalt2 parameterize the verifier for a
	// password change. NewSalt1 is a prefix: the client appends
	// saltExtensionLength random bytes before use.
	NewG     int64  `cbor:"new_g,omitempty"`
	NewP     []byte `cbor:"new_p,omitempty"`
	NewSalt1 []byte `cbor:"new_salt1,omitempty"`
	NewSalt2 []byte `cbor:"new_salt2,omitempty"`
}

// SRPProof is the client's password proof, submitted with
// auth.checkPassword.
type SRPProof struct {
	SRPID int64  `cbor:"srp_id"`
	A     []byte `cbor:"a"`
	M1    []byte `cbor:"m1"`
}

// PasswordVerifier carries a freshly derived verifier to
// account.updatePasswordSettings when setting or changing the
// password. The server stores it and never sees the password itself.
type PasswordVerifier struct {
	G     int64  `cbor:"g"`
	P     []byte `cbor:"p"`
	Salt1 []byte `cbor:"salt1"`
	Salt2 []byte `cbor:"salt2"`
	V     []byte `cbor:"v"`
}

// computeProof derives the SRP proof of password against the group,
// salts, and server ephemeral in params.
func computeProof(password []byte, params *PasswordParams) (*SRPProof, error) {
	g := big.NewInt(params.G)
	p := new(big.Int).SetBytes(params.P)
	if err := validateGroup(params.G, p); err != nil {
		return nil, err
	}
	gB := new(big.Int).SetBytes(params.GB)
	if err := validateEphemeral(gB, p); err != nil {
		return nil, fmt.Errorf("auth: server ephemeral: %w", err)
	}

	x := passwordExponent(password, params.Salt1, params.Salt2)
	v := new(big.Int).Exp(g, x, p)

	// k = H(p | g) binds the exchange to the group.
	k := new(big.Int).SetBytes(sha256Of(pad(p), pad(g)))

	// Pick a client ephemeral whose public half clears the range
	// checks the server applies to it.
	var a, gA *big.Int
	for attempt := 0; ; attempt++ {
		if attempt == maxEphemeralAttempts {
			return nil, fmt.Errorf("auth: no usable client ephemeral after %d attempts", maxEphemeralAttempts)
		}
		raw := make([]byte, modulusLength)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("auth: reading randomness: %w", err)
		}
		a = new(big.Int).SetBytes(raw)
		gA = new(big.Int).Exp(g, a, p)
		if validateEphemeral(gA, p) == nil {
			break
		}
	}

	u := new(big.Int).SetBytes(sha256Of(pad(gA), pad(gB)))
	if u.Sign() == 0 {
		return nil, fmt.Errorf("auth: degenerate scrambling parameter")
	}

	// t = g_b - k*v mod p strips the verifier commitment from the
	// server ephemeral. s_a = t^(a + u*x) is the shared secret; both
	// sides must arrive at k_a = H(s_a).
	t := new(big.Int).Mul(k, v)
	t.Sub(gB, t)
	t.Mod(t, p)
	exponent := new(big.Int).Mul(u, x)
	exponent.Add(exponent, a)
	sA := new(big.Int).Exp(t, exponent, p)
	kA := sha256Of(pad(sA))

	m1 := proofDigest(p, g, params.Salt1, params.Salt2, gA, gB, kA)

	return &SRPProof{SRPID: params.SRPID, A: pad(gA), M1: m1}, nil
}

// computeVerifier derives a verifier for password from the
// new-password parameters in params. The returned Salt1 includes the
// random client extension.
func computeVerifier(password []byte, params *PasswordParams) (*PasswordVerifier, error) {
	g := big.NewInt(params.NewG)
	p := new(big.Int).SetBytes(params.NewP)
	if err := validateGroup(params.NewG, p); err != nil {
		return nil, err
	}

	// The server supplies a salt prefix; the client owns the suffix.
	extension := make([]byte, saltExtensionLength)
	if _, err := rand.Read(extension); err != nil {
		return nil, fmt.Errorf("auth: reading randomness: %w", err)
	}
	salt1 := make([]byte, 0, len(params.NewSalt1)+saltExtensionLength)
	salt1 = append(salt1, params.NewSalt1...)
	salt1 = append(salt1, extension...)

	x := passwordExponent(password, salt1, params.NewSalt2)
	v := new(big.Int).Exp(g, x, p)

	return &PasswordVerifier{
		G:     params.NewG,
		P:     params.NewP,
		Salt1: salt1,
		Salt2: params.NewSalt2,
		V:     pad(v),
	}, nil
}

// proofDigest computes M1, the value the server checks:
// H((H(p) xor H(g)) | H(salt1) | H(salt2) | g_a | g_b | k_a).
func proofDigest(p, g *big.Int, salt1, salt2 []byte, gA, gB *big.Int, kA []byte) []byte {
	groupDigest := make([]byte, sha256.Size)
	subtle.XORBytes(groupDigest, sha256Of(pad(p)), sha256Of(pad(g)))
	return sha256Of(groupDigest, sha256Of(salt1), sha256Of(salt2), pad(gA), pad(gB), kA)
}

// passwordExponent stretches password into the SRP exponent x: two
// salted sha256 sandwiches around a pbkdf2-sha512 core.
func passwordExponent(password, salt1, salt2 []byte) *big.Int {
	ph1 := saltedHash(saltedHash(password, salt1), salt2)
	stretched := pbkdf2.Key(ph1, salt1, pbkdf2Iterations, sha512.Size, sha512.New)
	ph2 := saltedHash(stretched, salt2)
	return new(big.Int).SetBytes(ph2)
}

// saltedHash is H(salt | data | salt).
func saltedHash(data, salt []byte) []byte {
	return sha256Of(salt, data, salt)
}

// validateGroup rejects SRP groups the server could use to weaken
// the exchange: p must be a 2048-bit safe prime and g must generate
// the expected subgroup for its value.
func validateGroup(g int64, p *big.Int) error {
	if p.BitLen() != 2048 {
		return fmt.Errorf("auth: modulus is %d bits, want 2048", p.BitLen())
	}

	// The congruence on p guarantees g generates the quadratic
	// residues of the safe-prime group.
	rem := new(big.Int)
	ok := false
	switch g {
	case 2:
		ok = rem.Mod(p, big.NewInt(8)).Int64() == 7
	case 3:
		ok = rem.Mod(p, big.NewInt(3)).Int64() == 2
	case 4:
		ok = true
	case 5:
		r := rem.Mod(p, big.NewInt(5)).Int64()
		ok = r == 1 || r == 4
	case 6:
		r := rem.Mod(p, big.NewInt(24)).Int64()
		ok = r == 19 || r == 23
	case 7:
		r := rem.Mod(p, big.NewInt(7)).Int64()
		ok = r == 3 || r == 5 || r == 6
	default:
		return fmt.Errorf("auth: generator %d out of range", g)
	}
	if !ok {
		return fmt.Errorf("auth: generator %d incompatible with modulus", g)
	}

	if !p.ProbablyPrime(primalityRounds) {
		return fmt.Errorf("auth: modulus is not prime")
	}
	half := new(big.Int).Rsh(new(big.Int).Sub(p, big.NewInt(1)), 1)
	if !half.ProbablyPrime(primalityRounds) {
		return fmt.Errorf("auth: modulus is not a safe prime")
	}
	return nil
}

// validateEphemeral applies the range checks both sides impose on
// public ephemerals before using them.
func validateEphemeral(e, p *big.Int) error {
	if e.Sign() <= 0 || e.Cmp(p) >= 0 {
		return fmt.Errorf("auth: ephemeral outside group range")
	}
	diff := new(big.Int).Sub(p, e)
	if e.BitLen() < minEphemeralBits || diff.BitLen() < minEphemeralBits {
		return fmt.Errorf("auth: ephemeral within unsafe margin of group boundary")
	}
	if (e.BitLen()+7)/8 > modulusLength {
		return fmt.Errorf("auth: ephemeral exceeds %d bytes", modulusLength)
	}
	return nil
}

// pad serializes v big-endian into exactly modulusLength bytes.
func pad(v *big.Int) []byte {
	out := make([]byte, modulusLength)
	v.FillBytes(out)
	return out
}

func sha256Of(parts ...[]byte) []byte {
	digest := sha256.New()
	for _, part := range parts {
		digest.Write(part)
	}
	return digest.Sum(nil)
}
