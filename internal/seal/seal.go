// Package seal implements the authenticated envelope that wraps every
// encoded frame on the air: ChaCha20-Poly1305 over the cleartext with the
// layout nonce(12) ‖ tag(16) ‖ ciphertext, plus deterministic nonce
// derivation and the per-source replay window.
package seal

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/zveasy/ol-rf-mesh/internal/telemetry"
)

const (
	// KeySize is the mesh key length in bytes.
	KeySize = chacha20poly1305.KeySize

	// Overhead is the bytes the envelope adds to a plaintext.
	Overhead = telemetry.NonceLen + telemetry.AuthTagLen

	// MaxEnvelopeLen bounds the on-air envelope: the 256-byte frame
	// budget plus nonce, tag and a little slack for future headers.
	MaxEnvelopeLen = 288
)

var (
	// ErrPlaintextTooLarge is returned when the sealed envelope would
	// exceed MaxEnvelopeLen.
	ErrPlaintextTooLarge = errors.New("plaintext exceeds envelope budget")

	// ErrBadNonce is returned for a nonce of the wrong length.
	ErrBadNonce = errors.New("invalid nonce length")

	// ErrBadKey is returned for a key of the wrong length.
	ErrBadKey = errors.New("invalid key length")

	// ErrEnvelopeTooShort is returned when an envelope cannot even hold
	// a nonce and tag.
	ErrEnvelopeTooShort = errors.New("envelope shorter than overhead")

	// ErrAuthFailed is returned on authenticator mismatch. The tag
	// comparison runs in constant time inside the AEAD.
	ErrAuthFailed = errors.New("envelope authentication failed")
)

// Encrypt seals plaintext under key and nonce and returns the on-air
// envelope. A nonce of all zeros is replaced by one derived from seqNo and
// srcID via DeriveNonce before calling here; Encrypt itself takes the
// nonce as given.
func Encrypt(plaintext, key, nonce []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %d", ErrBadKey, len(key))
	}
	if len(nonce) != telemetry.NonceLen {
		return nil, fmt.Errorf("%w: %d", ErrBadNonce, len(nonce))
	}
	if len(plaintext)+Overhead > MaxEnvelopeLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPlaintextTooLarge, len(plaintext))
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	// Seal yields ciphertext ‖ tag; the wire wants nonce ‖ tag ‖ ciphertext.
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ctLen := len(sealed) - telemetry.AuthTagLen

	out := make([]byte, Overhead+ctLen)
	copy(out[:telemetry.NonceLen], nonce)
	copy(out[telemetry.NonceLen:Overhead], sealed[ctLen:])
	copy(out[Overhead:], sealed[:ctLen])
	return out, nil
}

// Decrypt opens an envelope and returns the cleartext. Tampering with any
// byte of the envelope fails authentication.
func Decrypt(envelope, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %d", ErrBadKey, len(key))
	}
	if len(envelope) < Overhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrEnvelopeTooShort, len(envelope))
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	nonce := envelope[:telemetry.NonceLen]
	tag := envelope[telemetry.NonceLen:Overhead]
	ciphertext := envelope[Overhead:]

	sealed := make([]byte, 0, len(ciphertext)+telemetry.AuthTagLen)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// DeriveNonce builds the deterministic per-frame nonce: the first 4 bytes
// are the little-endian sequence number, the remaining 8 are the leading
// source-ID bytes XORed into a zero buffer. Derivation keeps the
// transmitter stateless; uniqueness follows from monotonic sequence
// numbers per source.
func DeriveNonce(seqNo uint32, srcID string) [telemetry.NonceLen]byte {
	var out [telemetry.NonceLen]byte
	binary.LittleEndian.PutUint32(out[:4], seqNo)
	n := len(srcID)
	if n > telemetry.NonceLen-4 {
		n = telemetry.NonceLen - 4
	}
	for i := 0; i < n; i++ {
		out[4+i] ^= srcID[i]
	}
	return out
}

// IsZeroNonce reports whether a supplied nonce asks for derivation.
func IsZeroNonce(nonce [telemetry.NonceLen]byte) bool {
	for _, b := range nonce {
		if b != 0 {
			return false
		}
	}
	return true
}
