// Package wire implements the authenticated frame codec member traffic is
// sent under: a random IV, a truncated Poly1305 tag, and a Salsa20/12
// keystream derived from a per-member shared key tweaked by that IV. It has
// no knowledge of member IDs, sub-messages, or any other cluster-domain
// type; callers hand it a key and a plaintext and get back an opaque frame.
package wire

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"

	"golang.org/x/crypto/poly1305"
)

const (
	ivSize     = 16
	tagSize    = 8
	headerSize = ivSize + tagSize
	// MaxFrameSize bounds what Open will attempt to decrypt, rejecting
	// anything larger before touching the cipher. Matches the wire format's
	// maximum total frame length.
	MaxFrameSize = 65536
)

// ErrFrameTooShort is returned by Open when the input is shorter than the
// fixed IV+tag header.
var ErrFrameTooShort = errors.New("wire: frame shorter than header")

// ErrFrameTooLarge is returned by Open when the input exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// ErrAuthFailed is returned by Open when the Poly1305 tag does not match,
// meaning the frame was corrupted, replayed with a different key, or
// forged. Callers must treat this identically to "drop the frame" — it
// never distinguishes truncation from tampering.
var ErrAuthFailed = errors.New("wire: authentication failed")

// Seal encrypts plaintext under key and returns a complete frame:
// <16B IV><8B truncated tag><ciphertext>. A fresh random IV is generated
// for every call; keys must never be reused across an (IV, key) pair more
// than once, which holds as long as IVs are drawn from crypto/rand.
func Seal(key [32]byte, plaintext []byte) ([]byte, error) {
	var iv [16]byte
	if _, err := io.ReadFull(rand.Reader, iv[:]); err != nil {
		return nil, err
	}
	return sealWithIV(key, iv, plaintext), nil
}

// sealWithIV is split out from Seal so tests can pin the IV and reproduce
// exact frame bytes.
func sealWithIV(key [32]byte, iv [16]byte, plaintext []byte) []byte {
	frameKey, nonce := tweakKey(key, iv)
	s := newSalsa2012(frameKey, nonce)

	var polyKeyBuf [32]byte
	s.XORKeyStream(polyKeyBuf[:], polyKeyBuf[:])

	ciphertext := make([]byte, len(plaintext))
	s.XORKeyStream(ciphertext, plaintext)

	var polyKey [32]byte
	copy(polyKey[:], polyKeyBuf[:])
	var tag [16]byte
	poly1305.Sum(&tag, ciphertext, &polyKey)

	out := make([]byte, headerSize+len(ciphertext))
	copy(out[0:16], iv[:])
	copy(out[16:24], tag[:tagSize])
	copy(out[24:], ciphertext)
	return out
}

// Open verifies and decrypts a frame produced by Seal, returning the
// plaintext. Any failure — too short, too long, or a bad tag — returns a
// sentinel error and no partial plaintext; callers must drop the frame
// rather than attempt to recover anything from it.
func Open(key [32]byte, frame []byte) ([]byte, error) {
	if len(frame) < headerSize {
		return nil, ErrFrameTooShort
	}
	if len(frame) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	var iv [16]byte
	copy(iv[:], frame[0:16])
	wantTag := frame[16:24]
	ciphertext := frame[24:]

	frameKey, nonce := tweakKey(key, iv)
	s := newSalsa2012(frameKey, nonce)

	var polyKeyBuf [32]byte
	s.XORKeyStream(polyKeyBuf[:], polyKeyBuf[:])
	var polyKey [32]byte
	copy(polyKey[:], polyKeyBuf[:])

	var tag [16]byte
	poly1305.Sum(&tag, ciphertext, &polyKey)
	if subtle.ConstantTimeCompare(tag[:tagSize], wantTag) != 1 {
		return nil, ErrAuthFailed
	}

	plaintext := make([]byte, len(ciphertext))
	s.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

// tweakKey derives the per-frame Salsa20/12 key and nonce from the shared
// member key and the frame's IV: the first 8 bytes of the key are XORed
// with bytes [0..8) of the IV, and the IV's remaining 8 bytes (at offset
// 8..16) become the cipher nonce. This mirrors the construction Cluster.cpp
// uses before calling Salsa20::init, which exists so that observing many
// frames under the same shared key does not reveal a fixed keystream
// relationship between them beyond what the IV already carries.
func tweakKey(key [32]byte, iv [16]byte) (frameKey [32]byte, nonce [8]byte) {
	frameKey = key
	for i := 0; i < 8; i++ {
		frameKey[i] ^= iv[i]
	}
	copy(nonce[:], iv[8:16])
	return
}
