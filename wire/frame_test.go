package wire

import (
	"bytes"
	"testing"
)

func testKey() [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey()
	plaintext := []byte("hello cluster member")

	frame, err := Seal(key, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(frame) != headerSize+len(plaintext) {
		t.Fatalf("frame length = %d, want %d", len(frame), headerSize+len(plaintext))
	}

	got, err := Open(key, frame)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("Open roundtrip mismatch: got %q want %q", got, plaintext)
	}
}

func TestSealProducesDistinctFrames(t *testing.T) {
	key := testKey()
	plaintext := []byte("same plaintext every time")

	a, err := Seal(key, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := Seal(key, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two Seal calls with the same plaintext produced identical frames")
	}
}

func TestOpenRejectsTamperedTag(t *testing.T) {
	key := testKey()
	frame := sealWithIV(key, [16]byte{}, []byte("payload"))
	frame[16] ^= 0xff

	if _, err := Open(key, frame); err != ErrAuthFailed {
		t.Fatalf("Open with tampered tag: got err %v, want ErrAuthFailed", err)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := testKey()
	frame := sealWithIV(key, [16]byte{}, []byte("payload"))
	frame[len(frame)-1] ^= 0xff

	if _, err := Open(key, frame); err != ErrAuthFailed {
		t.Fatalf("Open with tampered ciphertext: got err %v, want ErrAuthFailed", err)
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key := testKey()
	frame := sealWithIV(key, [16]byte{}, []byte("payload"))

	other := testKey()
	other[31] ^= 1
	if _, err := Open(other, frame); err != ErrAuthFailed {
		t.Fatalf("Open with wrong key: got err %v, want ErrAuthFailed", err)
	}
}

func TestOpenRejectsShortFrame(t *testing.T) {
	key := testKey()
	if _, err := Open(key, make([]byte, headerSize-1)); err != ErrFrameTooShort {
		t.Fatalf("Open with short frame: got err %v, want ErrFrameTooShort", err)
	}
}

func TestOpenRejectsOversizeFrame(t *testing.T) {
	key := testKey()
	if _, err := Open(key, make([]byte, MaxFrameSize+1)); err != ErrFrameTooLarge {
		t.Fatalf("Open with oversize frame: got err %v, want ErrFrameTooLarge", err)
	}
}

func TestSealOpenEmptyPlaintext(t *testing.T) {
	key := testKey()
	frame, err := Seal(key, nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := Open(key, frame)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Open of empty plaintext returned %d bytes", len(got))
	}
}

func TestSalsa2012KeystreamIsDeterministic(t *testing.T) {
	key := testKey()
	var nonce [8]byte
	a := newSalsa2012(key, nonce)
	b := newSalsa2012(key, nonce)

	bufA := make([]byte, 200)
	bufB := make([]byte, 200)
	a.XORKeyStream(bufA, bufA)
	b.XORKeyStream(bufB, bufB)

	if !bytes.Equal(bufA, bufB) {
		t.Fatalf("two salsa2012 streams from identical key/nonce diverged")
	}
}
