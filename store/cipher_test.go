package store

import (
	"bytes"
	"errors"
	"testing"
)

func TestCipherSealOpenRoundTrip(t *testing.T) {
	c := newRegistryCipher("passphrase")
	plaintext := []byte(`[{"id":"a1"}]`)

	sealed, err := c.Seal(plaintext)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("sealed blob contains plaintext")
	}

	opened, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: got %q", opened)
	}
}

func TestCipherFreshSaltPerSeal(t *testing.T) {
	c := newRegistryCipher("passphrase")

	a, err := c.Seal([]byte("same"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	b, err := c.Seal([]byte("same"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("identical plaintexts produced identical blobs")
	}
}

func TestCipherOpenRejectsTampering(t *testing.T) {
	c := newRegistryCipher("passphrase")

	sealed, err := c.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	if _, err := c.Open(sealed); !errors.Is(err, ErrCipherText) {
		t.Fatalf("expected ErrCipherText, got %v", err)
	}
}

func TestCipherOpenRejectsShortBlobs(t *testing.T) {
	c := newRegistryCipher("passphrase")

	for _, blob := range [][]byte{nil, {}, []byte("short"), make([]byte, cipherSaltSize)} {
		if _, err := c.Open(blob); !errors.Is(err, ErrCipherText) {
			t.Fatalf("expected ErrCipherText for %d-byte blob, got %v", len(blob), err)
		}
	}
}

func TestCipherWrongPassphrase(t *testing.T) {
	sealed, err := newRegistryCipher("one").Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, err := newRegistryCipher("two").Open(sealed); !errors.Is(err, ErrCipherText) {
		t.Fatalf("expected ErrCipherText, got %v", err)
	}
}
