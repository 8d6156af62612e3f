package cryptutils_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"mtriage_go/cryptutils"
	"mtriage_go/customerrs"
	"testing"
)

func TestKCRC32(t *testing.T) {
	t.Parallel()

	a := cryptutils.KCRC32([]byte("rule pack contents"))
	b := cryptutils.KCRC32([]byte("rule pack contents"))
	if len(a) != 4 {
		t.Fatalf("len = %d, want 4", len(a))
	}
	if !bytes.Equal(a, b) {
		t.Error("checksum is not deterministic")
	}
	if bytes.Equal(a, cryptutils.KCRC32([]byte("different contents"))) {
		t.Error("distinct inputs produced identical checksum")
	}
}

func TestXChacha20RoundTrip(t *testing.T) {
	t.Parallel()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	pt := []byte("compiled yara ruleset bytes, pretend this is binary")

	ct, err := cryptutils.XChacha20Encrypt(key, pt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(ct, pt) {
		t.Error("ciphertext contains the plaintext")
	}

	got, err := cryptutils.XChacha20Decrypt(key, ct)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, pt) {
		t.Errorf("round trip mismatch: %q != %q", got, pt)
	}
}

func TestXChacha20Decrypt_Corrupted(t *testing.T) {
	t.Parallel()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	ct, err := cryptutils.XChacha20Encrypt(key, []byte("sealed rule bundle"))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("flipped ciphertext byte", func(t *testing.T) {
		t.Parallel()
		tampered := append([]byte{}, ct...)
		tampered[len(tampered)-1] ^= 0xFF
		if _, err := cryptutils.XChacha20Decrypt(key, tampered); !errors.Is(err, customerrs.ErrRuleBundleCorrupted) {
			t.Errorf("err = %v, want %v", err, customerrs.ErrRuleBundleCorrupted)
		}
	})

	t.Run("flipped associated data", func(t *testing.T) {
		t.Parallel()
		tampered := append([]byte{}, ct...)
		tampered[24] ^= 0xFF
		if _, err := cryptutils.XChacha20Decrypt(key, tampered); !errors.Is(err, customerrs.ErrRuleBundleCorrupted) {
			t.Errorf("err = %v, want %v", err, customerrs.ErrRuleBundleCorrupted)
		}
	})

	t.Run("truncated input", func(t *testing.T) {
		t.Parallel()
		if _, err := cryptutils.XChacha20Decrypt(key, ct[:10]); !errors.Is(err, customerrs.ErrRuleBundleCorrupted) {
			t.Errorf("err = %v, want %v", err, customerrs.ErrRuleBundleCorrupted)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		other := make([]byte, 32)
		if _, err := rand.Read(other); err != nil {
			t.Fatal(err)
		}
		if _, err := cryptutils.XChacha20Decrypt(other, ct); !errors.Is(err, customerrs.ErrRuleBundleCorrupted) {
			t.Errorf("err = %v, want %v", err, customerrs.ErrRuleBundleCorrupted)
		}
	})
}
