package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// RFC 5869 Test Case 3: SHA-256 with zero-length salt and info.
func TestHKDFSHA256_RFC5869TC3(t *testing.T) {
	ikm, _ := hex.DecodeString("0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b")
	wantOKM, _ := hex.DecodeString("8da4e775a563c18f715f802a063c5a31b8a11f5c5ee1879ec3454e5f3c738d2d9d201395faa4b61a96c8")

	okm, err := HKDFSHA256(ikm, nil, nil, 42)
	if err != nil {
		t.Fatalf("HKDFSHA256: %v", err)
	}
	if !bytes.Equal(okm, wantOKM) {
		t.Fatalf("okm = %x, want %x", okm, wantOKM)
	}
}

// RFC 5869 Test Case 1: separate Extract/Expand with a salt and info string.
func TestHKDFExtractExpandSHA256_RFC5869TC1(t *testing.T) {
	ikm, _ := hex.DecodeString("0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b")
	salt, _ := hex.DecodeString("000102030405060708090a0b0c")
	info, _ := hex.DecodeString("f0f1f2f3f4f5f6f7f8f9")
	wantPRK, _ := hex.DecodeString("077709362c2e32df0ddc3f0dc47bba6390b6c73bb50f9c3122ec844ad7c2b3e5")
	wantOKM, _ := hex.DecodeString("3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf34007208d5b887185865")

	prk := HKDFExtractSHA256(salt, ikm)
	if !bytes.Equal(prk, wantPRK) {
		t.Fatalf("prk = %x, want %x", prk, wantPRK)
	}

	okm, err := HKDFExpandSHA256(prk, info, 42)
	if err != nil {
		t.Fatalf("HKDFExpandSHA256: %v", err)
	}
	if !bytes.Equal(okm, wantOKM) {
		t.Fatalf("okm = %x, want %x", okm, wantOKM)
	}
}

func TestDeriveW0W1Seed_Deterministic(t *testing.T) {
	params := Argon2idParams{TimeCost: 1, MemoryKiB: 8 * 1024, Parallelism: 1, KeyLen: 64}
	salt := []byte("fixed-test-salt-16b")

	a := DeriveW0W1Seed([]byte("hunter2"), salt, params)
	b := DeriveW0W1Seed([]byte("hunter2"), salt, params)
	if !bytes.Equal(a, b) {
		t.Fatal("Argon2id derivation is not deterministic for identical inputs")
	}
	if len(a) != 64 {
		t.Fatalf("len(seed) = %d, want 64", len(a))
	}

	c := DeriveW0W1Seed([]byte("wrongpassword"), salt, params)
	if bytes.Equal(a, c) {
		t.Fatal("different passwords produced the same seed")
	}
}

func TestReduceScalar(t *testing.T) {
	params := Argon2idParams{TimeCost: 1, MemoryKiB: 8 * 1024, Parallelism: 1, KeyLen: 64}
	seed := DeriveW0W1Seed([]byte("hunter2"), []byte("salt"), params)

	w0, err := ReduceScalar(seed[:32])
	if err != nil {
		t.Fatalf("ReduceScalar(w0): %v", err)
	}
	w1, err := ReduceScalar(seed[32:])
	if err != nil {
		t.Fatalf("ReduceScalar(w1): %v", err)
	}
	if bytes.Equal(w0.Bytes(), w1.Bytes()) {
		t.Fatal("w0 and w1 reduced to the same scalar")
	}
}
