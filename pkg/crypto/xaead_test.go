package crypto

import "testing"

func TestXAEAD_SealOpenRoundTrip(t *testing.T) {
	key := newTestKey(0x99)
	x, err := NewXAEAD(key)
	if err != nil {
		t.Fatalf("NewXAEAD: %v", err)
	}

	sealed, err := x.Seal([]byte("application data"), []byte("session-ctx"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	pt, err := x.Open(sealed, []byte("session-ctx"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(pt) != "application data" {
		t.Fatalf("pt = %q", pt)
	}
}

func TestXAEAD_NoncesAreRandomized(t *testing.T) {
	key := newTestKey(0xaa)
	x, _ := NewXAEAD(key)

	a, _ := x.Seal([]byte("same plaintext"), nil)
	b, _ := x.Seal([]byte("same plaintext"), nil)
	if string(a[:XNonceSize]) == string(b[:XNonceSize]) {
		t.Fatal("two Seal calls produced the same nonce")
	}
}

func TestXAEAD_RejectsWrongAAD(t *testing.T) {
	key := newTestKey(0xbb)
	x, _ := NewXAEAD(key)

	sealed, _ := x.Seal([]byte("payload"), []byte("aad-one"))
	if _, err := x.Open(sealed, []byte("aad-two")); err != ErrAuthFailed {
		t.Fatalf("Open with wrong AAD = %v, want ErrAuthFailed", err)
	}
}

func TestXAEAD_RejectsShortInput(t *testing.T) {
	key := newTestKey(0xcc)
	x, _ := NewXAEAD(key)
	if _, err := x.Open([]byte("short"), nil); err != ErrAuthFailed {
		t.Fatalf("Open(short) = %v, want ErrAuthFailed", err)
	}
}
