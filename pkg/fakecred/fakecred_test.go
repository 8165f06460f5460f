package fakecred

import (
	"bytes"
	"testing"
)

func TestFakeCredentialIsDeterministicPerGenerator(t *testing.T) {
	g, err := NewGenerator(16)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	a, err := g.FakeCredential("nobody")
	if err != nil {
		t.Fatalf("FakeCredential: %v", err)
	}
	b, err := g.FakeCredential("nobody")
	if err != nil {
		t.Fatalf("FakeCredential: %v", err)
	}
	if !bytes.Equal(a.Salt, b.Salt) || !bytes.Equal(a.W0, b.W0) || !bytes.Equal(a.L, b.L) {
		t.Fatal("repeated FakeCredential calls for the same username must return the same record")
	}
	if len(a.Salt) != SaltSizeBytes {
		t.Fatalf("len(salt) = %d, want %d", len(a.Salt), SaltSizeBytes)
	}
}

func TestFakeCredentialDiffersAcrossGenerators(t *testing.T) {
	g1, _ := NewGenerator(16)
	g2, _ := NewGenerator(16)

	a, _ := g1.FakeCredential("nobody")
	b, _ := g2.FakeCredential("nobody")
	if bytes.Equal(a.Salt, b.Salt) {
		t.Fatal("two independently-seeded generators should not agree on the same salt")
	}
}

func TestFakeCredentialDiffersAcrossUsernames(t *testing.T) {
	g, _ := NewGenerator(16)
	a, _ := g.FakeCredential("alice")
	b, _ := g.FakeCredential("bob")
	if bytes.Equal(a.Salt, b.Salt) {
		t.Fatal("distinct usernames should derive distinct fake salts")
	}
}

func TestSpliceRealSaltKeepsRealSaltButFakeW0L(t *testing.T) {
	g, _ := NewGenerator(16)
	realSalt := []byte("0123456789abcdef")

	cred, err := g.SpliceRealSalt("lockedout", realSalt)
	if err != nil {
		t.Fatalf("SpliceRealSalt: %v", err)
	}
	if !bytes.Equal(cred.Salt, realSalt) {
		t.Fatal("SpliceRealSalt must preserve the real salt")
	}

	fake, _ := g.FakeCredential("lockedout")
	if bytes.Equal(fake.Salt, cred.Salt) {
		t.Fatal("the plain fake-credential path should not reuse the spliced real salt")
	}
}

func TestNewGeneratorRejectsNonPositiveSize(t *testing.T) {
	if _, err := NewGenerator(0); err != ErrCacheSize {
		t.Fatalf("err = %v, want ErrCacheSize", err)
	}
}
