// Package fakecred generates plausible-but-fake SPAKE2+ registration
// records for usernames that do not exist, so that a server's response to
// an unknown username is computationally and structurally indistinguishable
// from its response to a known username with a wrong password. Without
// this, the presence or absence of an account could be inferred from
// timing or from the shape of the handshake failure.
package fakecred

import (
	"crypto/rand"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	secrypto "github.com/tui-server/secure-session/pkg/crypto"
)

// SaltSizeBytes is the size of a generated fake salt.
const SaltSizeBytes = 16

// Credential is a SPAKE2+ registration record: the Argon2id salt, and the
// (w0, L) pair a verifier would hold for this username.
type Credential struct {
	Salt []byte
	W0   []byte
	L    []byte
}

// Generator produces deterministic fake credentials per username, derived
// from a process-lifetime secret so that repeated lookups of the same
// nonexistent username return the same fake credential (a caller retrying a
// failed login sees consistent behavior) while different processes never
// agree on the same fake credential for the same username.
type Generator struct {
	mu      sync.Mutex
	saltPRK []byte
	cache   *lru.Cache[string, Credential]
}

// NewGenerator creates a Generator backed by an LRU cache of the given size.
func NewGenerator(cacheSize int) (*Generator, error) {
	if cacheSize <= 0 {
		return nil, ErrCacheSize
	}
	cache, err := lru.New[string, Credential](cacheSize)
	if err != nil {
		return nil, err
	}
	saltPRK := make([]byte, 32)
	if _, err := rand.Read(saltPRK); err != nil {
		return nil, err
	}
	return &Generator{saltPRK: saltPRK, cache: cache}, nil
}

// FakeCredential returns a deterministic, validly-formed but fake
// credential for username: a salt derived via HKDF-Expand(saltPRK,
// username), a uniformly random w0, and a uniformly random but
// well-formed L (so that it looks exactly like a real w1*B record to any
// observer).
func (g *Generator) FakeCredential(username string) (Credential, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cred, ok := g.cache.Get(username); ok {
		return cred, nil
	}

	cred, err := g.generate(username, nil)
	if err != nil {
		return Credential{}, err
	}
	g.cache.Add(username, cred)
	return cred, nil
}

// SpliceRealSalt returns a fake w0/L pair, as FakeCredential does, but with
// realSalt substituted for the derived fake salt. It is used when a
// username exists but is currently brute-force-blocked: serving the real
// salt keeps the client's Argon2id work factor identical to a real
// authentication attempt, while w0/L remain fake so the attempt can never
// succeed, masking "blocked" from "wrong password" at the protocol level.
func (g *Generator) SpliceRealSalt(username string, realSalt []byte) (Credential, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cacheKey := "spliced:" + username
	if cred, ok := g.cache.Get(cacheKey); ok {
		cred.Salt = realSalt
		return cred, nil
	}

	cred, err := g.generate(username, realSalt)
	if err != nil {
		return Credential{}, err
	}
	g.cache.Add(cacheKey, cred)
	return cred, nil
}

func (g *Generator) generate(username string, salt []byte) (Credential, error) {
	if salt == nil {
		derived, err := secrypto.HKDFExpandSHA256(g.saltPRK, []byte(username), SaltSizeBytes)
		if err != nil {
			return Credential{}, err
		}
		salt = derived
	}

	w0, err := secrypto.RandomScalar(rand.Reader)
	if err != nil {
		return Credential{}, err
	}
	lScalar, err := secrypto.RandomScalar(rand.Reader)
	if err != nil {
		return Credential{}, err
	}
	l := secrypto.ScalarBaseMult(lScalar)

	return Credential{
		Salt: append([]byte(nil), salt...),
		W0:   w0.Bytes(),
		L:    l.Bytes(),
	}, nil
}

// ErrCacheSize is returned by NewGenerator when cacheSize is not positive.
var ErrCacheSize = errors.New("fakecred: cache size must be positive")
