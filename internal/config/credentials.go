package config

import (
	"fmt"

	"github.com/tui-server/secure-session/pkg/crypto"
	"github.com/tui-server/secure-session/pkg/spake2p"
	"github.com/tui-server/secure-session/pkg/uuid"
)

// Verifier is the SPAKE2+ registration record derived for one account: the
// salt, the (w0, L) pair, and the account's user_id, all of what a
// session.CredentialLookup hands back to pkg/session.
type Verifier struct {
	Salt   []byte
	W0     []byte
	L      []byte
	UserID uuid.UUID
}

// DeriveUsers stretches every configured User's password into its SPAKE2+
// verifier, following the same Argon2id derivation pkg/session's handshake
// tests use: Argon2id(password, salt) → 64 bytes, the halves reduced mod
// the group order into w0 and w1, with L = w1·B.
func DeriveUsers(users []User) (map[string]Verifier, error) {
	out := make(map[string]Verifier, len(users))
	for _, u := range users {
		if len(u.Salt) == 0 {
			return nil, fmt.Errorf("config: user %q has no salt", u.Username)
		}
		userID, err := uuid.Parse(u.UserID)
		if err != nil {
			return nil, fmt.Errorf("config: user %q has an invalid userID: %w", u.Username, err)
		}

		seed := crypto.DeriveW0W1Seed([]byte(u.Password), []byte(u.Salt), crypto.DefaultArgon2idParams)
		w0, err := crypto.ReduceScalar(seed[:32])
		if err != nil {
			return nil, fmt.Errorf("config: deriving w0 for %q: %w", u.Username, err)
		}
		w1, err := crypto.ReduceScalar(seed[32:])
		if err != nil {
			return nil, fmt.Errorf("config: deriving w1 for %q: %w", u.Username, err)
		}
		l, err := spake2p.DeriveL(w1.Bytes())
		if err != nil {
			return nil, fmt.Errorf("config: deriving L for %q: %w", u.Username, err)
		}
		out[u.Username] = Verifier{Salt: []byte(u.Salt), W0: w0.Bytes(), L: l, UserID: userID}
	}
	return out, nil
}
