package session

import (
	"sync"
	"testing"

	secrypto "github.com/tui-server/secure-session/pkg/crypto"
	"github.com/tui-server/secure-session/pkg/spake2p"
	"github.com/tui-server/secure-session/pkg/transport"
)

var testArgon2Params = secrypto.Argon2idParams{
	TimeCost:    1,
	MemoryKiB:   8 * 1024,
	Parallelism: 1,
	KeyLen:      64,
}

func deriveW0W1L(t *testing.T, password, salt []byte) (w0, w1, l []byte) {
	t.Helper()
	seed := secrypto.DeriveW0W1Seed(password, salt, testArgon2Params)
	w0Scalar, err := secrypto.ReduceScalar(seed[:32])
	if err != nil {
		t.Fatalf("ReduceScalar(w0): %v", err)
	}
	w1Scalar, err := secrypto.ReduceScalar(seed[32:])
	if err != nil {
		t.Fatalf("ReduceScalar(w1): %v", err)
	}
	l, err = spake2p.DeriveL(w1Scalar.Bytes())
	if err != nil {
		t.Fatalf("DeriveL: %v", err)
	}
	return w0Scalar.Bytes(), w1Scalar.Bytes(), l
}

// runServerLogin plays the server side of one SPAKE2+ login: it reads the
// ClientHello's RetrieveSalt request, sends salt, and completes the
// exchange and the post-handshake negotiation.
func runServerLogin(conn transport.Conn, handshakeContext, salt, w0, l []byte) (trafficKey []byte, wasUnderAttack bool, err error) {
	hello, err := ReadClientHello(conn)
	if err != nil {
		return nil, false, err
	}
	if err := ServerSendSalt(conn, salt); err != nil {
		return nil, false, err
	}
	ke, err := ServerContinueSpake2p(conn, handshakeContext, hello.Username, w0, l)
	if err != nil {
		return nil, false, err
	}
	trafficKey, err = deriveTrafficKey(ke)
	if err != nil {
		return nil, false, err
	}
	if _, _, _, err := serverNegotiate(conn, trafficKey, wasUnderAttack); err != nil {
		return nil, false, err
	}
	return trafficKey, wasUnderAttack, nil
}

func TestFullLoginThenResumeOverPipe(t *testing.T) {
	client, server := transport.NewPipe()
	defer client.Close()
	defer server.Close()

	handshakeContext := []byte("test-handshake-context")
	username := "alice"
	password := []byte("correct horse battery staple")
	salt := []byte("0123456789abcdef")
	w0, _, l := deriveW0W1L(t, password, salt)

	var wg sync.WaitGroup
	wg.Add(2)

	var clientKey []byte
	var clientNeg NegotiatedResumption
	var clientErr error
	go func() {
		defer wg.Done()
		clientKey, clientNeg, clientErr = ClientLoginSpake2p(client, handshakeContext, username, password, testArgon2Params, false)
	}()

	var serverKey []byte
	var serverErr error
	go func() {
		defer wg.Done()
		serverKey, _, serverErr = runServerLogin(server, handshakeContext, salt, w0, l)
	}()
	wg.Wait()

	if clientErr != nil {
		t.Fatalf("client login: %v", clientErr)
	}
	if serverErr != nil {
		t.Fatalf("server login: %v", serverErr)
	}
	if len(clientKey) == 0 || string(clientKey) != string(serverKey) {
		t.Fatalf("traffic keys differ: client=%x server=%x", clientKey, serverKey)
	}
	if clientNeg.TicketID == ([16]byte{}) {
		t.Fatal("expected a non-zero ticket ID")
	}
	if len(clientNeg.PSK) != 32 {
		t.Fatalf("len(PSK) = %d, want 32", len(clientNeg.PSK))
	}

	wg.Add(2)
	var resumeClientKey, resumeServerKey []byte
	var resumeClientNeg NegotiatedResumption
	var resumeClientErr, resumeServerErr error
	go func() {
		defer wg.Done()
		resumeClientKey, resumeClientNeg, resumeClientErr = ClientResume(client, clientNeg.TicketID, clientNeg.PSK, false)
	}()
	go func() {
		defer wg.Done()
		hello, err := ReadClientHello(server)
		if err != nil {
			resumeServerErr = err
			return
		}
		resumeServerKey, err = ServerContinueResume(server, hello.TicketID, clientNeg.PSK, hello.ClientShare)
		if err != nil {
			resumeServerErr = err
			return
		}
		if _, _, _, err := serverNegotiate(server, resumeServerKey, false); err != nil {
			resumeServerErr = err
		}
	}()
	wg.Wait()

	if resumeClientErr != nil {
		t.Fatalf("client resume: %v", resumeClientErr)
	}
	if resumeServerErr != nil {
		t.Fatalf("server resume: %v", resumeServerErr)
	}
	if string(resumeClientKey) != string(resumeServerKey) {
		t.Fatalf("resumption traffic keys differ between sides")
	}
	if resumeClientNeg.TicketID == clientNeg.TicketID {
		t.Fatal("resumption should negotiate a fresh ticket, not reuse the one it consumed")
	}
}

func TestLoginWithWrongPasswordFails(t *testing.T) {
	client, server := transport.NewPipe()
	defer client.Close()
	defer server.Close()

	handshakeContext := []byte("ctx")
	username := "bob"
	salt := []byte("fedcba9876543210")
	w0, _, l := deriveW0W1L(t, []byte("real-password"), salt)

	var wg sync.WaitGroup
	wg.Add(2)

	var clientErr error
	go func() {
		defer wg.Done()
		_, _, clientErr = ClientLoginSpake2p(client, handshakeContext, username, []byte("wrong-password"), testArgon2Params, false)
	}()

	var serverErr error
	go func() {
		defer wg.Done()
		_, _, serverErr = runServerLogin(server, handshakeContext, salt, w0, l)
	}()
	wg.Wait()

	if clientErr == nil && serverErr == nil {
		t.Fatal("expected login with wrong password to fail on at least one side")
	}
}
