package session

import (
	"crypto/rand"

	"github.com/tui-server/secure-session/pkg/crypto"
	"github.com/tui-server/secure-session/pkg/ecdhepsk"
	"github.com/tui-server/secure-session/pkg/handshaketlv"
	"github.com/tui-server/secure-session/pkg/spake2p"
	"github.com/tui-server/secure-session/pkg/transport"
)

// TicketIDSize is the size of the opaque resumption ticket ID handed to a
// client after a successful negotiation, to be presented on a later
// ECDHE+PSK resumption attempt.
const TicketIDSize = 16

// SaltSize is the size of the SPAKE2+ verifier salt exchanged during the
// RetrieveSalt round trip.
const SaltSize = 16

// ClientHello is the decoded first message of a handshake, before the
// server knows which protocol branch to take. For a fresh SPAKE2+ login it
// carries only Username - the client has not yet computed a share, since
// it still needs the server's salt to do so. For an ECDHE+PSK resumption
// it carries the full first flight.
type ClientHello struct {
	Step        protocolStep
	Username    string   // set only for a fresh SPAKE2+ login
	TicketID    [16]byte // set only for an ECDHE+PSK resumption
	ClientShare []byte   // set only for an ECDHE+PSK resumption
}

// ReadClientHello reads and decodes the first handshake message, routing on
// its ProtocolType without yet knowing the credential or PSK it will need
// to continue.
func ReadClientHello(conn transport.Conn) (ClientHello, error) {
	raw, err := conn.Recv()
	if err != nil {
		return ClientHello{}, err
	}
	m, err := handshaketlv.Parse(raw)
	if err != nil {
		return ClientHello{}, ErrHandshakeMalformed
	}
	step, ok := decodeStep(m)
	if !ok {
		return ClientHello{}, ErrHandshakeMalformed
	}

	switch step {
	case stepSpake2pRetrieveSalt:
		username, ok := m.Get(handshaketlv.KeyIndex)
		if !ok || len(username) == 0 {
			return ClientHello{}, ErrHandshakeMalformed
		}
		return ClientHello{Step: step, Username: string(username)}, nil
	case stepEcdhepskStart:
		share, ok := m.Get(handshaketlv.CipherMessage)
		if !ok {
			return ClientHello{}, ErrHandshakeMalformed
		}
		keyIndex, ok := m.Get(handshaketlv.KeyIndex)
		if !ok || len(keyIndex) != TicketIDSize {
			return ClientHello{}, ErrHandshakeMalformed
		}
		hello := ClientHello{Step: step, ClientShare: share}
		copy(hello.TicketID[:], keyIndex)
		return hello, nil
	default:
		return ClientHello{}, ErrUnknownProtocol
	}
}

// ClientLoginSpake2p runs the client side of a full SPAKE2+ login,
// including the RetrieveSalt round trip and the post-handshake protocol
// negotiation exchange. It returns the Connection traffic key and the
// resumption credentials negotiated for the next reconnect.
func ClientLoginSpake2p(conn transport.Conn, handshakeContext []byte, username string, password []byte, argonParams crypto.Argon2idParams, turnOffEncryption bool) (trafficKey []byte, neg NegotiatedResumption, err error) {
	if err := sendMessage(conn, stepSpake2pRetrieveSalt, nil, []byte(username)); err != nil {
		return nil, NegotiatedResumption{}, err
	}

	saltMsg, err := recvMessage(conn, stepSpake2pSalt)
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	salt, ok := saltMsg.Get(handshaketlv.CipherMessage)
	if !ok || len(salt) != SaltSize {
		return nil, NegotiatedResumption{}, ErrHandshakeMalformed
	}

	seed := crypto.DeriveW0W1Seed(password, salt, argonParams)
	w0Scalar, err := crypto.ReduceScalar(seed[:32])
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	w1Scalar, err := crypto.ReduceScalar(seed[32:])
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	w0, w1 := w0Scalar.Bytes(), w1Scalar.Bytes()

	prover, err := spake2p.NewProver(handshakeContext, []byte(username), nil, w0, w1)
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}

	X, err := prover.GenerateShare()
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	if err := sendMessage(conn, stepSpake2pStart, X, nil); err != nil {
		return nil, NegotiatedResumption{}, err
	}

	m2, err := recvMessage(conn, stepSpake2pShare)
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	payload, ok := m2.Get(handshaketlv.CipherMessage)
	if !ok || len(payload) < spake2p.PointSizeBytes {
		return nil, NegotiatedResumption{}, ErrHandshakeMalformed
	}
	Y, confirmV := payload[:spake2p.PointSizeBytes], payload[spake2p.PointSizeBytes:]

	if err := prover.ProcessPeerShare(Y); err != nil {
		return nil, NegotiatedResumption{}, err
	}
	if err := prover.VerifyPeerConfirmation(confirmV); err != nil {
		return nil, NegotiatedResumption{}, err
	}

	confirmP, err := prover.Confirmation()
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	if err := sendMessage(conn, stepSpake2pConfirm, confirmP, nil); err != nil {
		return nil, NegotiatedResumption{}, err
	}

	trafficKey, err = deriveTrafficKey(prover.SharedSecret())
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}

	neg, err = clientNegotiate(conn, trafficKey, turnOffEncryption)
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	return trafficKey, neg, nil
}

// ServerSendSalt sends the SPAKE2+ RetrieveSalt response: the (possibly
// fake or real-spliced) salt resolved for the username carried in a
// ClientHello.
func ServerSendSalt(conn transport.Conn, salt []byte) error {
	return sendMessage(conn, stepSpake2pSalt, salt, nil)
}

// ServerContinueSpake2p runs the remainder of the server side of a SPAKE2+
// login after the salt has already been sent: it receives the client's
// share, confirms, and returns the shared secret.
func ServerContinueSpake2p(conn transport.Conn, handshakeContext []byte, username string, w0, l []byte) (sharedSecret []byte, err error) {
	verifier, err := spake2p.NewVerifier(handshakeContext, []byte(username), nil, w0, l)
	if err != nil {
		return nil, err
	}

	Y, err := verifier.GenerateShare()
	if err != nil {
		return nil, err
	}

	m1, err := recvMessage(conn, stepSpake2pStart)
	if err != nil {
		return nil, err
	}
	clientShare, ok := m1.Get(handshaketlv.CipherMessage)
	if !ok {
		return nil, ErrHandshakeMalformed
	}
	if err := verifier.ProcessPeerShare(clientShare); err != nil {
		return nil, err
	}

	confirmV, err := verifier.Confirmation()
	if err != nil {
		return nil, err
	}

	payload := append(append([]byte(nil), Y...), confirmV...)
	if err := sendMessage(conn, stepSpake2pShare, payload, nil); err != nil {
		return nil, err
	}

	m3, err := recvMessage(conn, stepSpake2pConfirm)
	if err != nil {
		return nil, err
	}
	confirmP, ok := m3.Get(handshaketlv.CipherMessage)
	if !ok {
		return nil, ErrHandshakeMalformed
	}
	if err := verifier.VerifyPeerConfirmation(confirmP); err != nil {
		return nil, err
	}

	return verifier.SharedSecret(), nil
}

// ClientResume runs the client side of an ECDHE+PSK resumption using the
// ticket ID and PSK obtained from a prior login's negotiation response,
// followed by the same post-handshake negotiation exchange as a fresh
// login.
func ClientResume(conn transport.Conn, ticketID [16]byte, psk []byte, turnOffEncryption bool) (trafficKey []byte, neg NegotiatedResumption, err error) {
	c, err := ecdhepsk.NewClient(psk, ticketID[:])
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	Ex, err := c.GenerateShare()
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	if err := sendMessage(conn, stepEcdhepskStart, Ex, ticketID[:]); err != nil {
		return nil, NegotiatedResumption{}, err
	}

	m2, err := recvMessage(conn, stepEcdhepskShare)
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	payload, ok := m2.Get(handshaketlv.CipherMessage)
	if !ok || len(payload) < ecdhepsk.PublicKeySizeBytes {
		return nil, NegotiatedResumption{}, ErrHandshakeMalformed
	}
	Ey, confirmS := payload[:ecdhepsk.PublicKeySizeBytes], payload[ecdhepsk.PublicKeySizeBytes:]

	if err := c.ProcessPeerShare(Ey); err != nil {
		return nil, NegotiatedResumption{}, err
	}
	if err := c.VerifyPeerConfirmation(confirmS); err != nil {
		return nil, NegotiatedResumption{}, err
	}

	confirmC, err := c.Confirmation()
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	if err := sendMessage(conn, stepEcdhepskConfirm, confirmC, nil); err != nil {
		return nil, NegotiatedResumption{}, err
	}

	trafficKey, err = deriveTrafficKey(c.ServerKey())
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	neg, err = clientNegotiate(conn, trafficKey, turnOffEncryption)
	if err != nil {
		return nil, NegotiatedResumption{}, err
	}
	return trafficKey, neg, nil
}

// ServerContinueResume runs the server side of an ECDHE+PSK resumption,
// given the already-parsed ClientHello and the PSK bound to its ticket ID.
func ServerContinueResume(conn transport.Conn, ticketID [16]byte, psk []byte, clientShare []byte) (trafficKey []byte, err error) {
	s, err := ecdhepsk.NewServer(psk, ticketID[:])
	if err != nil {
		return nil, err
	}
	Ey, err := s.GenerateShare()
	if err != nil {
		return nil, err
	}
	if err := s.ProcessPeerShare(clientShare); err != nil {
		return nil, err
	}

	confirmS, err := s.Confirmation()
	if err != nil {
		return nil, err
	}
	payload := append(append([]byte(nil), Ey...), confirmS...)
	if err := sendMessage(conn, stepEcdhepskShare, payload, nil); err != nil {
		return nil, err
	}

	m3, err := recvMessage(conn, stepEcdhepskConfirm)
	if err != nil {
		return nil, err
	}
	confirmC, ok := m3.Get(handshaketlv.CipherMessage)
	if !ok {
		return nil, ErrHandshakeMalformed
	}
	if err := s.VerifyPeerConfirmation(confirmC); err != nil {
		return nil, err
	}

	return deriveTrafficKey(s.ServerKey())
}

// NewTicketID generates a random resumption ticket ID.
func NewTicketID() ([16]byte, error) {
	var id [16]byte
	_, err := rand.Read(id[:])
	return id, err
}

// deriveTrafficKey turns a handshake shared secret into the
// XChaCha20-Poly1305 key used both for the post-handshake negotiation
// exchange and for the Connection's application traffic.
func deriveTrafficKey(sharedSecret []byte) ([]byte, error) {
	return crypto.HKDFExpandSHA256(sharedSecret, []byte("session-traffic-key"), 32)
}
