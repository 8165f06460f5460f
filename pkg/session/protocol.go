package session

import "github.com/tui-server/secure-session/pkg/handshaketlv"

// protocolStep is carried in the ProtocolType element of every handshake
// message, identifying which protocol and which step within it the message
// belongs to. It lets a single handshaketlv.Message stream multiplex both
// the full SPAKE2+ login and the ECDHE+PSK resumption without a separate
// framing layer.
type protocolStep byte

const (
	stepSpake2pRetrieveSalt protocolStep = 0x10
	stepSpake2pSalt         protocolStep = 0x11
	stepSpake2pStart        protocolStep = 0x12
	stepSpake2pShare        protocolStep = 0x13
	stepSpake2pConfirm      protocolStep = 0x14

	stepEcdhepskStart   protocolStep = 0x20
	stepEcdhepskShare   protocolStep = 0x21
	stepEcdhepskConfirm protocolStep = 0x22

	// stepNegotiationRequest and stepNegotiationResponse carry the
	// post-handshake protocol negotiation exchange: both CipherMessage
	// payloads are themselves AEAD-sealed under the just-derived traffic
	// key, independent of whichever authentication peer produced it.
	stepNegotiationRequest  protocolStep = 0x30
	stepNegotiationResponse protocolStep = 0x31
)

func encodeStep(m handshaketlv.Message, step protocolStep) {
	m.Set(handshaketlv.ProtocolType, []byte{byte(step)})
}

func decodeStep(m handshaketlv.Message) (protocolStep, bool) {
	v, ok := m.Get(handshaketlv.ProtocolType)
	if !ok || len(v) != 1 {
		return 0, false
	}
	return protocolStep(v[0]), true
}

func sendMessage(conn frameSender, step protocolStep, cipherMessage, keyIndex []byte) error {
	m := handshaketlv.New()
	encodeStep(m, step)
	if cipherMessage != nil {
		m.Set(handshaketlv.CipherMessage, cipherMessage)
	}
	if keyIndex != nil {
		m.Set(handshaketlv.KeyIndex, keyIndex)
	}
	return conn.Send(m.Serialize())
}

func recvMessage(conn frameReceiver, expected protocolStep) (handshaketlv.Message, error) {
	raw, err := conn.Recv()
	if err != nil {
		return nil, err
	}
	m, err := handshaketlv.Parse(raw)
	if err != nil {
		return nil, ErrHandshakeMalformed
	}
	step, ok := decodeStep(m)
	if !ok || step != expected {
		return nil, ErrHandshakeMalformed
	}
	return m, nil
}

// frameSender/frameReceiver are the minimal slice of transport.Conn this
// package depends on, so handshake code can be unit tested against a fake.
type frameSender interface {
	Send(frame []byte) error
}

type frameReceiver interface {
	Recv() ([]byte, error)
}
