package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	"github.com/tui-server/secure-session/pkg/crypto"
	"github.com/tui-server/secure-session/pkg/handshaketlv"
	"github.com/tui-server/secure-session/pkg/transport"
)

// negotiationRequest is the encrypted message a client sends immediately
// after confirming either authentication protocol, before either side
// constructs its Connection.
type negotiationRequest struct {
	TurnOffEncryption bool `json:"turn_off_encryption"`
}

// negotiationResponse is the server's encrypted reply, always sent
// regardless of TurnOffEncryption: it is how the client learns the
// resumption ticket it may present on its next reconnect.
type negotiationResponse struct {
	SessionResumptionKeyIndex string `json:"session_resumption_key_index"`
	SessionResumptionKey      string `json:"session_resumption_key"`
	WasUnderAttack            bool   `json:"was_under_attack"`
}

// NegotiatedResumption is what a client carries away from the negotiation
// exchange: the ticket ID and PSK to present on a future ECDHE+PSK
// resumption, plus whether the brute-force limiter had been blocking this
// username before this login succeeded.
type NegotiatedResumption struct {
	TicketID       [16]byte
	PSK            []byte
	WasUnderAttack bool
}

// clientNegotiate runs the client side of the post-handshake protocol
// negotiation: it sends the turn_off_encryption request and returns the
// resumption credentials carried in the server's response, both sealed
// under trafficKey.
func clientNegotiate(conn transport.Conn, trafficKey []byte, turnOffEncryption bool) (NegotiatedResumption, error) {
	aead, err := crypto.NewXAEAD(trafficKey)
	if err != nil {
		return NegotiatedResumption{}, err
	}

	reqBody, err := json.Marshal(negotiationRequest{TurnOffEncryption: turnOffEncryption})
	if err != nil {
		return NegotiatedResumption{}, err
	}
	sealedReq, err := aead.Seal(reqBody, nil)
	if err != nil {
		return NegotiatedResumption{}, err
	}
	if err := sendMessage(conn, stepNegotiationRequest, sealedReq, nil); err != nil {
		return NegotiatedResumption{}, err
	}

	m, err := recvMessage(conn, stepNegotiationResponse)
	if err != nil {
		return NegotiatedResumption{}, err
	}
	sealedResp, ok := m.Get(handshaketlv.CipherMessage)
	if !ok {
		return NegotiatedResumption{}, ErrHandshakeMalformed
	}
	plain, err := aead.Open(sealedResp, nil)
	if err != nil {
		return NegotiatedResumption{}, err
	}

	var resp negotiationResponse
	if err := json.Unmarshal(plain, &resp); err != nil {
		return NegotiatedResumption{}, ErrHandshakeMalformed
	}
	indexBytes, err := hex.DecodeString(resp.SessionResumptionKeyIndex)
	if err != nil || len(indexBytes) != TicketIDSize {
		return NegotiatedResumption{}, ErrHandshakeMalformed
	}
	psk, err := hex.DecodeString(resp.SessionResumptionKey)
	if err != nil {
		return NegotiatedResumption{}, ErrHandshakeMalformed
	}

	var neg NegotiatedResumption
	copy(neg.TicketID[:], indexBytes)
	neg.PSK = psk
	neg.WasUnderAttack = resp.WasUnderAttack
	return neg, nil
}

// serverNegotiate runs the server side of the post-handshake protocol
// negotiation. It issues a fresh resumption ticket ID and a freshly random
// 32-byte PSK - never the authentication shared secret itself - and
// delivers both to the client in the encrypted response.
func serverNegotiate(conn transport.Conn, trafficKey []byte, wasUnderAttack bool) (turnOffEncryption bool, ticketID [16]byte, psk []byte, err error) {
	aead, err := crypto.NewXAEAD(trafficKey)
	if err != nil {
		return false, ticketID, nil, err
	}

	m, err := recvMessage(conn, stepNegotiationRequest)
	if err != nil {
		return false, ticketID, nil, err
	}
	sealedReq, ok := m.Get(handshaketlv.CipherMessage)
	if !ok {
		return false, ticketID, nil, ErrHandshakeMalformed
	}
	plain, err := aead.Open(sealedReq, nil)
	if err != nil {
		return false, ticketID, nil, err
	}
	var req negotiationRequest
	if err := json.Unmarshal(plain, &req); err != nil {
		return false, ticketID, nil, ErrHandshakeMalformed
	}

	ticketID, err = NewTicketID()
	if err != nil {
		return false, ticketID, nil, err
	}
	psk = make([]byte, 32)
	if _, err := rand.Read(psk); err != nil {
		return false, ticketID, nil, err
	}

	respBody, err := json.Marshal(negotiationResponse{
		SessionResumptionKeyIndex: hex.EncodeToString(ticketID[:]),
		SessionResumptionKey:      hex.EncodeToString(psk),
		WasUnderAttack:            wasUnderAttack,
	})
	if err != nil {
		return false, ticketID, nil, err
	}
	sealedResp, err := aead.Seal(respBody, nil)
	if err != nil {
		return false, ticketID, nil, err
	}
	if err := sendMessage(conn, stepNegotiationResponse, sealedResp, nil); err != nil {
		return false, ticketID, nil, err
	}

	return req.TurnOffEncryption, ticketID, psk, nil
}
