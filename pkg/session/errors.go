package session

import "errors"

// Session package errors.
var (
	// ErrUnknownUsername is not returned by this package: when a
	// CredentialLookup reports no such user, the Server substitutes a
	// fakecred.Credential and continues the handshake, so account existence
	// is not revealed to the peer.
	ErrUnknownUsername = errors.New("session: unknown username")

	// ErrUnknownProtocol is returned when a handshake's first message names
	// a ProtocolType this server does not recognize.
	ErrUnknownProtocol = errors.New("session: unknown handshake protocol")

	// ErrUnknownTicket is returned when an ECDHE+PSK resumption attempt
	// names a ticket ID this server has no record of (expired, already
	// consumed, or never issued).
	ErrUnknownTicket = errors.New("session: unknown resumption ticket")

	// ErrHandshakeMalformed is returned when a handshake message is missing
	// a required element or has the wrong length for its step.
	ErrHandshakeMalformed = errors.New("session: malformed handshake message")

	// ErrConnectionClosed is returned by Send/Receive on a closed Connection.
	ErrConnectionClosed = errors.New("session: connection closed")
)
