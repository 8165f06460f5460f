package ecdhepsk

import (
	"bytes"
	"testing"
)

func fixedPSK(b byte) []byte {
	psk := make([]byte, PSKSizeBytes)
	for i := range psk {
		psk[i] = b
	}
	return psk
}

func runHandshake(t *testing.T, client, server *ECDHEPSK) {
	t.Helper()

	ex, err := client.GenerateShare()
	if err != nil {
		t.Fatalf("client.GenerateShare: %v", err)
	}
	ey, err := server.GenerateShare()
	if err != nil {
		t.Fatalf("server.GenerateShare: %v", err)
	}

	if err := client.ProcessPeerShare(ey); err != nil {
		t.Fatalf("client.ProcessPeerShare: %v", err)
	}
	if err := server.ProcessPeerShare(ex); err != nil {
		t.Fatalf("server.ProcessPeerShare: %v", err)
	}

	confirmS, err := server.Confirmation()
	if err != nil {
		t.Fatalf("server.Confirmation: %v", err)
	}
	if err := client.VerifyPeerConfirmation(confirmS); err != nil {
		t.Fatalf("client.VerifyPeerConfirmation(server): %v", err)
	}

	confirmC, err := client.Confirmation()
	if err != nil {
		t.Fatalf("client.Confirmation: %v", err)
	}
	if err := server.VerifyPeerConfirmation(confirmC); err != nil {
		t.Fatalf("server.VerifyPeerConfirmation(client): %v", err)
	}

	if !bytes.Equal(client.ClientKey(), server.ClientKey()) {
		t.Fatal("client/server disagree on ClientKey")
	}
	if !bytes.Equal(client.ServerKey(), server.ServerKey()) {
		t.Fatal("client/server disagree on ServerKey")
	}
	if bytes.Equal(client.ClientKey(), client.ServerKey()) {
		t.Fatal("ClientKey and ServerKey must differ")
	}
}

func TestSuccessfulResumption(t *testing.T) {
	psk := fixedPSK(0x42)
	sessionID := []byte("resumed-session-id")

	client, err := NewClient(psk, sessionID)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	server, err := NewServer(psk, sessionID)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	runHandshake(t, client, server)
}

func TestMismatchedPSKFailsConfirmation(t *testing.T) {
	sessionID := []byte("session")
	client, _ := NewClient(fixedPSK(0x01), sessionID)
	server, _ := NewServer(fixedPSK(0x02), sessionID)

	ex, _ := client.GenerateShare()
	ey, _ := server.GenerateShare()
	if err := client.ProcessPeerShare(ey); err != nil {
		t.Fatalf("client.ProcessPeerShare: %v", err)
	}
	if err := server.ProcessPeerShare(ex); err != nil {
		t.Fatalf("server.ProcessPeerShare: %v", err)
	}

	confirmS, _ := server.Confirmation()
	if err := client.VerifyPeerConfirmation(confirmS); err != ErrConfirmationFailed {
		t.Fatalf("err = %v, want ErrConfirmationFailed", err)
	}
}

func TestRejectsInvalidPSKSize(t *testing.T) {
	if _, err := NewClient([]byte("too-short"), nil); err != ErrInvalidPSKSize {
		t.Fatalf("err = %v, want ErrInvalidPSKSize", err)
	}
}

func TestOutOfOrderCallsAreRejected(t *testing.T) {
	client, _ := NewClient(fixedPSK(0x09), []byte("s"))
	if err := client.ProcessPeerShare(make([]byte, PublicKeySizeBytes)); err != ErrInvalidState {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if _, err := client.GenerateShare(); err != ErrInvalidState {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}
