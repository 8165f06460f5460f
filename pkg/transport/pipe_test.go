package transport

import (
	"sync"
	"testing"
)

func TestPipeSendRecvRoundTrip(t *testing.T) {
	client, server := NewPipe()
	defer client.Close()
	defer server.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	var recvErr error
	go func() {
		defer wg.Done()
		got, recvErr = server.Recv()
	}()

	if err := client.Send([]byte("hello, server")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	wg.Wait()
	if recvErr != nil {
		t.Fatalf("Recv: %v", recvErr)
	}
	if string(got) != "hello, server" {
		t.Fatalf("got = %q", got)
	}
}

func TestPipeMultipleFramesPreserveOrder(t *testing.T) {
	client, server := NewPipe()
	defer client.Close()
	defer server.Close()

	messages := []string{"first", "second", "third"}
	var wg sync.WaitGroup
	wg.Add(1)
	received := make([]string, 0, len(messages))
	go func() {
		defer wg.Done()
		for range messages {
			frame, err := server.Recv()
			if err != nil {
				t.Errorf("Recv: %v", err)
				return
			}
			received = append(received, string(frame))
		}
	}()

	for _, m := range messages {
		if err := client.Send([]byte(m)); err != nil {
			t.Fatalf("Send(%q): %v", m, err)
		}
	}
	wg.Wait()

	for i, m := range messages {
		if received[i] != m {
			t.Fatalf("received[%d] = %q, want %q", i, received[i], m)
		}
	}
}

func TestPipeRecvAfterCloseErrors(t *testing.T) {
	client, server := NewPipe()
	client.Close()
	server.Close()

	if _, err := server.Recv(); err == nil {
		t.Fatal("Recv after close should return an error")
	}
}

func TestEmptyFrameRoundTrips(t *testing.T) {
	client, server := NewPipe()
	defer client.Close()
	defer server.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	go func() {
		defer wg.Done()
		got, _ = server.Recv()
	}()

	if err := client.Send(nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	wg.Wait()
	if len(got) != 0 {
		t.Fatalf("got = %v, want empty", got)
	}
}
