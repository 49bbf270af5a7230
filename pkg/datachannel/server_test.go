package datachannel

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"
)

// TestRejectBadToken is scenario S6: a client presenting a token that does
// not match the server's generated token gets AUTH_REJECTED, no files are
// transferred, and Accept reports an auth failure.
func TestRejectBadToken(t *testing.T) {
	dir := t.TempDir()
	server := NewServer(dir, nil)

	info, listener, err := server.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		_, err := server.Accept(ctx, listener, info.Token, nil)
		resultCh <- err
	}()

	addr := fmt.Sprintf("127.0.0.1:%d", info.Port)
	wrongToken := strings.Repeat("0", TokenLen)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := WriteToken(conn, wrongToken); err != nil {
		t.Fatalf("WriteToken() error = %v", err)
	}

	ok, err := ReadAuthResponse(conn)
	if err != nil {
		t.Fatalf("ReadAuthResponse() error = %v", err)
	}
	if ok {
		t.Error("ReadAuthResponse() = true, want false for mismatched token")
	}

	select {
	case err := <-resultCh:
		if err == nil {
			t.Error("Accept() error = nil, want auth failure")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Accept() did not return after rejecting token")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("files written to %s after rejected auth: %v", dir, entries)
	}
}
