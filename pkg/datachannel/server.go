package datachannel

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/lobinuxsoft/capydeploy/pkg/transfer"
)

// BufferSize is the read/write buffer size used for file streaming.
const BufferSize = 256 * 1024

// ConnectTimeout bounds how long the listener waits for the Hub to dial in.
const ConnectTimeout = 30 * time.Second

// AuthTimeout bounds how long the listener waits for the token handshake.
const AuthTimeout = 5 * time.Second

// Info is sent to the Hub over the WebSocket connection so it knows where
// and how to dial the TCP side channel.
type Info struct {
	Port  int
	Token string
}

// ProgressFunc reports bytes received so far for the named file.
type ProgressFunc func(totalBytes int64, currentFile string)

// Server is the Agent-side TCP data server: it accepts exactly one
// connection per session, validates the token, and streams files to disk.
type Server struct {
	basePath string
	log      *slog.Logger
}

// NewServer creates a data channel server rooted at basePath.
func NewServer(basePath string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{basePath: basePath, log: log}
}

// Listen binds an ephemeral TCP listener and generates a fresh token. The
// caller sends the returned Info to the Hub via WS, then calls Accept.
func (s *Server) Listen() (Info, net.Listener, error) {
	listener, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		return Info{}, nil, err
	}
	token, err := GenerateToken()
	if err != nil {
		listener.Close()
		return Info{}, nil, err
	}
	port := listener.Addr().(*net.TCPAddr).Port
	s.log.Info("tcp data channel listener bound", "port", port)
	return Info{Port: port, Token: token}, listener, nil
}

// Accept waits for a single connection, authenticates it, and streams
// incoming files to disk under basePath. Returns the total bytes received.
// Closing ctx aborts the wait or an in-progress transfer.
func (s *Server) Accept(ctx context.Context, listener net.Listener, expectedToken string, progress ProgressFunc) (int64, error) {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		conn, err := listener.Accept()
		acceptCh <- acceptResult{conn, err}
	}()

	var conn net.Conn
	select {
	case <-ctx.Done():
		listener.Close()
		return 0, ErrCancelled
	case <-time.After(ConnectTimeout):
		listener.Close()
		return 0, ErrTimeout
	case res := <-acceptCh:
		if res.err != nil {
			return 0, res.err
		}
		conn = res.conn
	}
	listener.Close() // only one connection per session
	defer conn.Close()

	s.log.Info("tcp data channel connection accepted", "remote", conn.RemoteAddr())

	reader := bufio.NewReaderSize(conn, BufferSize)
	writer := bufio.NewWriter(conn)

	conn.SetReadDeadline(time.Now().Add(AuthTimeout))
	receivedToken, err := ReadToken(reader)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		return 0, err
	}

	if !ValidateToken(receivedToken, expectedToken) {
		s.log.Warn("tcp data channel: invalid token")
		_ = WriteAuthResponse(writer, false)
		return 0, fmt.Errorf("%w: invalid token", ErrAuthFailed)
	}
	if err := WriteAuthResponse(writer, true); err != nil {
		return 0, err
	}
	s.log.Info("tcp data channel: authenticated")

	var totalBytes int64
	buf := make([]byte, BufferSize)

	for {
		if ctx.Err() != nil {
			return totalBytes, ErrCancelled
		}

		header, err := ReadFileHeader(reader)
		if err != nil {
			return totalBytes, err
		}
		if header == nil {
			s.log.Debug("tcp data channel: end marker received")
			break
		}

		if err := transfer.ValidatePath(header.RelativePath); err != nil {
			return totalBytes, err
		}

		filePath := filepath.Join(s.basePath, header.RelativePath)
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return totalBytes, err
		}

		file, err := os.Create(filePath)
		if err != nil {
			return totalBytes, err
		}

		remaining := header.FileSize
		for remaining > 0 {
			if ctx.Err() != nil {
				file.Close()
				return totalBytes, ErrCancelled
			}

			toRead := len(buf)
			if uint64(toRead) > remaining {
				toRead = int(remaining)
			}
			n, err := reader.Read(buf[:toRead])
			if n > 0 {
				if _, werr := file.Write(buf[:n]); werr != nil {
					file.Close()
					return totalBytes, werr
				}
				remaining -= uint64(n)
				totalBytes += int64(n)
				if progress != nil {
					progress(totalBytes, header.RelativePath)
				}
			}
			if err != nil {
				file.Close()
				return totalBytes, fmt.Errorf("%w: unexpected EOF during file data (%v)", ErrProtocol, err)
			}
		}
		file.Close()

		s.log.Debug("tcp data channel: file received", "path", header.RelativePath, "size", header.FileSize)
	}

	s.log.Info("tcp data channel: transfer complete", "totalBytes", totalBytes)
	return totalBytes, nil
}
