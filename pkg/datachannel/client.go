package datachannel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/lobinuxsoft/capydeploy/pkg/transfer"
)

// DialTimeout bounds how long Dial waits to establish the TCP connection.
const DialTimeout = 30 * time.Second

// SendProgressFunc reports cumulative bytes sent for the named file.
type SendProgressFunc func(totalBytes int64, currentFile string)

// Dial connects to the Agent's data channel listener and performs the
// token handshake. Returns ErrAuthFailed if the Agent rejects the token.
func Dial(addr, token string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, err
	}

	writer := bufio.NewWriter(conn)
	if err := WriteToken(writer, token); err != nil {
		conn.Close()
		return nil, err
	}
	if err := writer.Flush(); err != nil {
		conn.Close()
		return nil, err
	}

	reader := bufio.NewReader(conn)
	ok, err := ReadAuthResponse(reader)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%w: agent rejected token", ErrAuthFailed)
	}

	return conn, nil
}

// SendFiles streams each local file in files (relative to baseDir) over
// conn using the framed wire format, followed by the end marker. Files
// with sizes that don't match transfer.FileEntry.Size on disk are an error.
func SendFiles(conn net.Conn, baseDir string, files []transfer.FileEntry, progress SendProgressFunc) (int64, error) {
	writer := bufio.NewWriterSize(conn, BufferSize)
	var totalBytes int64

	for _, f := range files {
		if err := transfer.ValidatePath(f.RelativePath); err != nil {
			return totalBytes, err
		}

		localPath := baseDir + string(os.PathSeparator) + f.RelativePath
		file, err := os.Open(localPath)
		if err != nil {
			return totalBytes, err
		}

		if err := WriteFileHeader(writer, FileHeader{
			RelativePath: f.RelativePath,
			FileSize:     uint64(f.Size),
		}); err != nil {
			file.Close()
			return totalBytes, err
		}

		buf := make([]byte, BufferSize)
		var fileBytes int64
		for {
			n, rerr := file.Read(buf)
			if n > 0 {
				if _, werr := writer.Write(buf[:n]); werr != nil {
					file.Close()
					return totalBytes, werr
				}
				totalBytes += int64(n)
				fileBytes += int64(n)
				if progress != nil {
					progress(totalBytes, f.RelativePath)
				}
			}
			if rerr != nil {
				if errors.Is(rerr, io.EOF) {
					break
				}
				file.Close()
				return totalBytes, rerr
			}
		}
		file.Close()
		if fileBytes != f.Size {
			return totalBytes, fmt.Errorf("%w: %s has %d bytes on disk, expected %d", ErrProtocol, f.RelativePath, fileBytes, f.Size)
		}
	}

	if err := WriteEndMarker(writer); err != nil {
		return totalBytes, err
	}
	return totalBytes, writer.Flush()
}
