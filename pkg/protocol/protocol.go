// Package protocol frames the flatfs network protocol.
//
// A request is one `\n`-terminated line. A response is one or more lines
// followed by an empty line. `store` and `load` add a binary exchange: the
// server answers the request with a response consisting of the single line
// READY, and then the sending side writes an 8-byte big-endian length
// followed by that many bytes of file content. The server finishes with an
// ordinary response.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	. "github.com/weberc2/flatfs/pkg/types"
)

const (
	// MaxRequestLen bounds the length of a request line, newline included.
	MaxRequestLen = 4096

	// Ready acknowledges a `store` or `load` request before content moves.
	Ready = "READY"

	ErrRequestTooLong ConstError = "request line too long"
)

// ReadRequest reads one request line without its line ending. An overlong
// line is skipped entirely so the next call starts at the following line.
func ReadRequest(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return "", err
		}
		line = append(line, chunk...)
		if len(line) >= MaxRequestLen {
			for isPrefix && err == nil {
				_, isPrefix, err = r.ReadLine()
			}
			return "", fmt.Errorf(
				"reading request: more than `%d` bytes: %w",
				MaxRequestLen-1,
				ErrRequestTooLong,
			)
		}
		if !isPrefix {
			return string(line), nil
		}
	}
}

func WriteRequest(w io.Writer, line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("writing request: line contains a line break")
	}
	if len(line)+1 > MaxRequestLen {
		return fmt.Errorf("writing request: %w", ErrRequestTooLong)
	}
	_, err := io.WriteString(w, line+"\n")
	return err
}

// WriteResponse writes `text` followed by the terminating empty line. Blank
// lines within `text` are dropped so they can't end the response early.
func WriteResponse(w io.Writer, text string) error {
	var buf bytes.Buffer
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if line == "" {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadResponse reads lines up to the terminating empty line and returns
// them joined by newlines.
func ReadResponse(r *bufio.Reader) (string, error) {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("reading response: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, line)
	}
}

func WriteLength(w io.Writer, n uint64) error {
	var p [8]byte
	binary.BigEndian.PutUint64(p[:], n)
	_, err := w.Write(p[:])
	return err
}

func ReadLength(r io.Reader) (uint64, error) {
	var p [8]byte
	if _, err := io.ReadFull(r, p[:]); err != nil {
		return 0, fmt.Errorf("reading content length: %w", err)
	}
	return binary.BigEndian.Uint64(p[:]), nil
}
