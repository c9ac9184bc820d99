// Package client talks to a flatfs server.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strings"

	"github.com/weberc2/flatfs/pkg/console"
	"github.com/weberc2/flatfs/pkg/protocol"
)

type Client struct {
	conn net.Conn
	r    *bufio.Reader

	// Greeting is the server's first response, naming the session.
	Greeting string
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing `%s`: %w", addr, err)
	}
	c := Client{conn: conn, r: bufio.NewReader(conn)}
	if c.Greeting, err = protocol.ReadResponse(c.r); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dialing `%s`: %w", addr, err)
	}
	return &c, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Do sends one command and returns the response.
func (c *Client) Do(line string) (string, error) {
	if err := protocol.WriteRequest(c.conn, line); err != nil {
		return "", err
	}
	return protocol.ReadResponse(c.r)
}

// Store sends a `store` command and, once the server is ready, `size` bytes
// of `content`. If the server rejects the command, its response is
// returned and nothing is sent.
func (c *Client) Store(line string, content io.Reader, size uint64) (string, error) {
	response, err := c.Do(line)
	if err != nil || response != protocol.Ready {
		return response, err
	}
	if err := protocol.WriteLength(c.conn, size); err != nil {
		return "", fmt.Errorf("storing: %w", err)
	}
	if _, err := io.CopyN(c.conn, content, int64(size)); err != nil {
		return "", fmt.Errorf("storing: sending content: %w", err)
	}
	return protocol.ReadResponse(c.r)
}

// Load sends a `load` command and copies the content the server returns
// into the writer `open` returns for its length.
func (c *Client) Load(
	line string,
	open func(size uint64) (io.WriteCloser, error),
) (string, error) {
	response, err := c.Do(line)
	if err != nil || response != protocol.Ready {
		return response, err
	}
	size, err := protocol.ReadLength(c.r)
	if err != nil {
		return "", fmt.Errorf("loading: %w", err)
	}

	sink, err := open(size)
	if err != nil {
		// keep the stream in sync even though there is nowhere to put it
		io.CopyN(io.Discard, c.r, int64(size))
		protocol.ReadResponse(c.r)
		return "", fmt.Errorf("loading: %w", err)
	}
	if _, err := io.CopyN(sink, c.r, int64(size)); err != nil {
		sink.Close()
		return "", fmt.Errorf("loading: receiving content: %w", err)
	}
	if err := sink.Close(); err != nil {
		protocol.ReadResponse(c.r)
		return "", fmt.Errorf("loading: %w", err)
	}
	return protocol.ReadResponse(c.r)
}

// Run forwards command lines from `in` to the server and prints responses
// to `out` until `exit`, end of input, or `ctx` is done. `store` and `load`
// read and write local files through `transfer`.
func (c *Client) Run(
	ctx context.Context,
	in io.Reader,
	out io.Writer,
	transfer console.Transfer,
	prompt string,
) error {
	scanner := bufio.NewScanner(in)
	for {
		if prompt != "" {
			fmt.Fprint(out, prompt)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		response, err := c.exec(line, transfer)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, response)
		if console.Command(line) == "exit" && strings.TrimSpace(line) == "exit" {
			return nil
		}
	}
}

func (c *Client) exec(line string, transfer console.Transfer) (string, error) {
	from, to, ok := console.ParseTransfer(line)
	switch command := console.Command(line); {
	case command == "store" && ok:
		source, size, err := transfer.Source(from)
		if err != nil {
			return "Can't open from_file", nil
		}
		defer source.Close()
		return c.Store(line, source, size)
	case command == "load" && ok:
		var openErr error
		response, err := c.Load(line, func(size uint64) (io.WriteCloser, error) {
			sink, err := transfer.Sink(to, path.Base(from), size)
			openErr = err
			return sink, err
		})
		if openErr != nil {
			return "Can't open to_file", nil
		}
		return response, err
	default:
		return c.Do(line)
	}
}
