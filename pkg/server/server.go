// Package server serves the flatfs command language over TCP. Connections
// are served one at a time, each to completion, against a single open
// filesystem.
package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/weberc2/flatfs/pkg/console"
	"github.com/weberc2/flatfs/pkg/filesystem"
	"github.com/weberc2/flatfs/pkg/protocol"
)

// Bye answers `exit` before the server closes the connection.
const Bye = "Bye"

type Server struct {
	fs     *filesystem.FileSystem
	logger *slog.Logger
}

func New(fs *filesystem.FileSystem, logger *slog.Logger) *Server {
	return &Server{fs: fs, logger: logger}
}

// ListenAndServe listens on `addr` and serves until `ctx` is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on `%s`: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections from `l` until `ctx` is done, at which point
// the listener and any open connection are closed. It returns nil after a
// cancellation.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.logger.Info("serving", "addr", l.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return l.Close()
	})
	g.Go(func() error {
		for {
			conn, err := l.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accepting connection: %w", err)
			}
			s.serveConn(ctx, conn)
			if err := s.fs.Sync(); err != nil {
				s.logger.Error("syncing image", "err", err)
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	s.logger.Info("stopped serving")
	return nil
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	id := uuid.New()
	logger := s.logger.With(
		"session", id.String(),
		"remote", conn.RemoteAddr().String(),
	)
	logger.Info("accepted connection")

	r := bufio.NewReaderSize(conn, protocol.MaxRequestLen)
	shell := console.New(s.fs, &connTransfer{r: r, w: conn}, logger)
	if err := protocol.WriteResponse(conn, "flatfs session "+id.String()); err != nil {
		logger.Error("writing greeting", "err", err)
		return
	}

	for {
		line, err := protocol.ReadRequest(r)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				logger.Info("connection closed")
				return
			}
			if errors.Is(err, protocol.ErrRequestTooLong) {
				logger.Info("rejected request", "err", err)
				if err := protocol.WriteResponse(conn, "Request too long"); err != nil {
					logger.Error("writing response", "err", err)
					return
				}
				continue
			}
			logger.Error("reading request", "err", err)
			return
		}

		var out bytes.Buffer
		if shell.Exec(line, &out) {
			if err := protocol.WriteResponse(conn, Bye); err != nil {
				logger.Error("writing response", "err", err)
			}
			logger.Info("session ended by client")
			return
		}
		if err := protocol.WriteResponse(conn, out.String()); err != nil {
			logger.Error("writing response", "err", err)
			return
		}
	}
}

// connTransfer streams `store` and `load` content over the connection.
type connTransfer struct {
	r *bufio.Reader
	w io.Writer
}

func (t *connTransfer) Source(from string) (io.ReadCloser, uint64, error) {
	if err := protocol.WriteResponse(t.w, protocol.Ready); err != nil {
		return nil, 0, err
	}
	size, err := protocol.ReadLength(t.r)
	if err != nil {
		return nil, 0, err
	}
	return io.NopCloser(io.LimitReader(t.r, int64(size))), size, nil
}

func (t *connTransfer) Sink(to, basename string, size uint64) (io.WriteCloser, error) {
	if err := protocol.WriteResponse(t.w, protocol.Ready); err != nil {
		return nil, err
	}
	if err := protocol.WriteLength(t.w, size); err != nil {
		return nil, err
	}
	return nopWriteCloser{t.w}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
