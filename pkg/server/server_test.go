package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weberc2/flatfs/pkg/client"
	"github.com/weberc2/flatfs/pkg/console"
	"github.com/weberc2/flatfs/pkg/filesystem"
	"github.com/weberc2/flatfs/pkg/protocol"
	"github.com/weberc2/flatfs/pkg/region"
	"github.com/weberc2/flatfs/pkg/superblock"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func start(t *testing.T) (string, *filesystem.FileSystem) {
	t.Helper()
	g := superblock.Geometry{BlockCount: 64, InodeCount: 32}
	r := region.New(make([]byte, g.ImageSize()))
	require.NoError(t, filesystem.Format(r, g))
	fs, err := filesystem.New(r, discard)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(fs, discard).Serve(ctx, l) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve(): did not stop after cancellation")
		}
	})
	return l.Addr().String(), fs
}

func dial(t *testing.T, addr string) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCommandsOverNetwork(t *testing.T) {
	addr, _ := start(t)
	c := dial(t, addr)
	require.True(t, strings.HasPrefix(c.Greeting, "flatfs session "))

	for _, step := range []struct{ line, wanted string }{
		{"mkdir /a", "Ok"},
		{"mkfile /a/f", "Ok"},
		{"lsdir /a", "/a: f"},
		{"rmdir /", "You can't remove root directory"},
		{"bogus", "Unknown command\n" + console.Help},
	} {
		found, err := c.Do(step.line)
		require.NoError(t, err)
		require.Equal(t, step.wanted, found, "line: %q", step.line)
	}

	found, err := c.Do("exit")
	require.NoError(t, err)
	require.Equal(t, Bye, found)
}

func TestStoreLoadOverNetwork(t *testing.T) {
	addr, fs := start(t)
	c := dial(t, addr)
	content := bytes.Repeat([]byte{0, 1, 2, 3, '\n'}, 40000)

	response, err := c.Store(
		"store /host/data.bin /data.bin",
		bytes.NewReader(content),
		uint64(len(content)),
	)
	require.NoError(t, err)
	require.Equal(t, "Ok", response)

	size, err := fs.FileSize("/data.bin")
	require.NoError(t, err)
	require.Equal(t, uint64(len(content)), size)

	var loaded bytes.Buffer
	response, err = c.Load(
		"load /data.bin /host/copy.bin",
		func(size uint64) (io.WriteCloser, error) {
			require.Equal(t, uint64(len(content)), size)
			return nopCloser{&loaded}, nil
		},
	)
	require.NoError(t, err)
	require.Equal(t, "Ok", response)
	require.Equal(t, content, loaded.Bytes())

	// the session stays usable after binary exchanges
	response, err = c.Do("lsdir /")
	require.NoError(t, err)
	require.Equal(t, "/: data.bin", response)
}

func TestStoreRejectedDrainsContent(t *testing.T) {
	addr, _ := start(t)
	c := dial(t, addr)

	_, err := c.Do("mkfile /f")
	require.NoError(t, err)

	// /f/x can't be created; the content must still be consumed
	response, err := c.Store("store /host/x /f/x", strings.NewReader("abc"), 3)
	require.NoError(t, err)
	require.Equal(t, "Can't create file in app filesystem: not a directory", response)

	response, err = c.Load("load /missing /host/x", func(uint64) (io.WriteCloser, error) {
		t.Fatal("open(): called for a rejected load")
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, "Requested file doesn't exist", response)

	response, err = c.Do("lsdir /")
	require.NoError(t, err)
	require.Equal(t, "/: f", response)
}

func TestStoreOutOfSpaceOverNetwork(t *testing.T) {
	addr, fs := start(t)
	c := dial(t, addr)
	before := fs.Stat()

	content := make([]byte, 80*8192)
	response, err := c.Store(
		"store /host/big /dir/big",
		bytes.NewReader(content),
		uint64(len(content)),
	)
	require.NoError(t, err)
	require.Equal(t, "Can't write to app filesystem: out of free blocks", response)

	// the session stays in sync and nothing was created
	response, err = c.Do("lsdir /")
	require.NoError(t, err)
	require.Equal(t, "/: ", response)
	require.False(t, fs.ExistsFDE("/dir"))
	require.Equal(t, before, fs.Stat())
}

func TestRequestTooLong(t *testing.T) {
	addr, _ := start(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	_, err = protocol.ReadResponse(r)
	require.NoError(t, err)

	_, err = conn.Write([]byte(strings.Repeat("x", protocol.MaxRequestLen+10) + "\n"))
	require.NoError(t, err)
	response, err := protocol.ReadResponse(r)
	require.NoError(t, err)
	require.Equal(t, "Request too long", response)

	// the session continues with the next line
	require.NoError(t, protocol.WriteRequest(conn, "lsdir /"))
	response, err = protocol.ReadResponse(r)
	require.NoError(t, err)
	require.Equal(t, "/: ", response)
}

func TestConnectionsAreSequential(t *testing.T) {
	addr, _ := start(t)
	first := dial(t, addr)
	_, err := first.Do("mkdir /first")
	require.NoError(t, err)

	dialed := make(chan *client.Client, 1)
	go func() {
		c, err := client.Dial(context.Background(), addr)
		if err != nil {
			dialed <- nil
			return
		}
		dialed <- c
	}()

	select {
	case <-dialed:
		t.Fatal("Dial(): second connection was served while the first was open")
	case <-time.After(100 * time.Millisecond):
	}

	_, err = first.Do("exit")
	require.NoError(t, err)

	second := <-dialed
	require.NotNil(t, second)
	defer second.Close()
	response, err := second.Do("lsdir /")
	require.NoError(t, err)
	require.Equal(t, "/: first/", response)
}

func TestServeStopsOnCancel(t *testing.T) {
	g := superblock.Geometry{BlockCount: 8, InodeCount: 8}
	r := region.New(make([]byte, g.ImageSize()))
	require.NoError(t, filesystem.Format(r, g))
	fs, err := filesystem.New(r, discard)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(fs, discard).Serve(ctx, l) }()

	// an idle connection must not keep the server alive
	c, err := client.Dial(context.Background(), l.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve(): did not stop after cancellation")
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
