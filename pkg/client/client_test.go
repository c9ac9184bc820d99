package client

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weberc2/flatfs/pkg/console"
	"github.com/weberc2/flatfs/pkg/filesystem"
	"github.com/weberc2/flatfs/pkg/region"
	"github.com/weberc2/flatfs/pkg/server"
	"github.com/weberc2/flatfs/pkg/superblock"
)

func serve(t *testing.T) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := superblock.Geometry{BlockCount: 64, InodeCount: 32}
	r := region.New(make([]byte, g.ImageSize()))
	require.NoError(t, filesystem.Format(r, g))
	fs, err := filesystem.New(r, logger)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.New(fs, logger).Serve(ctx, l)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l.Addr().String()
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	content := []byte(strings.Repeat("round trip through the server\n", 1000))
	input := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(input, content, 0644))
	loaded := filepath.Join(dir, "loaded")
	require.NoError(t, os.Mkdir(loaded, 0755))

	c, err := Dial(context.Background(), serve(t))
	require.NoError(t, err)
	defer c.Close()

	script := strings.Join([]string{
		"mkdir /docs",
		"",
		"store " + input + " /docs",
		"lsdir /docs",
		"load /docs/input.txt " + loaded,
		"store " + filepath.Join(dir, "missing") + " /docs",
		"exit",
		"mkdir /unreached",
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, c.Run(
		context.Background(),
		strings.NewReader(script),
		&out,
		console.HostTransfer{},
		"",
	))
	require.Equal(
		t,
		"Ok\nOk\n/docs: input.txt\nOk\nCan't open from_file\nBye\n",
		out.String(),
	)

	found, err := os.ReadFile(filepath.Join(loaded, "input.txt"))
	require.NoError(t, err)
	require.Equal(t, content, found)
}
