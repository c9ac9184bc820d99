package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/weberc2/flatfs/pkg/client"
	"github.com/weberc2/flatfs/pkg/console"
	"github.com/weberc2/flatfs/pkg/filesystem"
	"github.com/weberc2/flatfs/pkg/server"
	"github.com/weberc2/flatfs/pkg/snapshot"
)

func format(ctx *cli.Context, e *env) error {
	if ctx.NArg() != 0 {
		return usage(ctx)
	}
	path := e.config.ImagePath
	if _, err := os.Stat(path); err == nil {
		if !ctx.Bool("force") {
			return fmt.Errorf(
				"formatting `%s`: image exists; use --force to replace it",
				path,
			)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("formatting `%s`: %w", path, err)
		}
	}

	fs, err := filesystem.Open(path, e.config.Geometry(), e.logger)
	if err != nil {
		return err
	}
	return fs.Close()
}

func stat(ctx *cli.Context, e *env, fs *filesystem.FileSystem) error {
	if ctx.NArg() != 0 {
		return usage(ctx)
	}
	data, err := json.MarshalIndent(fs.Stat(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling stats to JSON: %w", err)
	}
	if _, err := fmt.Printf("%s\n", data); err != nil {
		return fmt.Errorf("writing JSON to stdout: %w", err)
	}
	return nil
}

func shell(ctx *cli.Context, e *env, fs *filesystem.FileSystem) error {
	if ctx.NArg() != 0 {
		return usage(ctx)
	}
	err := console.New(fs, console.HostTransfer{}, e.logger).
		Run(ctx.Context, os.Stdin, os.Stdout, "> ")
	if err != nil && ctx.Context.Err() != nil {
		return nil
	}
	return err
}

func execute(ctx *cli.Context, e *env, fs *filesystem.FileSystem) error {
	if ctx.NArg() < 1 {
		return usage(ctx)
	}
	console.New(fs, console.HostTransfer{}, e.logger).
		Exec(strings.Join(ctx.Args().Slice(), " "), os.Stdout)
	return nil
}

func serve(ctx *cli.Context, e *env, fs *filesystem.FileSystem) error {
	if ctx.NArg() != 0 {
		return usage(ctx)
	}
	return server.New(fs, e.logger).ListenAndServe(ctx.Context, e.config.Addr)
}

func connect(ctx *cli.Context, e *env) error {
	if ctx.NArg() != 0 {
		return usage(ctx)
	}
	c, err := client.Dial(ctx.Context, e.config.Addr)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Println(c.Greeting)
	err = c.Run(ctx.Context, os.Stdin, os.Stdout, console.HostTransfer{}, "> ")
	if err != nil && ctx.Context.Err() != nil {
		return nil
	}
	return err
}

func snapshotKey(e *env, name string) string {
	return e.config.Snapshot.Prefix + name
}

func push(ctx *cli.Context, e *env, store snapshot.ObjectStore) error {
	if ctx.NArg() > 1 {
		return usage(ctx)
	}
	name := ctx.Args().First()
	if name == "" {
		name = filepath.Base(e.config.ImagePath)
	}
	return snapshot.Push(
		store,
		e.config.Snapshot.Bucket,
		snapshotKey(e, name),
		e.config.ImagePath,
		e.logger,
	)
}

func pull(ctx *cli.Context, e *env, store snapshot.ObjectStore) error {
	if ctx.NArg() != 1 {
		return usage(ctx)
	}
	return snapshot.Pull(
		store,
		e.config.Snapshot.Bucket,
		snapshotKey(e, ctx.Args().First()),
		e.config.ImagePath,
		ctx.Bool("force"),
		e.logger,
	)
}

func list(ctx *cli.Context, e *env, store snapshot.ObjectStore) error {
	if ctx.NArg() != 0 {
		return usage(ctx)
	}
	keys, err := snapshot.List(
		store,
		e.config.Snapshot.Bucket,
		e.config.Snapshot.Prefix,
	)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Println(strings.TrimPrefix(key, e.config.Snapshot.Prefix))
	}
	return nil
}
