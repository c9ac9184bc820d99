package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/weberc2/flatfs/pkg/config"
	"github.com/weberc2/flatfs/pkg/filesystem"
	"github.com/weberc2/flatfs/pkg/snapshot"
)

type env struct {
	config *config.Config
	logger *slog.Logger
}

func loadEnv(ctx *cli.Context) (*env, error) {
	c, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("image") {
		c.ImagePath = ctx.String("image")
	}
	if ctx.IsSet("addr") {
		c.Addr = ctx.String("addr")
	}
	if ctx.IsSet("log-level") {
		c.LogLevel = ctx.String("log-level")
	}
	if ctx.IsSet("blocks") {
		c.BlockCount = ctx.Uint64("blocks")
	}
	if ctx.IsSet("inodes") {
		c.InodeCount = ctx.Uint64("inodes")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	return &env{
		config: c,
		logger: slog.New(slog.NewTextHandler(
			os.Stderr,
			&slog.HandlerOptions{Level: level},
		)),
	}, nil
}

func withEnv(f func(*cli.Context, *env) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		e, err := loadEnv(ctx)
		if err != nil {
			return err
		}
		return f(ctx, e)
	}
}

func withFS(
	f func(*cli.Context, *env, *filesystem.FileSystem) error,
) cli.ActionFunc {
	return withEnv(func(ctx *cli.Context, e *env) error {
		fs, err := filesystem.Open(
			e.config.ImagePath,
			e.config.Geometry(),
			e.logger,
		)
		if err != nil {
			return err
		}
		err = f(ctx, e, fs)
		if closeErr := fs.Close(); err == nil {
			err = closeErr
		}
		return err
	})
}

func withObjectStore(
	f func(*cli.Context, *env, snapshot.ObjectStore) error,
) cli.ActionFunc {
	return withEnv(func(ctx *cli.Context, e *env) error {
		if err := e.config.ValidateSnapshot(); err != nil {
			return err
		}
		s3, err := snapshot.NewS3ObjectStore(
			e.config.Snapshot.Region,
			e.config.Snapshot.Endpoint,
		)
		if err != nil {
			return err
		}
		var store snapshot.ObjectStore = s3
		if e.config.Snapshot.Compress {
			store = &snapshot.GzipObjectStore{ObjectStore: s3}
		}
		return f(ctx, e, store)
	})
}

// usage reports a wrong argument count; main exits non-zero with it.
func usage(ctx *cli.Context) error {
	return fmt.Errorf(
		"usage: %s %s",
		ctx.Command.HelpName,
		ctx.Command.ArgsUsage,
	)
}
