package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := app().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func app() *cli.App {
	return &cli.App{
		Name:  "flatfs",
		Usage: "a filesystem inside a single image file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "image",
				Usage: "path to the image file (FLATFS_IMAGE_PATH)",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "server address (FLATFS_ADDR)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (FLATFS_LOG_LEVEL)",
			},
		},
		Commands: []*cli.Command{{
			Name:  "format",
			Usage: "create and format a new image",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "blocks",
					Usage: "number of blocks; a multiple of 8 (FLATFS_BLOCK_COUNT)",
				},
				&cli.Uint64Flag{
					Name:  "inodes",
					Usage: "number of inodes; a multiple of 8 (FLATFS_INODE_COUNT)",
				},
				&cli.BoolFlag{
					Name:  "force",
					Usage: "replace an existing image",
				},
			},
			Action: withEnv(format),
		}, {
			Name:   "stat",
			Usage:  "print image usage as JSON",
			Action: withFS(stat),
		}, {
			Name:   "shell",
			Usage:  "run commands against the image interactively",
			Action: withFS(shell),
		}, {
			Name:      "exec",
			Usage:     "run one command against the image",
			ArgsUsage: "COMMAND [ARGS...]",
			Action:    withFS(execute),
		}, {
			Name:   "serve",
			Usage:  "serve the image over TCP",
			Action: withFS(serve),
		}, {
			Name:   "connect",
			Usage:  "run commands against a server interactively",
			Action: withEnv(connect),
		}, {
			Name:  "snapshot",
			Usage: "back up and restore images with an object store",
			Subcommands: []*cli.Command{{
				Name:      "push",
				Usage:     "upload the image; it must not be open for writing",
				ArgsUsage: "[KEY]",
				Action:    withObjectStore(push),
			}, {
				Name:      "pull",
				Usage:     "download a snapshot to the image path",
				ArgsUsage: "KEY",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "replace an existing image",
					},
				},
				Action: withObjectStore(pull),
			}, {
				Name:   "list",
				Usage:  "list snapshots under the configured prefix",
				Action: withObjectStore(list),
			}},
		}},
	}
}
