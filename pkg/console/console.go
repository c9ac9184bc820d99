// Package console implements the flatfs command language: one command per
// line, answered with one or more lines of text. The same engine backs the
// local shell and the network server.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/weberc2/flatfs/pkg/filesystem"
	"github.com/weberc2/flatfs/pkg/math"
	. "github.com/weberc2/flatfs/pkg/types"
)

const Help = "Commands:\n" +
	"\texit\n\t\texit app\n" +
	"\thelp\n\t\tshow this message\n" +
	"\tmkfile <filepath>\n\t\tcreate file\n" +
	"\trmfile <filepath>\n\t\tdelete file\n" +
	"\tmkdir <dirpath>\n\t\tcreate directory\n" +
	"\trmdir <dirpath>\n\t\tdelete directory\n" +
	"\tlsdir <dirpath>\n\t\tlist directory\n" +
	"\tstore <from_path> <to_path>\n\t\tstore from outer filesystem to app filesystem\n" +
	"\tload <from_path> <to_path>\n\t\tload to outer filesystem from app filesystem"

const pathPattern = `(/|(?:/[-\w.]+)+)`

var (
	commandRegex = regexp.MustCompile(`^\s*(\w+)(?:\s|$)`)
	singleRegex  = regexp.MustCompile(`^\s*\w+\s+` + pathPattern + `\s*$`)
	doubleRegex  = regexp.MustCompile(
		`^\s*\w+\s+` + pathPattern + `\s+` + pathPattern + `\s*$`,
	)
)

// chunkSize bounds the buffer used to copy content in and out of the image.
const chunkSize = 64 * 1024

type Console struct {
	fs       *filesystem.FileSystem
	transfer Transfer
	logger   *slog.Logger
}

func New(fs *filesystem.FileSystem, transfer Transfer, logger *slog.Logger) *Console {
	return &Console{fs: fs, transfer: transfer, logger: logger}
}

// Command returns the command word of `line`, or "" if there is none.
func Command(line string) string {
	if match := commandRegex.FindStringSubmatch(line); match != nil {
		return match[1]
	}
	return ""
}

// ParseTransfer extracts the two paths of a `store` or `load` line.
func ParseTransfer(line string) (from, to string, ok bool) {
	match := doubleRegex.FindStringSubmatch(line)
	if match == nil {
		return "", "", false
	}
	return match[1], match[2], true
}

func parsePath(line string) (string, bool) {
	match := singleRegex.FindStringSubmatch(line)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// Exec runs one command line, writing its response to `w`. It reports
// whether the command asked to end the session.
func (c *Console) Exec(line string, w io.Writer) bool {
	command := Command(line)
	var (
		response string
		err      error
	)
	switch command {
	case "":
		if strings.TrimSpace(line) == "" {
			return false
		}
		response = "Unknown command\n" + Help
	case "exit":
		if strings.TrimSpace(line) != "exit" {
			response = "Unknown command\n" + Help
			break
		}
		c.logger.Debug("command", "command", command)
		return true
	case "help":
		response = Help
	case "mkfile":
		response, err = c.mkfile(line)
	case "rmfile":
		response, err = c.rmfile(line)
	case "mkdir":
		response, err = c.mkdir(line)
	case "rmdir":
		response, err = c.rmdir(line)
	case "lsdir":
		response, err = c.lsdir(line)
	case "store":
		response, err = c.store(line)
	case "load":
		response, err = c.load(line)
	default:
		response = "Unknown command\n" + Help
	}

	if err != nil {
		c.logger.Info("command failed", "command", command, "err", err)
	} else {
		c.logger.Debug("command", "command", command)
	}
	fmt.Fprintln(w, response)
	return false
}

// Run reads commands from `r` until `exit`, end of input, or `ctx` is done.
// A prompt, if not empty, is written before each command.
func (c *Console) Run(ctx context.Context, r io.Reader, w io.Writer, prompt string) error {
	scanner := bufio.NewScanner(r)
	for {
		if prompt != "" {
			fmt.Fprint(w, prompt)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Exec(scanner.Text(), w) {
			return nil
		}
	}
}

// failure renders a user-facing message along with the underlying cause,
// if it is one of the filesystem's known errors.
func failure(message string, err error) string {
	var cause ConstError
	if errors.As(err, &cause) {
		return message + ": " + string(cause)
	}
	return message
}

func (c *Console) mkfile(line string) (string, error) {
	p, ok := parsePath(line)
	if !ok {
		return "Wrong path format", nil
	}
	if c.fs.ExistsDir(p) {
		return "Already exists directory with the same name", nil
	}
	if c.fs.ExistsFile(p) {
		return "File already exists", nil
	}
	if err := c.fs.CreateFile(p); err != nil {
		return failure("Can't create file", err), err
	}
	return "Ok", nil
}

func (c *Console) rmfile(line string) (string, error) {
	p, ok := parsePath(line)
	if !ok {
		return "Wrong path format", nil
	}
	if !c.fs.ExistsFile(p) {
		return "File doesn't exist", nil
	}
	if err := c.fs.DeleteFile(p); err != nil {
		return failure("Can't delete file", err), err
	}
	return "Ok", nil
}

func (c *Console) mkdir(line string) (string, error) {
	p, ok := parsePath(line)
	if !ok {
		return "Wrong path format", nil
	}
	if c.fs.ExistsDir(p) {
		return "Directory already exists", nil
	}
	if c.fs.ExistsFile(p) {
		return "Already exists file with the same name", nil
	}
	if err := c.fs.CreateDir(p); err != nil {
		return failure("Can't create directory", err), err
	}
	return "Ok", nil
}

func (c *Console) rmdir(line string) (string, error) {
	p, ok := parsePath(line)
	if !ok {
		return "Wrong path format", nil
	}
	if !c.fs.ExistsDir(p) {
		return "Directory doesn't exist", nil
	}
	if p == "/" {
		return "You can't remove root directory", nil
	}
	if err := c.fs.DeleteDir(p); err != nil {
		return failure("Can't delete directory", err), err
	}
	return "Ok", nil
}

func (c *Console) lsdir(line string) (string, error) {
	p, ok := parsePath(line)
	if !ok {
		return "Wrong path format", nil
	}
	if !c.fs.ExistsDir(p) {
		return "Directory doesn't exist", nil
	}
	entries, err := c.fs.ListDir(p)
	if err != nil {
		return failure("Can't list directory", err), err
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.String()
	}
	return p + ": " + strings.Join(names, " "), nil
}

func (c *Console) store(line string) (string, error) {
	from, to, ok := ParseTransfer(line)
	if !ok {
		return "Wrong from_path or to_path format", nil
	}
	if c.fs.ExistsDir(to) {
		to = path.Join(to, path.Base(from))
	}

	source, size, err := c.transfer.Source(from)
	if err != nil {
		if errors.Is(err, ErrIsADirectory) {
			return "You can't store directory. Only storing files is supported", err
		}
		return "Can't open from_file", err
	}
	defer source.Close()

	// reserve the whole file up front so a full image rejects the store
	// before any content is written
	if c.fs.ExistsFile(to) {
		err = c.fs.ExtendContent(to, size)
	} else {
		err = c.fs.CreateFileSize(to, size)
	}
	if err != nil {
		io.Copy(io.Discard, source)
		if errors.Is(err, ErrOutOfBlocks) || errors.Is(err, ErrListFull) {
			return failure("Can't write to app filesystem", err), err
		}
		return failure("Can't create file in app filesystem", err), err
	}

	buf := make([]byte, chunkSize)
	var offset uint64
	for offset < size {
		n, err := io.ReadFull(source, buf[:math.Min(uint64(len(buf)), size-offset)])
		if err != nil {
			return "Can't read from_file", err
		}
		if _, err := c.fs.WriteContent(to, offset, buf[:n]); err != nil {
			io.Copy(io.Discard, source)
			return failure("Can't write to app filesystem", err), err
		}
		offset += uint64(n)
	}
	return "Ok", nil
}

func (c *Console) load(line string) (string, error) {
	from, to, ok := ParseTransfer(line)
	if !ok {
		return "Wrong from_path or to_path format", nil
	}
	if !c.fs.ExistsFile(from) {
		return "Requested file doesn't exist", nil
	}
	size, err := c.fs.FileSize(from)
	if err != nil {
		return failure("Can't read file size", err), err
	}

	sink, err := c.transfer.Sink(to, path.Base(from), size)
	if err != nil {
		return "Can't open to_file", err
	}

	buf := make([]byte, chunkSize)
	var offset uint64
	for offset < size {
		chunk := buf[:math.Min(uint64(len(buf)), size-offset)]
		if _, err := c.fs.ReadContent(from, offset, chunk); err != nil {
			sink.Close()
			return failure("Can't read from app filesystem", err), err
		}
		if _, err := sink.Write(chunk); err != nil {
			sink.Close()
			return "Can't write to_file", err
		}
		offset += uint64(len(chunk))
	}
	if err := sink.Close(); err != nil {
		return "Can't write to_file", err
	}
	return "Ok", nil
}
