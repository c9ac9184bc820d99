package filesystem

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/weberc2/flatfs/pkg/region"
	"github.com/weberc2/flatfs/pkg/superblock"
	. "github.com/weberc2/flatfs/pkg/types"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newFS(t *testing.T, g superblock.Geometry) *FileSystem {
	t.Helper()
	r := region.New(make([]byte, g.ImageSize()))
	if err := Format(r, g); err != nil {
		t.Fatalf("Format(): unexpected err: %v", err)
	}
	fs, err := New(r, discard)
	if err != nil {
		t.Fatalf("New(): unexpected err: %v", err)
	}
	return fs
}

var small = superblock.Geometry{BlockCount: 64, InodeCount: 32}

func listing(t *testing.T, fs *FileSystem, path string) []string {
	t.Helper()
	entries, err := fs.ListDir(path)
	if err != nil {
		t.Fatalf("ListDir(%s): unexpected err: %v", path, err)
	}
	out := make([]string, len(entries))
	for i, entry := range entries {
		out[i] = entry.String()
	}
	return out
}

func TestRootResolves(t *testing.T) {
	fs := newFS(t, small)
	ino, err := fs.GetFDEInodeID("/")
	if err != nil {
		t.Fatalf("GetFDEInodeID(/): unexpected err: %v", err)
	}
	if ino != InoRoot {
		t.Fatalf("GetFDEInodeID(/): wanted `%d`; found `%d`", InoRoot, ino)
	}
	if !fs.ExistsDir("/") {
		t.Fatal("ExistsDir(/): wanted `true`; found `false`")
	}
	if found := listing(t, fs, "/"); len(found) != 0 {
		t.Fatalf("ListDir(/): wanted empty; found `%v`", found)
	}
	stats := fs.Stat()
	if stats.FreeInodes != small.InodeCount-1 || stats.FreeBlocks != small.BlockCount {
		t.Fatalf("Stat(): unexpected fresh image counts `%+v`", stats)
	}
}

func TestSplitPath(t *testing.T) {
	type testCase struct {
		path   string
		wanted []string
		err    error
	}

	for _, testCase := range []testCase{
		{"/", nil, nil},
		{"/a", []string{"a"}, nil},
		{"/a/b.txt", []string{"a", "b.txt"}, nil},
		{"", nil, ErrInvalidPath},
		{"a/b", nil, ErrInvalidPath},
		{"/a/", nil, ErrInvalidPath},
		{"/a//b", nil, ErrInvalidPath},
		{"/a/../b", nil, ErrInvalidPath},
		{"/" + string(bytes.Repeat([]byte{'x'}, MaxLinkNameLen+1)), nil, ErrNameTooLong},
	} {
		t.Run(testCase.path, func(t *testing.T) {
			found, err := SplitPath(testCase.path)
			if !errors.Is(err, testCase.err) {
				t.Fatalf("SplitPath(): wanted err `%v`; found `%v`", testCase.err, err)
			}
			if !reflect.DeepEqual(found, testCase.wanted) {
				t.Fatalf("SplitPath(): wanted `%v`; found `%v`", testCase.wanted, found)
			}
		})
	}
}

func TestCreateParents(t *testing.T) {
	fs := newFS(t, small)
	if err := fs.CreateFile("/a/b/c"); err != nil {
		t.Fatalf("CreateFile(): unexpected err: %v", err)
	}
	for _, dir := range []string{"/a", "/a/b"} {
		if !fs.ExistsDir(dir) {
			t.Fatalf("ExistsDir(%s): wanted `true`; found `false`", dir)
		}
	}
	if !fs.ExistsFile("/a/b/c") || fs.ExistsDir("/a/b/c") {
		t.Fatal("/a/b/c: wanted a file")
	}
}

func TestCreateErrorsHaveNoSideEffects(t *testing.T) {
	type testCase struct {
		name   string
		path   string
		isDir  bool
		wanted error
	}

	for _, testCase := range []testCase{
		{"existing-file", "/dir/file", false, ErrExists},
		{"existing-file-as-dir", "/dir/file", true, ErrExists},
		{"existing-dir", "/dir", true, ErrExists},
		{"root", "/", true, ErrExists},
		{"through-file", "/dir/file/x", false, ErrNotADirectory},
		{"through-file-deep", "/dir/file/x/y", true, ErrNotADirectory},
		{"bad-path", "dir/x", false, ErrInvalidPath},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			fs := newFS(t, small)
			if err := fs.CreateFile("/dir/file"); err != nil {
				t.Fatal(err)
			}
			before := fs.Stat()
			dirSize := fs.inodes.Get(InoRoot).FileSize()

			err := fs.CreateFDE(testCase.path, testCase.isDir)
			if !errors.Is(err, testCase.wanted) {
				t.Fatalf("CreateFDE(): wanted `%v`; found `%v`", testCase.wanted, err)
			}
			if after := fs.Stat(); after != before {
				t.Fatalf("Stat(): wanted `%+v`; found `%+v`", before, after)
			}
			if found := fs.inodes.Get(InoRoot).FileSize(); found != dirSize {
				t.Fatalf("root FileSize(): wanted `%d`; found `%d`", dirSize, found)
			}
		})
	}
}

func TestCreateOutOfInodes(t *testing.T) {
	fs := newFS(t, superblock.Geometry{BlockCount: 64, InodeCount: 8})
	if err := fs.CreateFile("/a/b/c/d/e/f"); err != nil {
		t.Fatal(err)
	}
	before := fs.Stat()
	// one inode left; two are needed
	if err := fs.CreateFile("/x/y"); !errors.Is(err, ErrOutOfInodes) {
		t.Fatalf("CreateFile(): wanted `%v`; found `%v`", ErrOutOfInodes, err)
	}
	if after := fs.Stat(); after != before {
		t.Fatalf("Stat(): wanted `%+v`; found `%+v`", before, after)
	}
	if fs.ExistsFDE("/x") {
		t.Fatal("ExistsFDE(/x): wanted `false`; found `true`")
	}
}

func TestCreateOutOfBlocks(t *testing.T) {
	fs := newFS(t, superblock.Geometry{BlockCount: 16, InodeCount: 16})
	if err := fs.CreateFile("/f"); err != nil {
		t.Fatal(err)
	}
	// root holds one block; leave exactly two free
	if _, err := fs.WriteContent("/f", 0, make([]byte, 13*BlockSize)); err != nil {
		t.Fatal(err)
	}
	if err := fs.CreateFile("/a/b/c"); err != nil {
		t.Fatalf("CreateFile(/a/b/c): unexpected err: %v", err)
	}
	if free := fs.Stat().FreeBlocks; free != 0 {
		t.Fatalf("Stat().FreeBlocks: wanted `0`; found `%d`", free)
	}

	before := fs.Stat()
	if err := fs.CreateFile("/x/y/z"); !errors.Is(err, ErrOutOfBlocks) {
		t.Fatalf("CreateFile(/x/y/z): wanted `%v`; found `%v`", ErrOutOfBlocks, err)
	}
	if after := fs.Stat(); after != before {
		t.Fatalf("Stat(): wanted `%+v`; found `%+v`", before, after)
	}
	if fs.ExistsFDE("/x") {
		t.Fatal("ExistsFDE(/x): wanted `false`; found `true`")
	}

	// a leaf needs no block when its parent has room
	if err := fs.CreateFile("/a/b/d"); err != nil {
		t.Fatalf("CreateFile(/a/b/d): unexpected err: %v", err)
	}
}

func TestResolveThroughFile(t *testing.T) {
	fs := newFS(t, small)
	if err := fs.CreateFile("/file"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.GetFDEInodeID("/file/x"); !errors.Is(err, ErrNotADirectory) {
		t.Fatalf("GetFDEInodeID(): wanted `%v`; found `%v`", ErrNotADirectory, err)
	}
	if _, err := fs.GetFDEInodeID("/nope/x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetFDEInodeID(): wanted `%v`; found `%v`", ErrNotFound, err)
	}
	if fs.ExistsFDE("/file/x") {
		t.Fatal("ExistsFDE(/file/x): wanted `false`; found `true`")
	}
}

func TestRecursiveDelete(t *testing.T) {
	fs := newFS(t, small)
	before := fs.Stat()

	if err := fs.CreateFile("/a/b/c"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.WriteContent("/a/b/c", 0, make([]byte, 2*BlockSize+1)); err != nil {
		t.Fatal(err)
	}
	inos := make([]Ino, 0, 3)
	for _, path := range []string{"/a", "/a/b", "/a/b/c"} {
		ino, err := fs.GetFDEInodeID(path)
		if err != nil {
			t.Fatal(err)
		}
		inos = append(inos, ino)
	}

	if err := fs.DeleteDir("/a"); err != nil {
		t.Fatalf("DeleteDir(): unexpected err: %v", err)
	}

	for _, path := range []string{"/a", "/a/b", "/a/b/c"} {
		if fs.ExistsFDE(path) {
			t.Fatalf("ExistsFDE(%s): wanted `false`; found `true`", path)
		}
	}
	for _, ino := range inos {
		if fs.inodes.InUse(ino) {
			t.Fatalf("inode `%d`: wanted free; found in use", ino)
		}
	}

	// the root keeps the one block holding its tombstone
	after := fs.Stat()
	if after.FreeInodes != before.FreeInodes {
		t.Fatalf("FreeInodes: wanted `%d`; found `%d`", before.FreeInodes, after.FreeInodes)
	}
	if after.FreeBlocks != before.FreeBlocks-1 {
		t.Fatalf("FreeBlocks: wanted `%d`; found `%d`", before.FreeBlocks-1, after.FreeBlocks)
	}
}

func TestDeleteErrors(t *testing.T) {
	type testCase struct {
		name   string
		path   string
		isDir  bool
		wanted error
	}

	for _, testCase := range []testCase{
		{"root", "/", true, ErrRootDeletion},
		{"missing", "/missing", false, ErrNotFound},
		{"file-as-dir", "/dir/file", true, ErrNotADirectory},
		{"dir-as-file", "/dir", false, ErrIsADirectory},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			fs := newFS(t, small)
			if err := fs.CreateFile("/dir/file"); err != nil {
				t.Fatal(err)
			}
			err := fs.DeleteFDE(testCase.path, testCase.isDir)
			if !errors.Is(err, testCase.wanted) {
				t.Fatalf("DeleteFDE(): wanted `%v`; found `%v`", testCase.wanted, err)
			}
			if !fs.ExistsFile("/dir/file") {
				t.Fatal("ExistsFile(/dir/file): wanted `true` after failed delete")
			}
		})
	}
}

func TestListOrderAfterTombstoneReuse(t *testing.T) {
	fs := newFS(t, small)
	for _, path := range []string{"/one", "/two", "/three"} {
		if err := fs.CreateFile(path); err != nil {
			t.Fatal(err)
		}
	}
	if err := fs.DeleteFile("/two"); err != nil {
		t.Fatal(err)
	}
	if err := fs.CreateDir("/four"); err != nil {
		t.Fatal(err)
	}

	wanted := []string{"one", "four/", "three"}
	if found := listing(t, fs, "/"); !reflect.DeepEqual(found, wanted) {
		t.Fatalf("ListDir(/): wanted `%v`; found `%v`", wanted, found)
	}
	if _, err := fs.ListDir("/one"); !errors.Is(err, ErrNotADirectory) {
		t.Fatalf("ListDir(/one): wanted `%v`; found `%v`", ErrNotADirectory, err)
	}
}

func TestContent(t *testing.T) {
	fs := newFS(t, small)
	if err := fs.CreateFile("/f"); err != nil {
		t.Fatal(err)
	}
	wanted := bytes.Repeat([]byte("0123456789"), 2000)
	if n, err := fs.WriteContent("/f", 0, wanted); err != nil || n != uint64(len(wanted)) {
		t.Fatalf("WriteContent(): wanted `%d`; found `%d` (err: %v)", len(wanted), n, err)
	}
	if size, err := fs.FileSize("/f"); err != nil || size != uint64(len(wanted)) {
		t.Fatalf("FileSize(): wanted `%d`; found `%d` (err: %v)", len(wanted), size, err)
	}

	found := make([]byte, len(wanted))
	if _, err := fs.ReadContent("/f", 0, found); err != nil {
		t.Fatalf("ReadContent(): unexpected err: %v", err)
	}
	if !bytes.Equal(found, wanted) {
		t.Fatal("ReadContent(): content differs from what was written")
	}

	if _, err := fs.ReadContent("/f", 1, found); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("ReadContent(): wanted `%v`; found `%v`", ErrOutOfRange, err)
	}
	if err := fs.CreateDir("/d"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.WriteContent("/d", 0, []byte("x")); !errors.Is(err, ErrIsADirectory) {
		t.Fatalf("WriteContent(/d): wanted `%v`; found `%v`", ErrIsADirectory, err)
	}
}

func TestWriteOutOfBlocks(t *testing.T) {
	fs := newFS(t, superblock.Geometry{BlockCount: 8, InodeCount: 8})
	if err := fs.CreateFile("/f"); err != nil {
		t.Fatal(err)
	}
	// the root directory holds one block
	if _, err := fs.WriteContent("/f", 0, make([]byte, 7*BlockSize)); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.WriteContent("/f", 7*BlockSize, []byte{1}); !errors.Is(err, ErrOutOfBlocks) {
		t.Fatalf("WriteContent(): wanted `%v`; found `%v`", ErrOutOfBlocks, err)
	}
	if size, _ := fs.FileSize("/f"); size != 7*BlockSize {
		t.Fatalf("FileSize(): wanted `%d`; found `%d`", 7*BlockSize, size)
	}
}

func TestCreateFileSize(t *testing.T) {
	fs := newFS(t, superblock.Geometry{BlockCount: 8, InodeCount: 8})
	before := fs.Stat()
	// root block + one block for /d's link + 7 content blocks
	if err := fs.CreateFileSize("/d/f", 7*BlockSize); !errors.Is(err, ErrOutOfBlocks) {
		t.Fatalf("CreateFileSize(): wanted `%v`; found `%v`", ErrOutOfBlocks, err)
	}
	if after := fs.Stat(); after != before {
		t.Fatalf("Stat(): wanted `%+v`; found `%+v`", before, after)
	}
	if fs.ExistsFDE("/d") {
		t.Fatal("ExistsFDE(/d): wanted `false`; found `true`")
	}

	if err := fs.CreateFileSize("/d/f", 6*BlockSize); err != nil {
		t.Fatalf("CreateFileSize(): unexpected err: %v", err)
	}
	if size, _ := fs.FileSize("/d/f"); size != 6*BlockSize {
		t.Fatalf("FileSize(): wanted `%d`; found `%d`", 6*BlockSize, size)
	}
	if free := fs.Stat().FreeBlocks; free != 0 {
		t.Fatalf("Stat().FreeBlocks: wanted `0`; found `%d`", free)
	}
}

func TestExtendContent(t *testing.T) {
	fs := newFS(t, superblock.Geometry{BlockCount: 8, InodeCount: 8})
	if err := fs.CreateFile("/f"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.WriteContent("/f", 0, []byte("head")); err != nil {
		t.Fatal(err)
	}
	before := fs.Stat()
	if err := fs.ExtendContent("/f", 8*BlockSize); !errors.Is(err, ErrOutOfBlocks) {
		t.Fatalf("ExtendContent(): wanted `%v`; found `%v`", ErrOutOfBlocks, err)
	}
	if after := fs.Stat(); after != before {
		t.Fatalf("Stat(): wanted `%+v`; found `%+v`", before, after)
	}

	if err := fs.ExtendContent("/f", 2*BlockSize); err != nil {
		t.Fatalf("ExtendContent(): unexpected err: %v", err)
	}
	found := make([]byte, 2*BlockSize)
	if _, err := fs.ReadContent("/f", 0, found); err != nil {
		t.Fatal(err)
	}
	wanted := append([]byte("head"), make([]byte, 2*BlockSize-4)...)
	if !bytes.Equal(found, wanted) {
		t.Fatal("ReadContent(): extended content is not zero-filled")
	}
	if err := fs.ExtendContent("/", BlockSize); !errors.Is(err, ErrIsADirectory) {
		t.Fatalf("ExtendContent(/): wanted `%v`; found `%v`", ErrIsADirectory, err)
	}
}

func TestNewRejectsCorrupt(t *testing.T) {
	type testCase struct {
		name  string
		setup func(region.Region)
	}

	for _, testCase := range []testCase{
		{"unformatted", func(r region.Region) { r.Zero() }},
		{"root-missing", func(r region.Region) {
			r.PutU8(small.InodeBitmapOffset(), 0)
		}},
		{"bad-counter", func(r region.Region) {
			r.PutU64(8, small.BlockCount+1)
		}},
		{"bitmap-disagrees-with-counter", func(r region.Region) {
			r.PutU8(small.BlockBitmapOffset(), 1)
		}},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			r := region.New(make([]byte, small.ImageSize()))
			if err := Format(r, small); err != nil {
				t.Fatal(err)
			}
			testCase.setup(r)
			if _, err := New(r, discard); !errors.Is(err, ErrCorrupt) {
				t.Fatalf("New(): wanted `%v`; found `%v`", ErrCorrupt, err)
			}
		})
	}
}

func TestOpenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	fs, err := Open(path, small, discard)
	if err != nil {
		t.Fatalf("Open(): unexpected err: %v", err)
	}
	if err := fs.CreateFile("/dir/file"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.WriteContent("/dir/file", 0, []byte("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close(): unexpected err: %v", err)
	}

	fs, err = Open(path, superblock.Geometry{}, discard)
	if err != nil {
		t.Fatalf("Open(): unexpected err reopening: %v", err)
	}
	defer fs.Close()
	found := make([]byte, len("persisted"))
	if _, err := fs.ReadContent("/dir/file", 0, found); err != nil {
		t.Fatalf("ReadContent(): unexpected err: %v", err)
	}
	if string(found) != "persisted" {
		t.Fatalf("ReadContent(): wanted `persisted`; found `%s`", found)
	}
}
