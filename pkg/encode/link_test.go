package encode

import (
	"strings"
	"testing"

	. "github.com/weberc2/flatfs/pkg/types"
)

func TestLinkLayout(t *testing.T) {
	var p [LinkSize]byte
	EncodeLink(&Link{Alive: true, Name: "abc", Ino: 0x0102}, &p)

	if p[0] != 1 {
		t.Fatalf("alive byte: wanted `1`; found `%d`", p[0])
	}
	if string(p[1:4]) != "abc" || p[4] != 0 {
		t.Fatalf("name: wanted `abc\\x00`; found `%q`", p[1:5])
	}
	if p[64] != 0x02 || p[65] != 0x01 {
		t.Fatalf(
			"ino: wanted little-endian `0x0102` at 64; found `%x`",
			p[64:72],
		)
	}
}

func TestLinkDecode(t *testing.T) {
	type testCase struct {
		name string
		link Link
	}

	for _, testCase := range []testCase{
		{"tombstone", Link{Alive: false, Name: "dead", Ino: 7}},
		{"empty-name", Link{Alive: true, Name: "", Ino: 1}},
		{"max-name", Link{
			Alive: true,
			Name:  strings.Repeat("x", MaxLinkNameLen),
			Ino:   1 << 40,
		}},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			var p [LinkSize]byte
			EncodeLink(&testCase.link, &p)
			var found Link
			DecodeLink(&found, &p)
			if found != testCase.link {
				t.Fatalf(
					"DecodeLink(): wanted `%+v`; found `%+v`",
					testCase.link,
					found,
				)
			}
		})
	}
}

func TestEncodeLinkNameTooLong(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("EncodeLink(): expected panic for oversized name")
		}
	}()
	var p [LinkSize]byte
	EncodeLink(&Link{Name: strings.Repeat("x", MaxLinkNameLen+1)}, &p)
}
