package sanitize

import (
	"strings"
	"testing"
)

func TestStripHTML(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Ada Lovelace", "Ada Lovelace"},
		{"<b>Ada</b>", "Ada"},
		{"&lt;script&gt;alert(1)&lt;/script&gt;Ada", "alert(1)Ada"},
		{"  spaced  ", "spaced"},
	}
	for _, tc := range cases {
		if got := StripHTML(tc.in); got != tc.want {
			t.Fatalf("StripHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNameCollapsesWhitespace(t *testing.T) {
	if got := Name(" Ada \n\t Lovelace "); got != "Ada Lovelace" {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestNameCapsLength(t *testing.T) {
	got := Name(strings.Repeat("é", MaxNameLength+20))
	if n := len([]rune(got)); n != MaxNameLength {
		t.Fatalf("expected %d runes, got %d", MaxNameLength, n)
	}
}
