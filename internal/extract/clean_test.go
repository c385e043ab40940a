package extract

import "testing"

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "a  b\n\n\tc", "a b c"},
		{"joins hyphenated line break", "infor-\nmation retrieval", "information retrieval"},
		{"joins hyphenated break with indent", "infor- \n   mation", "information"},
		{"keeps inline hyphen", "well-known fact", "well-known fact"},
		{"fixes url scheme gap", "see https:// example.com/docs", "see https://example.com/docs"},
		{"fixes http scheme gap", "http:// a.b", "http://a.b"},
		{"removes space before punctuation", "Hello , world ! Done .", "Hello, world! Done."},
		{"trims", "  padded  ", "padded"},
		{"empty", "", ""},
		{"keeps separate words", "the quick brown fox", "the quick brown fox"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"keeps line breaks", "name: Alice\nage: 30\n", "name: Alice\nage: 30"},
		{"collapses blank runs", "a\n\n\n\nb", "a\n\nb"},
		{"drops leading blanks", "\n\n a", "a"},
		{"cleans within lines", "x\t\ty ,\r\nz  .", "x y,\nz."},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanLines(tt.in); got != tt.want {
				t.Errorf("CleanLines(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
