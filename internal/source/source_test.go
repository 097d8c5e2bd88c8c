package source

import "testing"

func TestShort(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0123456789abcdef0123456789abcdef01234567", "0123456"},
		{"abc1234", "abc1234"},
		{"ab", "ab"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Short(tt.in); got != tt.want {
			t.Errorf("Short(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewGitHubSource_DefaultBranch(t *testing.T) {
	s := NewGitHubSource("acme", "site", "", "t", false)
	if s.branch != "main" {
		t.Errorf("empty branch should default to main, got %q", s.branch)
	}
}
