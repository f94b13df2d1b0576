package core

import "testing"

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"v1.12.0", "1.12.0"},
		{"1.12.0", "1.12.0"},
		{"devel-ad721b3", "devel-ad721b3"},
		{"devel-ad721b3-dirty", "devel-ad721b3-dirty"},
		{"devel", "devel"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := FormatVersion(tt.input); got != tt.want {
			t.Errorf("FormatVersion(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsPseudoVersion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"pseudo-version without tag", "v0.0.0-20260217105831-82903d1d8810", true},
		{"pseudo-version after tag", "v1.12.1-0.20260217105831-82903d1d8810", true},
		{"pseudo-version with build metadata", "v0.0.0-20260217105831-82903d1d8810+dirty", true},
		{"tagged release", "v1.12.0", false},
		{"prerelease tag", "v1.12.0-rc1", false},
		{"uppercase hash", "v0.0.0-20260217105831-82903D1D8810", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPseudoVersion(tt.input); got != tt.want {
				t.Errorf("isPseudoVersion(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestVersionIsResolved(t *testing.T) {
	if Version == "" {
		t.Error("expected Version to be set")
	}
}
