package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestShort(t *testing.T) {
	if got := Short(); got != Version {
		t.Errorf("Short() = %q, want %q", got, Version)
	}
}

func TestInfo(t *testing.T) {
	orig := Commit
	defer func() { Commit = orig }()

	Commit = "0123456789abcdef"
	got := Info()
	if !strings.Contains(got, "commit: 0123456,") {
		t.Errorf("Info() = %q, want shortened commit", got)
	}
	if !strings.Contains(got, runtime.Version()) {
		t.Errorf("Info() = %q, want go version", got)
	}
}

func TestFull(t *testing.T) {
	got := Full()
	for _, want := range []string{"cloudtrail-sentry " + Version, "Commit:", runtime.GOOS + "/" + runtime.GOARCH} {
		if !strings.Contains(got, want) {
			t.Errorf("Full() missing %q:\n%s", want, got)
		}
	}
}
