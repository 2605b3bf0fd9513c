package version

import (
	"testing"

	"github.com/fatih/color"
)

func withVersion(t *testing.T, v, commit, date string) {
	t.Helper()
	origV, origC, origD := Version, GitCommit, BuildDate
	Version, GitCommit, BuildDate = v, commit, date
	t.Cleanup(func() { Version, GitCommit, BuildDate = origV, origC, origD })
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		version, commit, date string
		want                  string
	}{
		{"1.2.3", "", "", "sierra2mlir 1.2.3"},
		{"1.2.3", "abc123", "", "sierra2mlir 1.2.3 (abc123)"},
		{"0.1.0-dev", "abc123", "2024-01-15", "sierra2mlir 0.1.0-dev (abc123) built 2024-01-15"},
	}
	for _, tt := range tests {
		withVersion(t, tt.version, tt.commit, tt.date)
		if got := Describe(false); got != tt.want {
			t.Errorf("Describe() = %q, want %q", got, tt.want)
		}
	}
}

func TestColored_NoColor(t *testing.T) {
	orig := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = orig })

	for _, v := range []string{"1.2.3", "0.1.0-dev", "2.0.0+meta", "weird"} {
		withVersion(t, v, "", "")
		if got := Colored(); got != v {
			t.Errorf("Colored() = %q, want %q without colors", got, v)
		}
	}
}

func TestColored_Components(t *testing.T) {
	orig := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = orig })

	withVersion(t, "4.5.6-rc1", "", "")
	got := Colored()
	if got == "4.5.6-rc1" {
		t.Fatal("expected escape sequences with colors enabled")
	}
	want := majorColor.Sprint("4") + "." + minorColor.Sprint("5") + "." + patchColor.Sprint("6") + "-rc1"
	if got != want {
		t.Fatalf("Colored() = %q, want %q", got, want)
	}
}
