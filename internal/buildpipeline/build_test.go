package buildpipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sierra2mlir/internal/buildpipeline"
)

const goodProgram = `
type felt252 = felt252;
libfunc felt252_const<5> = felt252_const<5>;
felt252_const<5>() -> ([0]);
return([0]);
test::five@0() -> (felt252);
`

const badProgram = `
libfunc foo_bar_123 = foo_bar_123;
return();
test::f@0() -> ();
`

func writeInputs(t *testing.T, files map[string]string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.sierra", "b.sierra", "c.sierra"} {
		body, ok := files[name]
		if !ok {
			continue
		}
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	return dir, paths
}

type recorder struct {
	mu     sync.Mutex
	events []buildpipeline.Event
}

func (r *recorder) OnEvent(ev buildpipeline.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) last(file string) buildpipeline.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out buildpipeline.Event
	for _, ev := range r.events {
		if ev.File == file {
			out = ev
		}
	}
	return out
}

func TestBuild_KeepGoing(t *testing.T) {
	dir, files := writeInputs(t, map[string]string{
		"a.sierra": goodProgram,
		"b.sierra": badProgram,
		"c.sierra": goodProgram,
	})
	outDir := filepath.Join(dir, "out")
	rec := &recorder{}
	res, err := buildpipeline.Build(context.Background(), &buildpipeline.BuildRequest{
		Files:     files,
		OutputDir: outDir,
		Jobs:      2,
		Progress:  rec,
		KeepGoing: true,
	})
	if err == nil || !strings.Contains(err.Error(), "b.sierra") {
		t.Fatalf("expected the failure of b.sierra, got %v", err)
	}
	if res.Failed() != 1 {
		t.Fatalf("expected one failed file, got %d", res.Failed())
	}
	for _, name := range []string{"a.mlir", "c.mlir"} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !strings.Contains(string(data), `"llvm.mlir.constant"`) {
			t.Fatalf("%s does not hold the lowered module", name)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "b.mlir")); !os.IsNotExist(err) {
		t.Fatal("failed input must not produce output")
	}

	got := []buildpipeline.Status{rec.last(files[0]).Status, rec.last(files[1]).Status, rec.last(files[2]).Status}
	want := []buildpipeline.Status{buildpipeline.StatusDone, buildpipeline.StatusError, buildpipeline.StatusDone}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("final statuses mismatch (-want +got):\n%s", diff)
	}
	if ev := rec.last(files[1]); ev.Stage != buildpipeline.StageLower {
		t.Fatalf("failure reported at stage %s, want lower", ev.Stage)
	}
	if _, ok := res.Files[0].Timings.Lookup(buildpipeline.StagePasses); !ok {
		t.Fatal("per-file timings lack the passes stage")
	}
}

func TestBuild_StopsOnFirstError(t *testing.T) {
	_, files := writeInputs(t, map[string]string{"a.sierra": badProgram})
	res, err := buildpipeline.Build(context.Background(), &buildpipeline.BuildRequest{Files: files})
	if err == nil {
		t.Fatal("expected an error")
	}
	if res.Files[0].Output != strings.TrimSuffix(files[0], ".sierra")+".mlir" {
		t.Fatalf("unexpected output path %s", res.Files[0].Output)
	}
}

func TestBuild_DuplicateOutputs(t *testing.T) {
	dir := t.TempDir()
	files := []string{filepath.Join(dir, "x", "p.sierra"), filepath.Join(dir, "y", "p.sierra")}
	_, err := buildpipeline.Build(context.Background(), &buildpipeline.BuildRequest{Files: files, OutputDir: dir})
	if err == nil || !strings.Contains(err.Error(), "both write") {
		t.Fatalf("expected a duplicate output error, got %v", err)
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct{ file, dir, want string }{
		{"src/a.sierra", "", filepath.Join("src", "a.mlir")},
		{"src/a.sierra", "out", filepath.Join("out", "a.mlir")},
		{"noext", "out", filepath.Join("out", "noext.mlir")},
	}
	for _, tt := range tests {
		if got := buildpipeline.OutputPath(tt.file, tt.dir); got != tt.want {
			t.Errorf("OutputPath(%q, %q) = %q, want %q", tt.file, tt.dir, got, tt.want)
		}
	}
}
