package partition_test

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shpitdev/crime-category-etl/internal/partition"
	"github.com/shpitdev/crime-category-etl/internal/record"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/core"
)

func rec(key, category string, arrest bool) record.Record {
	return record.Record{
		UniqueKey:           key,
		CaseNumber:          "HX" + key,
		Date:                time.Date(2015, 9, 5, 13, 30, 0, 0, time.UTC),
		Block:               "043XX S WOOD ST",
		PrimaryType:         category,
		Description:         "DESC",
		LocationDescription: "STREET",
		Arrest:              arrest,
	}
}

func readKeys(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	var keys []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		r, err := record.ParseLine(sc.Bytes())
		if err != nil {
			t.Fatalf("parse line %q: %v", sc.Text(), err)
		}
		keys = append(keys, r.UniqueKey)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	return keys
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPoolCommit(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := filepath.Join(root, ".outputs")
	p := partition.NewPool(out)

	writes := []record.Record{
		rec("1", "THEFT", true),
		rec("2", "NON-CRIMINAL", false),
		rec("3", "THEFT", false),
		rec("4", "NON - CRIMINAL", false),
		rec("5", "THEFT", true),
	}
	for _, r := range writes {
		if err := p.Write(r.PrimaryType, r); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output directory must not exist before commit, stat err=%v", err)
	}
	if got := p.Lines("THEFT"); got != 3 {
		t.Fatalf("expected 3 THEFT lines, got %d", got)
	}
	if err := p.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if diff := cmp.Diff([]string{"NON - CRIMINAL.txt", "NON-CRIMINAL.txt", "THEFT.txt"}, listDir(t, out)); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1", "3", "5"}, readKeys(t, filepath.Join(out, "THEFT.txt"))); diff != "" {
		t.Fatalf("THEFT order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{".outputs"}, listDir(t, root)); diff != "" {
		t.Fatalf("staging left behind (-want +got):\n%s", diff)
	}
}

func TestPoolCommitReplacesExistingFiles(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "out")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(out, "THEFT.txt"), []byte("stale\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := partition.NewPool(out)
	if err := p.Write("THEFT", rec("9", "THEFT", true)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := p.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if diff := cmp.Diff([]string{"9"}, readKeys(t, filepath.Join(out, "THEFT.txt"))); diff != "" {
		t.Fatalf("unexpected content (-want +got):\n%s", diff)
	}
}

func TestPoolCommitFailureLeavesOutputUntouched(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := filepath.Join(root, "out")
	if err := os.MkdirAll(filepath.Join(out, "THEFT.txt"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(out, "ARSON.txt"), []byte("previous\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := partition.NewPool(out)
	for _, r := range []record.Record{rec("1", "ARSON", false), rec("2", "THEFT", true), rec("3", "BATTERY", true)} {
		if err := p.Write(r.PrimaryType, r); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	err := p.Commit()
	var ode *core.OutputDestinationError
	if !errors.As(err, &ode) || ode.Category != "THEFT" {
		t.Fatalf("expected OutputDestinationError for THEFT, got %v", err)
	}

	if diff := cmp.Diff([]string{"ARSON.txt", "THEFT.txt"}, listDir(t, out)); diff != "" {
		t.Fatalf("output changed by failed commit (-want +got):\n%s", diff)
	}
	prev, err := os.ReadFile(filepath.Join(out, "ARSON.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(prev) != "previous\n" {
		t.Fatalf("ARSON.txt replaced by failed commit: %q", prev)
	}
	if diff := cmp.Diff([]string{"out"}, listDir(t, root)); diff != "" {
		t.Fatalf("staging left behind (-want +got):\n%s", diff)
	}
}

func TestPoolCommitWithoutWritesCreatesDir(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "out")
	p := partition.NewPool(out)
	if err := p.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(listDir(t, out)) != 0 {
		t.Fatalf("expected empty output directory")
	}
}

func TestPoolAbort(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := filepath.Join(root, "out")
	p := partition.NewPool(out)
	if err := p.Write("THEFT", rec("1", "THEFT", true)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := p.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if names := listDir(t, root); len(names) != 0 {
		t.Fatalf("expected nothing left behind, got %v", names)
	}
	if err := p.Write("THEFT", rec("2", "THEFT", true)); err == nil {
		t.Fatalf("expected write after abort to fail")
	}
	if err := p.Commit(); err == nil {
		t.Fatalf("expected commit after abort to fail")
	}
}

func TestPoolRejectsUnsafeCategory(t *testing.T) {
	t.Parallel()

	p := partition.NewPool(filepath.Join(t.TempDir(), "out"))
	defer func() {
		_ = p.Abort()
	}()
	for _, c := range []string{"", ".", "..", "A/B", "../ESCAPE", "NUL\x00"} {
		err := p.Write(c, rec("1", c, true))
		var ode *core.OutputDestinationError
		if !errors.As(err, &ode) || ode.Category != c {
			t.Fatalf("Write(%q) expected OutputDestinationError, got %v", c, err)
		}
	}
}

func TestFileNameRoundTrip(t *testing.T) {
	t.Parallel()

	for _, c := range []string{"THEFT", "NON-CRIMINAL (SUBJECT SPECIFIED)", "NON - CRIMINAL", "CRIM SEXUAL ASSAULT"} {
		name, err := partition.FileName(c)
		if err != nil {
			t.Fatalf("FileName(%q): %v", c, err)
		}
		back, ok := partition.CategoryFromFileName(name)
		if !ok || back != c {
			t.Fatalf("CategoryFromFileName(%q)=%q,%t", name, back, ok)
		}
	}
	if _, ok := partition.CategoryFromFileName("notes.md"); ok {
		t.Fatalf("expected non-.txt name to be rejected")
	}
}

func TestPoolLinesAreComplete(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "out")
	p := partition.NewPool(out)
	r := rec("1", "THEFT", true)
	r.Description = strings.Repeat("X", 200<<10)
	for i := 0; i < 3; i++ {
		if err := p.Write("THEFT", r); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := p.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(out, "THEFT.txt"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for _, l := range lines {
		if _, err := record.ParseLine([]byte(l)); err != nil {
			t.Fatalf("line does not parse: %v", err)
		}
	}
}
