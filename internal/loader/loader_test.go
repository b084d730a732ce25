package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/PaathGuide/core/corpus"
	"github.com/FocuswithJustin/PaathGuide/internal/store"
)

func newTestLoader(t *testing.T) (*Loader, *corpus.Corpus) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "loader.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	c := corpus.New(corpus.Config{})
	return &Loader{Repo: st.Repository(), Corpus: c}, c
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

const sampleText = `ਸਚੁ ਨਾਮੁ (1-1)
ਹਰਿ ਨਾਮੁ (1-2)

ਸਤਿ ਗੁਰ (2-1)
`

func TestLoadTextFile(t *testing.T) {
	ldr, c := newTestLoader(t)
	path := writeFile(t, "corpus.txt", sampleText)

	summary, err := ldr.LoadFile(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if summary.Loaded != 3 {
		t.Errorf("Loaded = %d, want 3", summary.Loaded)
	}
	if summary.Skipped != 0 || summary.Duplicates != 0 {
		t.Errorf("Skipped/Duplicates = %d/%d, want 0/0", summary.Skipped, summary.Duplicates)
	}

	// The corpus snapshot is published as part of the load.
	if c.Len() != 3 {
		t.Errorf("corpus Len = %d, want 3", c.Len())
	}
	rec, err := c.RecordAt(1, 2)
	if err != nil {
		t.Fatalf("RecordAt failed: %v", err)
	}
	if rec.Gurmukhi != "ਹਰਿ ਨਾਮੁ" {
		t.Errorf("Gurmukhi = %q, want %q", rec.Gurmukhi, "ਹਰਿ ਨਾਮੁ")
	}
}

func TestLoadSkipsCorruptLines(t *testing.T) {
	ldr, c := newTestLoader(t)
	path := writeFile(t, "corpus.txt", `ਸਚੁ ਨਾਮੁ (1-1)
no location here
ਹਰਿ ਨਾਮੁ (1-2)
ਦੁਹਰਾਇਆ (1-1)
`)

	summary, err := ldr.LoadFile(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if summary.Loaded != 2 {
		t.Errorf("Loaded = %d, want 2", summary.Loaded)
	}
	if summary.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2 (bad line plus duplicate location)", summary.Skipped)
	}
	if errs := summary.ErrorStrings(); len(errs) != 2 {
		t.Errorf("ErrorStrings = %v, want 2 entries", errs)
	}
	if c.Len() != 2 {
		t.Errorf("corpus Len = %d, want 2", c.Len())
	}
}

func TestLoadSkipFirst(t *testing.T) {
	ldr, _ := newTestLoader(t)
	path := writeFile(t, "corpus.txt", `header line one
header line two
ਸਚੁ ਨਾਮੁ (1-1)
`)

	summary, err := ldr.LoadFile(context.Background(), path, Options{SkipFirst: 2})
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if summary.Loaded != 1 || summary.Skipped != 0 {
		t.Errorf("Loaded/Skipped = %d/%d, want 1/0", summary.Loaded, summary.Skipped)
	}
}

func TestLoadXZFile(t *testing.T) {
	ldr, c := newTestLoader(t)

	path := filepath.Join(t.TempDir(), "corpus.txt.xz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	w, err := xz.NewWriter(f)
	if err != nil {
		t.Fatalf("xz.NewWriter failed: %v", err)
	}
	if _, err := w.Write([]byte(sampleText)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close writer failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close file failed: %v", err)
	}

	summary, err := ldr.LoadFile(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if summary.Loaded != 3 || c.Len() != 3 {
		t.Errorf("Loaded = %d, corpus Len = %d, want 3/3", summary.Loaded, c.Len())
	}
}

func TestLoadXMLFile(t *testing.T) {
	ldr, c := newTestLoader(t)
	path := writeFile(t, "corpus.xml", `<?xml version="1.0" encoding="UTF-8"?>
<corpus>
  <verse page="1" line="1" raag="ਜਪੁ" author="ਮਹਲਾ ੧">
    <gurmukhi>ਸਚੁ ਨਾਮੁ</gurmukhi>
    <translation>True is the Name</translation>
  </verse>
  <verse page="1" line="2">
    <gurmukhi>ਹਰਿ ਨਾਮੁ</gurmukhi>
  </verse>
  <verse line="3">
    <gurmukhi>ਖਰਾਬ</gurmukhi>
  </verse>
</corpus>
`)

	summary, err := ldr.LoadFile(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if summary.Loaded != 2 {
		t.Errorf("Loaded = %d, want 2", summary.Loaded)
	}
	if summary.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 (verse without page attribute)", summary.Skipped)
	}

	rec, err := c.RecordAt(1, 1)
	if err != nil {
		t.Fatalf("RecordAt failed: %v", err)
	}
	if rec.Raag != "ਜਪੁ" || rec.Author != "ਮਹਲਾ ੧" {
		t.Errorf("metadata = %q/%q, want attributes carried over", rec.Raag, rec.Author)
	}
	if rec.Translation != "True is the Name" {
		t.Errorf("Translation = %q, want child element text", rec.Translation)
	}
}

func TestLoadDeduplicates(t *testing.T) {
	ldr, _ := newTestLoader(t)
	ctx := context.Background()

	first := writeFile(t, "first.txt", "ਸਚੁ ਨਾਮੁ (1-1)\n")
	if _, err := ldr.LoadFile(ctx, first, Options{}); err != nil {
		t.Fatalf("first LoadFile failed: %v", err)
	}

	// Same content at a new location: dropped as a duplicate of the store.
	second := writeFile(t, "second.txt", "ਸਚੁ ਨਾਮੁ (7-1)\nਹਰਿ ਨਾਮੁ (7-2)\n")
	summary, err := ldr.LoadFile(ctx, second, Options{})
	if err != nil {
		t.Fatalf("second LoadFile failed: %v", err)
	}
	if summary.Loaded != 1 || summary.Duplicates != 1 {
		t.Errorf("Loaded/Duplicates = %d/%d, want 1/1", summary.Loaded, summary.Duplicates)
	}
}

func TestLoadClearExisting(t *testing.T) {
	ldr, c := newTestLoader(t)
	ctx := context.Background()

	first := writeFile(t, "first.txt", "ਸਚੁ ਨਾਮੁ (1-1)\n")
	if _, err := ldr.LoadFile(ctx, first, Options{}); err != nil {
		t.Fatalf("first LoadFile failed: %v", err)
	}

	second := writeFile(t, "second.txt", "ਹਰਿ ਨਾਮੁ (2-1)\n")
	if _, err := ldr.LoadFile(ctx, second, Options{ClearExisting: true}); err != nil {
		t.Fatalf("second LoadFile failed: %v", err)
	}

	if c.Len() != 1 {
		t.Fatalf("corpus Len = %d, want 1 after clearing load", c.Len())
	}
	if _, err := c.RecordAt(1, 1); err == nil {
		t.Error("cleared verse still present in corpus")
	}
}

func TestLoadMissingFile(t *testing.T) {
	ldr, _ := newTestLoader(t)
	if _, err := ldr.LoadFile(context.Background(), "/no/such/file.txt", Options{}); err == nil {
		t.Fatal("LoadFile on missing path succeeded, want error")
	}
}

func TestLoadProgressMilestones(t *testing.T) {
	ldr, _ := newTestLoader(t)
	path := writeFile(t, "corpus.txt", sampleText)

	var percents []int
	_, err := ldr.LoadFile(context.Background(), path, Options{
		Progress: func(stage string, percent int) {
			percents = append(percents, percent)
		},
	})
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(percents) == 0 {
		t.Fatal("no progress callbacks fired")
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("progress went backwards: %v", percents)
		}
	}
	if percents[len(percents)-1] != 100 {
		t.Errorf("final progress = %d, want 100", percents[len(percents)-1])
	}
}
