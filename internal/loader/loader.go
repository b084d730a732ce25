// Package loader ingests corpus source files into the store and publishes
// the refreshed corpus snapshot. Supported inputs: plain text (one
// "TEXT (page-line)" verse per line), xz-compressed text, and XML corpus
// exports. Malformed records are skipped and reported in the load summary;
// a bad line never aborts the load.
package loader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/PaathGuide/core/corpus"
	"github.com/FocuswithJustin/PaathGuide/core/errors"
	"github.com/FocuswithJustin/PaathGuide/core/normalize"
	"github.com/FocuswithJustin/PaathGuide/core/verse"
	"github.com/FocuswithJustin/PaathGuide/internal/logging"
	"github.com/FocuswithJustin/PaathGuide/internal/store"
)

// Summary reports the outcome of one bulk load.
type Summary struct {
	Source     string `json:"source"`
	Loaded     int    `json:"loaded"`
	Skipped    int    `json:"skipped"`
	Duplicates int    `json:"duplicates"`
	Errors     error  `json:"-"`
}

// ErrorStrings flattens the per-record errors for API responses.
func (s *Summary) ErrorStrings() []string {
	var merr *multierror.Error
	if !errors.As(s.Errors, &merr) {
		if s.Errors != nil {
			return []string{s.Errors.Error()}
		}
		return nil
	}
	out := make([]string, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		out = append(out, e.Error())
	}
	return out
}

// Options controls a bulk load.
type Options struct {
	SkipFirst     int  // header lines to discard (text inputs only)
	ClearExisting bool // drop stored verses before loading
	Progress      func(stage string, percent int)
}

func (o Options) progress(stage string, percent int) {
	if o.Progress != nil {
		o.Progress(stage, percent)
	}
}

// Loader wires the store and the in-memory corpus together for bulk loads.
type Loader struct {
	Repo   *store.Repository
	Corpus *corpus.Corpus
}

// LoadFile ingests one source file. The file format is chosen by
// extension: .xml is parsed as a corpus export, .xz is decompressed
// first, everything else is read as line-per-verse text.
func (l *Loader) LoadFile(ctx context.Context, path string, opts Options) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	var reader io.Reader = f
	name := path
	if strings.EqualFold(filepath.Ext(path), ".xz") {
		xzr, err := xz.NewReader(f)
		if err != nil {
			return nil, errors.NewIO("decompress", path, err)
		}
		reader = xzr
		name = strings.TrimSuffix(path, filepath.Ext(path))
	}

	opts.progress("parse", 0)
	var records []verse.Record
	summary := &Summary{Source: path}
	if strings.EqualFold(filepath.Ext(name), ".xml") {
		records, err = parseXML(reader, path, summary)
	} else {
		records, err = parseText(reader, path, opts.SkipFirst, summary)
	}
	if err != nil {
		return nil, err
	}
	opts.progress("parse", 40)

	records = l.dedupe(ctx, records, summary, opts.ClearExisting)
	opts.progress("store", 50)

	// Clear and insert commit together: a failed or cancelled reload must
	// not leave the store empty while the old snapshot is still serving.
	if opts.ClearExisting {
		err = l.Repo.ReplaceAll(ctx, records)
	} else {
		err = l.Repo.BulkInsert(ctx, records)
	}
	if err != nil {
		return nil, err
	}
	summary.Loaded = len(records)
	opts.progress("store", 80)

	all, err := l.Repo.All(ctx)
	if err != nil {
		return nil, err
	}
	if err := l.Corpus.Replace(all); err != nil {
		return nil, err
	}
	opts.progress("publish", 100)

	logging.LoadEvent(path, summary.Loaded, summary.Skipped, summary.Duplicates)
	return summary, nil
}

// dedupe drops records whose normalized content already appears earlier in
// the batch or, for incremental loads, in the store.
func (l *Loader) dedupe(ctx context.Context, records []verse.Record, summary *Summary, cleared bool) []verse.Record {
	seen := make(map[string]struct{}, len(records))
	kept := records[:0]
	for _, rec := range records {
		hash := verse.ContentHash(normalize.Normalize(rec.Gurmukhi))
		if _, dup := seen[hash]; dup {
			summary.Duplicates++
			continue
		}
		if !cleared {
			if exists, err := l.Repo.ExistsByHash(ctx, hash); err == nil && exists {
				summary.Duplicates++
				continue
			}
		}
		seen[hash] = struct{}{}
		kept = append(kept, rec)
	}
	return kept
}

// parseText reads line-per-verse input. Blank lines are ignored; lines
// that do not parse are counted as skipped and collected in the summary.
func parseText(r io.Reader, source string, skipFirst int, summary *Summary) ([]verse.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []verse.Record
	seenRefs := make(map[verse.Ref]int)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo <= skipFirst {
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := verse.ParseLine(line)
		if err != nil {
			summary.Skipped++
			summary.Errors = multierror.Append(summary.Errors,
				errors.NewLoad(source, lineNo, err.Error()))
			continue
		}
		if prev, dup := seenRefs[rec.Ref()]; dup {
			summary.Skipped++
			summary.Errors = multierror.Append(summary.Errors,
				errors.NewLoad(source, lineNo,
					fmt.Sprintf("location %s already used at line %d", rec.Ref(), prev)))
			continue
		}
		seenRefs[rec.Ref()] = lineNo
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewIO("read", source, err)
	}
	return records, nil
}
