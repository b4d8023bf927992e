// Package collector defines the feed contract for raw items. Source-specific
// harvesters live outside this repo and drop their output as JSONL files;
// the file collector replays those feeds into the pipeline.
package collector

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/painminer/internal/model"
)

// Collector supplies raw items from one source. Uniqueness of
// (source, external_id) is the collector's responsibility to provide
// meaningfully, not to enforce.
type Collector interface {
	Name() model.Source
	Fetch(ctx context.Context, limit int) ([]model.RawItem, error)
}

// FileCollector reads a JSONL feed file for one source. Each line is one
// item: {"external_id": ..., "text": ..., "metadata": {...}, "fetched_at": ...}.
type FileCollector struct {
	source model.Source
	path   string
}

// feedLine is the on-disk item shape. fetched_at is optional; absent values
// default to the file read time.
type feedLine struct {
	ExternalID string            `json:"external_id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata"`
	FetchedAt  *time.Time        `json:"fetched_at"`
}

// NewFileCollector builds a collector for <dir>/<source>.jsonl.
func NewFileCollector(dir string, source model.Source) *FileCollector {
	return &FileCollector{
		source: source,
		path:   filepath.Join(dir, string(source)+".jsonl"),
	}
}

func (f *FileCollector) Name() model.Source {
	return f.source
}

// Fetch reads up to limit items from the feed file. limit <= 0 reads all.
// Malformed lines are skipped with a warning rather than failing the feed.
func (f *FileCollector) Fetch(ctx context.Context, limit int) ([]model.RawItem, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, eris.Wrapf(err, "collector: open feed %s", f.path)
	}
	defer file.Close()

	now := time.Now().UTC()
	var items []model.RawItem
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return items, eris.Wrap(err, "collector: fetch canceled")
		}
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line feedLine
		if err := json.Unmarshal(raw, &line); err != nil {
			zap.L().Warn("collector: skipping malformed feed line",
				zap.String("source", string(f.source)),
				zap.Int("line", lineNo),
				zap.Error(err))
			continue
		}
		if line.ExternalID == "" || line.Text == "" {
			zap.L().Warn("collector: skipping incomplete feed line",
				zap.String("source", string(f.source)),
				zap.Int("line", lineNo))
			continue
		}

		fetchedAt := now
		if line.FetchedAt != nil {
			fetchedAt = line.FetchedAt.UTC()
		}
		items = append(items, model.RawItem{
			Source:     f.source,
			ExternalID: line.ExternalID,
			Text:       line.Text,
			Metadata:   line.Metadata,
			FetchedAt:  fetchedAt,
		})
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "collector: read feed %s", f.path)
	}
	return items, nil
}

// ForSources builds one file collector per requested source name.
func ForSources(dir string, sources []string) ([]Collector, error) {
	if len(sources) == 0 {
		sources = make([]string, 0, len(model.ValidSources))
		for _, s := range model.ValidSources {
			sources = append(sources, string(s))
		}
	}
	collectors := make([]Collector, 0, len(sources))
	for _, name := range sources {
		src := model.Source(name)
		if !src.Valid() {
			return nil, eris.Errorf("collector: unknown source %q", name)
		}
		collectors = append(collectors, NewFileCollector(dir, src))
	}
	return collectors, nil
}
