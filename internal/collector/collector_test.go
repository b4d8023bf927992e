package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/painminer/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func writeFeed(t *testing.T, dir string, source model.Source, lines ...string) {
	t.Helper()
	var content string
	for _, l := range lines {
		content += l + "\n"
	}
	path := filepath.Join(dir, string(source)+".jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileCollector_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, dir, model.SourceReddit,
		`{"external_id":"t3_1","text":"my bookkeeping is a nightmare","metadata":{"subreddit":"smallbusiness"}}`,
		`{"external_id":"t3_2","text":"invoicing takes hours","fetched_at":"2026-02-01T10:00:00Z"}`,
	)

	c := NewFileCollector(dir, model.SourceReddit)
	assert.Equal(t, model.SourceReddit, c.Name())

	items, err := c.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, model.SourceReddit, items[0].Source)
	assert.Equal(t, "t3_1", items[0].ExternalID)
	assert.Equal(t, map[string]string{"subreddit": "smallbusiness"}, items[0].Metadata)
	assert.False(t, items[0].FetchedAt.IsZero())

	want := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, want, items[1].FetchedAt)
}

func TestFileCollector_SkipsMalformedAndIncompleteLines(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, dir, model.SourceHackerNews,
		`{"external_id":"1","text":"valid item"}`,
		`not json at all`,
		`{"external_id":"","text":"missing id"}`,
		`{"external_id":"2","text":""}`,
		``,
		`{"external_id":"3","text":"another valid item"}`,
	)

	items, err := NewFileCollector(dir, model.SourceHackerNews).Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].ExternalID)
	assert.Equal(t, "3", items[1].ExternalID)
}

func TestFileCollector_HonorsLimit(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, dir, model.SourceReddit,
		`{"external_id":"1","text":"a"}`,
		`{"external_id":"2","text":"b"}`,
		`{"external_id":"3","text":"c"}`,
	)

	items, err := NewFileCollector(dir, model.SourceReddit).Fetch(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestFileCollector_MissingFileFails(t *testing.T) {
	_, err := NewFileCollector(t.TempDir(), model.SourceYouTube).Fetch(context.Background(), 0)
	assert.Error(t, err)
}

func TestFileCollector_StopsOnCanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, dir, model.SourceReddit, `{"external_id":"1","text":"a"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileCollector(dir, model.SourceReddit).Fetch(ctx, 0)
	assert.Error(t, err)
}

func TestForSources_DefaultsToAll(t *testing.T) {
	collectors, err := ForSources(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Len(t, collectors, len(model.ValidSources))
}

func TestForSources_RejectsUnknownSource(t *testing.T) {
	_, err := ForSources(t.TempDir(), []string{"reddit", "myspace"})
	assert.ErrorContains(t, err, "myspace")
}
