// Package ingest normalizes raw text items and lands them in the store as
// pending work. Items already processed on a prior run are skipped here so
// classification never pays twice for the same text.
package ingest

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/store"
)

// Normalizer cleans raw text before storage. Unicode is NFC-normalized and
// runs of whitespace collapse to single spaces so identical content hashes
// identically regardless of source formatting.
type Normalizer struct {
	MinLen int
	MaxLen int
}

// NewNormalizer applies sane bounds when none are configured.
func NewNormalizer(minLen, maxLen int) *Normalizer {
	if minLen <= 0 {
		minLen = 80
	}
	if maxLen <= 0 {
		maxLen = 20000
	}
	return &Normalizer{MinLen: minLen, MaxLen: maxLen}
}

// Clean returns the normalized text and whether it passes length bounds.
// Over-long text is truncated, not rejected; under-length text is rejected.
func (n *Normalizer) Clean(text string) (string, bool) {
	text = norm.NFC.String(text)

	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	cleaned := b.String()

	if len(cleaned) < n.MinLen {
		return cleaned, false
	}
	if len(cleaned) > n.MaxLen {
		// Back up to a rune boundary so truncation never stores a split
		// multi-byte character.
		cut := n.MaxLen
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut]
	}
	return cleaned, true
}

// Result counts what happened to one ingested batch. Items holds the
// accepted items with normalized text, ready for classification.
type Result struct {
	Accepted    int
	Duplicates  int
	TooShort    int
	AlreadyDone int
	Items       []model.RawItem
}

// Ingestor lands normalized items in the store.
type Ingestor struct {
	store store.Store
	norm  *Normalizer
}

func New(st store.Store, norm *Normalizer) *Ingestor {
	return &Ingestor{store: st, norm: norm}
}

// Ingest cleans and upserts a batch. Within the batch the first occurrence of
// an identity wins; across runs the store's status decides whether the item
// is new work.
func (ing *Ingestor) Ingest(ctx context.Context, items []model.RawItem) (Result, error) {
	var res Result
	seen := make(map[string]bool, len(items))

	for _, item := range items {
		identity := item.Identity()
		if seen[identity] {
			res.Duplicates++
			continue
		}
		seen[identity] = true

		cleaned, ok := ing.norm.Clean(item.Text)
		if !ok {
			res.TooShort++
			continue
		}
		item.Text = cleaned

		status, err := ing.store.UpsertRawItem(ctx, item)
		if err != nil {
			return res, eris.Wrapf(err, "ingest: upsert %s", identity)
		}
		if status.Processed() {
			res.AlreadyDone++
			continue
		}
		res.Accepted++
		res.Items = append(res.Items, item)
	}

	zap.L().Info("ingest batch",
		zap.Int("accepted", res.Accepted),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("too_short", res.TooShort),
		zap.Int("already_done", res.AlreadyDone))

	return res, nil
}
