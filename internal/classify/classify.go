// Package classify turns raw items into validated pain records via the
// Anthropic API. Responses are schema-validated before anything persists;
// malformed output is retried like any transient failure, and every attempt
// lands in the cost ledger regardless of outcome.
package classify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/resilience"
	"github.com/sells-group/painminer/internal/store"
	"github.com/sells-group/painminer/internal/tracker"
	"github.com/sells-group/painminer/pkg/anthropic"
)

// Outcome is the terminal result of classifying one item.
type Outcome struct {
	Status model.ItemStatus
	Pain   *model.Pain
	Reason string
}

// Classifier drives a single item through classification and persistence.
type Classifier struct {
	llm     anthropic.Client
	store   store.Store
	tracker *tracker.Tracker

	model       string
	maxTokens   int64
	temperature float64
	retry       resilience.RetryConfig
}

// Config holds classifier construction parameters.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	MaxAttempts int
}

func New(llm anthropic.Client, st store.Store, tr *tracker.Tracker, cfg Config) *Classifier {
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	retry.OnRetry = resilience.RetryLogger("anthropic", "classify")
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Classifier{
		llm:         llm,
		store:       st,
		tracker:     tr,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		retry:       retry,
	}
}

// Classify runs one item through the model and persists the result. The raw
// item always leaves in a terminal state: classified, not_pain, or failed.
// A Pain row and the classified mark are written together so a crash cannot
// leave a pain without its processed flag.
func (c *Classifier) Classify(ctx context.Context, item model.RawItem) (Outcome, error) {
	payload, err := c.callModel(ctx, item)
	if err != nil {
		reason := eris.ToString(err, false)
		if markErr := c.store.MarkRawItem(ctx, item.Source, item.ExternalID, model.ItemFailed, reason); markErr != nil {
			return Outcome{}, eris.Wrap(markErr, "classify: mark failed")
		}
		zap.L().Warn("classification failed",
			zap.String("item", item.Identity()),
			zap.Error(err))
		return Outcome{Status: model.ItemFailed, Reason: reason}, nil
	}

	if !payload.IsPain {
		if err := c.store.MarkRawItem(ctx, item.Source, item.ExternalID, model.ItemNotPain, payload.RejectionReason); err != nil {
			return Outcome{}, eris.Wrap(err, "classify: mark not_pain")
		}
		return Outcome{Status: model.ItemNotPain, Reason: payload.RejectionReason}, nil
	}

	pain := payload.ToPain(uuid.New().String(), item, time.Now())
	if err := c.store.InsertPain(ctx, pain); err != nil {
		return Outcome{}, eris.Wrap(err, "classify: insert pain")
	}
	if err := c.store.MarkRawItem(ctx, item.Source, item.ExternalID, model.ItemClassified, ""); err != nil {
		return Outcome{}, eris.Wrap(err, "classify: mark classified")
	}

	zap.L().Debug("item classified",
		zap.String("item", item.Identity()),
		zap.String("pain_id", pain.ID),
		zap.Int("severity", pain.Severity))

	return Outcome{Status: model.ItemClassified, Pain: &pain}, nil
}

// callModel performs the retried LLM call. Schema violations are retryable:
// the model is nondeterministic enough that a second attempt often parses.
// Cost is recorded per attempt inside the loop so failed attempts still bill.
func (c *Classifier) callModel(ctx context.Context, item model.RawItem) (*model.ClassificationPayload, error) {
	prompt := buildPrompt(item)
	temp := c.temperature

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*model.ClassificationPayload, error) {
		resp, err := c.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       c.model,
			MaxTokens:   c.maxTokens,
			System:      systemPrompt,
			Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
			Temperature: &temp,
		})
		if err != nil {
			return nil, eris.Wrap(err, "classify: create message")
		}

		var payload model.ClassificationPayload
		parseErr := json.Unmarshal([]byte(cleanJSON(resp.Text)), &payload)
		if parseErr == nil {
			parseErr = payload.Validate()
		}

		if trackErr := c.tracker.RecordClaude(ctx, "classify", resp.Model,
			resp.Usage.InputTokens, resp.Usage.OutputTokens, parseErr == nil); trackErr != nil {
			return nil, trackErr
		}
		if parseErr != nil {
			return nil, resilience.NewSchemaError(parseErr)
		}
		return &payload, nil
	})
}
