// Package pipeline sequences the awareness stages per incoming event:
// Collect -> Recognize -> Embody|Skip -> Transmit.
//
// The terminal state is always Transmitted: every event that survives
// schema validation produces exactly one log entry, whether or not
// embodiment ran. Consent and ethics outcomes are data, not errors; only
// schema failures and exhausted append retries surface to the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/tequmsa/awareness/pkg/collect"
	"github.com/tequmsa/awareness/pkg/contracts"
	"github.com/tequmsa/awareness/pkg/embody"
	"github.com/tequmsa/awareness/pkg/observability"
	"github.com/tequmsa/awareness/pkg/recognize"
	"github.com/tequmsa/awareness/pkg/retry"
	"github.com/tequmsa/awareness/pkg/store"
)

// ErrAppendRetriesExhausted is returned when tail contention persisted past
// the configured retry bound. The event's data is not lost; the transmit
// stage may be retried.
var ErrAppendRetriesExhausted = errors.New("pipeline: append retries exhausted")

// TailIndex is an optional fast-resume snapshot of partition tails,
// maintained best-effort after each append. See store.RedisTailIndex.
type TailIndex interface {
	Save(ctx context.Context, partition string, tail store.Tail) error
}

// Outcome is the full record of one event's passage through the pipeline.
type Outcome struct {
	Event      *contracts.CollapseEvent
	Resolution *contracts.RecognitionResolution
	Manifest   *contracts.EmbodimentManifest // nil when the embody stage was skipped
	Entry      *contracts.AwarenessLogEntry
}

// Pipeline wires the stages together.
type Pipeline struct {
	collector  *collect.Collector
	recognizer *recognize.Recognizer
	embodier   *embody.Embodier
	logs       store.LogStore
	tails      TailIndex

	obs          *observability.Provider
	logger       *slog.Logger
	limiter      *rate.Limiter
	retryPolicy  retry.Policy
	eventTimeout time.Duration
	clock        func() time.Time
}

// Options configures a Pipeline.
type Options struct {
	Collector    *collect.Collector
	Recognizer   *recognize.Recognizer
	Embodier     *embody.Embodier
	Logs         store.LogStore
	Tails        TailIndex               // optional fast-resume snapshot
	Observer     *observability.Provider // optional
	RetryPolicy  retry.Policy            // zero value -> DefaultPolicy
	EventTimeout time.Duration           // zero -> 10s
	IntakeRate   float64                 // events/sec, 0 = unlimited
	IntakeBurst  int
}

// New builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Collector == nil || opts.Recognizer == nil || opts.Embodier == nil || opts.Logs == nil {
		return nil, errors.New("pipeline: collector, recognizer, embodier and log store are required")
	}
	if opts.RetryPolicy == (retry.Policy{}) {
		opts.RetryPolicy = retry.DefaultPolicy()
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if opts.IntakeRate > 0 {
		burst := opts.IntakeBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.IntakeRate), burst)
	}

	return &Pipeline{
		collector:    opts.Collector,
		recognizer:   opts.Recognizer,
		embodier:     opts.Embodier,
		logs:         opts.Logs,
		tails:        opts.Tails,
		obs:          opts.Observer,
		logger:       slog.Default().With("component", "pipeline"),
		limiter:      limiter,
		retryPolicy:  opts.RetryPolicy,
		eventTimeout: opts.EventTimeout,
		clock:        time.Now,
	}, nil
}

// WithClock overrides the clock for testing.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	return p
}

// ProcessTrigger runs the full pipeline from a raw trigger.
func (p *Pipeline) ProcessTrigger(ctx context.Context, t collect.Trigger) (*Outcome, error) {
	ev, err := p.collector.Collect(t)
	if err != nil {
		return nil, err
	}
	return p.ProcessEvent(ctx, ev)
}

// ProcessRaw runs the full pipeline from a raw CollapseEvent JSON document.
func (p *Pipeline) ProcessRaw(ctx context.Context, raw []byte) (*Outcome, error) {
	ev, err := p.collector.CollectRaw(raw)
	if err != nil {
		return nil, err
	}
	return p.ProcessEvent(ctx, ev)
}

// ProcessEvent runs Recognize, Embody and Transmit for a collected event.
// The whole passage is bounded by the event timeout; expiry before the
// append commits drops the event with a SchemaError-class failure so a
// half-written state is never logged as complete.
func (p *Pipeline) ProcessEvent(ctx context.Context, ev *contracts.CollapseEvent) (outcome *Outcome, err error) {
	if p.limiter != nil {
		if werr := p.limiter.Wait(ctx); werr != nil {
			return nil, &contracts.SchemaError{Reason: "intake cancelled", Cause: werr}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.eventTimeout)
	defer cancel()

	start := p.clock()

	if p.obs != nil {
		var endSpan func(error)
		ctx, endSpan = p.track(ctx, ev)
		defer func() { endSpan(err) }()
	}

	res, err := p.recognizer.Recognize(ev)
	if err != nil {
		p.recordError(ctx, err)
		return nil, err
	}

	manifest, err := p.embodier.Embody(ctx, ev, res)
	if err != nil {
		p.recordError(ctx, err)
		return nil, err
	}
	if manifest == nil && res.Executable() {
		p.logger.WarnContext(ctx, "embody produced no manifest for executable resolution",
			"collapse_id", ev.ID)
	}

	if err := ctx.Err(); err != nil {
		// Timed out before transmit: drop with nothing persisted.
		return nil, &contracts.SchemaError{Reason: "event processing timeout", Cause: err}
	}

	entry, err := p.transmit(ctx, ev, res, manifest)
	if err != nil {
		p.recordError(ctx, err)
		return nil, err
	}

	if p.obs != nil {
		p.obs.RecordEvent(ctx,
			attribute.String("classification", res.Classification),
			attribute.String("consent", string(res.Consent.Status)),
			attribute.String("ethics", string(res.Ethics.Evaluation)),
		)
		p.obs.RecordDuration(ctx, p.clock().Sub(start))
	}

	p.logger.InfoContext(ctx, "event transmitted",
		"collapse_id", ev.ID,
		"log_id", entry.LogID,
		"classification", res.Classification,
		"consent", res.Consent.Status,
		"ethics", res.Ethics.Evaluation,
		"embodied", manifest != nil,
	)

	return &Outcome{Event: ev, Resolution: res, Manifest: manifest, Entry: entry}, nil
}

// transmit builds the log entry and appends it, retrying tail contention
// with deterministic backoff up to the configured bound.
func (p *Pipeline) transmit(ctx context.Context, ev *contracts.CollapseEvent, res *contracts.RecognitionResolution, manifest *contracts.EmbodimentManifest) (*contracts.AwarenessLogEntry, error) {
	now := p.clock().UTC()
	confidence := res.Confidence
	entry := &contracts.AwarenessLogEntry{
		LogID:         uuid.New().String(),
		CollapseID:    ev.ID,
		ResolutionRef: res.ID,
		Timestamp:     now,
		TierContext:   ev.TierContext,
		ConsentStatus: res.Consent.Status,
		EthicsSignal:  res.Ethics.Evaluation,
		Summary:       summarize(res, manifest),
		Confidence:    &confidence,
	}
	if manifest != nil {
		entry.ManifestRef = manifest.ManifestID
	}

	partition := store.PartitionOf(now)
	maxAttempts := p.retryPolicy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		sealed, err := p.logs.Append(ctx, partition, entry)
		if err == nil {
			p.snapshotTail(ctx, partition)
			return sealed, nil
		}

		var contention *store.ChainContentionError
		if !errors.As(err, &contention) {
			return nil, err
		}
		lastErr = err

		if p.obs != nil {
			p.obs.RecordAppendRetry(ctx, partition)
		}
		p.logger.DebugContext(ctx, "append contention, retrying",
			"partition", partition, "attempt", attempt)

		delay := retry.ComputeBackoff(retry.Params{
			Partition:    partition,
			EventID:      ev.ID,
			AttemptIndex: attempt,
		}, p.retryPolicy)
		select {
		case <-ctx.Done():
			return nil, &contracts.SchemaError{Reason: "event processing timeout", Cause: ctx.Err()}
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAppendRetriesExhausted, lastErr)
}

// snapshotTail refreshes the fast-resume index. Best effort: the log store
// stays authoritative and a lost snapshot only costs a scan on resume.
func (p *Pipeline) snapshotTail(ctx context.Context, partition string) {
	if p.tails == nil {
		return
	}
	tail, err := p.logs.ReadTail(ctx, partition)
	if err == nil {
		err = p.tails.Save(ctx, partition, tail)
	}
	if err != nil {
		p.logger.DebugContext(ctx, "tail snapshot skipped", "partition", partition, "error", err)
	}
}

// track opens a pipeline span. Returned func ends it.
func (p *Pipeline) track(ctx context.Context, ev *contracts.CollapseEvent) (context.Context, func(error)) {
	ctx, span := p.obs.StartSpan(ctx, "awareness.pipeline")
	span.SetAttributes(
		attribute.String("collapse_id", ev.ID),
		attribute.String("source_type", ev.SourceType),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

func (p *Pipeline) recordError(ctx context.Context, err error) {
	if p.obs != nil {
		p.obs.RecordError(ctx, err)
	}
}

// summarize renders the one-line human summary stored in the entry.
func summarize(res *contracts.RecognitionResolution, manifest *contracts.EmbodimentManifest) string {
	embodiment := "skipped"
	if manifest != nil {
		embodiment = string(manifest.Status)
	}
	return fmt.Sprintf("classified %s (confidence %.3f); consent %s; ethics %s; embodiment %s",
		res.Classification, res.Confidence, res.Consent.Status, res.Ethics.Evaluation, embodiment)
}
