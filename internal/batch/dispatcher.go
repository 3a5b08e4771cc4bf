// Package batch implements the batch dispatcher (C9): bounded-concurrency
// fan-out over a list of students, one full inference+fusion+rationale
// pipeline per item, with per-item failure isolation, ordered results, and a
// batch-level deadline.
package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"selinfer/internal/evidence"
	"selinfer/internal/inference"
	"selinfer/internal/rationale"
	"selinfer/internal/sel"
)

const (
	// MaxStudents bounds one batch request, spec §4.9.
	MaxStudents = 100

	defaultConcurrency = 16
	defaultDeadline     = 60 * time.Second
)

// Options configures one Dispatch call; zero values fall back to defaults.
type Options struct {
	Concurrency int
	Deadline    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.Deadline <= 0 {
		o.Deadline = defaultDeadline
	}
	return o
}

// ItemResult is one student's outcome within a batch. Exactly one of
// Assessment or Error is populated.
type ItemResult struct {
	StudentID  string
	Skill      sel.Skill
	Assessment *sel.FusedAssessment
	Rationale  *sel.Rationale
	Error      string
	ErrorCategory string
}

// BatchResult is the full response to infer_batch.
type BatchResult struct {
	BatchID     string
	Results     []ItemResult
	TotalCount  int
	SuccessCount int
	ErrorCount  int
	WallClockMS float64
}

// Dispatcher wires together the inference engine, evidence fuser, and
// rationale generator to run the full per-student pipeline under batch
// concurrency and deadline controls.
type Dispatcher struct {
	engine    *inference.Engine
	fuser     *evidence.Fuser
	generator *rationale.Generator
}

func New(engine *inference.Engine, fuser *evidence.Fuser, generator *rationale.Generator) *Dispatcher {
	return &Dispatcher{engine: engine, fuser: fuser, generator: generator}
}

// Dispatch runs the pipeline for every (studentID, skill) pair, isolating
// per-item failures and preserving input order in the result slice. It never
// returns an error itself; the batch always completes (possibly with
// deadline_exceeded entries for items still in flight when the deadline
// fires).
func (d *Dispatcher) Dispatch(ctx context.Context, studentIDs []string, skill sel.Skill, opts Options) BatchResult {
	opts = opts.withDefaults()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, opts.Deadline)
	defer cancel()

	results := make([]ItemResult, len(studentIDs))

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i, studentID := range studentIDs {
		i, studentID := i, studentID
		g.Go(func() error {
			results[i] = d.runOne(ctx, studentID, skill)
			return nil
		})
	}
	_ = g.Wait()

	successCount := 0
	for _, r := range results {
		if r.Error == "" {
			successCount++
		}
	}

	return BatchResult{
		BatchID:      uuid.NewString(),
		Results:      results,
		TotalCount:   len(results),
		SuccessCount: successCount,
		ErrorCount:   len(results) - successCount,
		WallClockMS:  float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

// runOne executes the inference -> fusion -> rationale chain for a single
// student, converting any stage's error into a tagged ItemResult rather than
// propagating it.
func (d *Dispatcher) runOne(ctx context.Context, studentID string, skill sel.Skill) ItemResult {
	if err := ctx.Err(); err != nil {
		return ItemResult{StudentID: studentID, Skill: skill, Error: "deadline_exceeded", ErrorCategory: "deadline_exceeded"}
	}

	pred, err := d.engine.Infer(ctx, studentID, skill)
	if err != nil {
		if ctx.Err() != nil {
			return ItemResult{StudentID: studentID, Skill: skill, Error: "deadline_exceeded", ErrorCategory: "deadline_exceeded"}
		}
		return ItemResult{StudentID: studentID, Skill: skill, Error: err.Error(), ErrorCategory: categoryFor(err)}
	}

	assessment, err := d.fuser.Fuse(ctx, studentID, pred)
	if err != nil {
		if ctx.Err() != nil {
			return ItemResult{StudentID: studentID, Skill: skill, Error: "deadline_exceeded", ErrorCategory: "deadline_exceeded"}
		}
		return ItemResult{StudentID: studentID, Skill: skill, Error: err.Error(), ErrorCategory: categoryFor(err)}
	}

	if ctx.Err() != nil {
		return ItemResult{StudentID: studentID, Skill: skill, Error: "deadline_exceeded", ErrorCategory: "deadline_exceeded"}
	}

	r := d.generator.Generate(ctx, rationale.Input{
		Skill:           skill,
		FusedScore:      assessment.FusedScore,
		FusedConfidence: assessment.FusedConfidence,
		Evidence:        assessment.TopEvidence,
	})

	return ItemResult{StudentID: studentID, Skill: skill, Assessment: &assessment, Rationale: &r}
}

func categoryFor(err error) string {
	switch err.(type) {
	case *sel.UpstreamUnavailable:
		return "upstream_unavailable"
	case *sel.PredictionFailure:
		return "prediction_failure"
	case *sel.FeatureShapeError:
		return "feature_shape_error"
	case *sel.InsufficientEvidence:
		return "insufficient_evidence"
	default:
		return "internal_error"
	}
}
