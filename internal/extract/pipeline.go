package extract

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daybooklabs/daybook/pkg/models"
)

// DefaultConcurrency bounds parallel segment classification.
const DefaultConcurrency = 4

// Result is the output of one pipeline run.
type Result struct {
	Items        []*models.CandidateItem
	SegmentCount int
	Elapsed      time.Duration
}

// Pipeline runs segmentation, classification, and candidate building for
// one note. Stages are pure, so independent notes can run concurrently
// without coordination; within one note, segments are classified in
// parallel and reassembled in document order.
type Pipeline struct {
	classifier  Classifier
	builder     *Builder
	concurrency int
}

// NewPipeline wires a pipeline from a classifier and the category set
// active for this invocation.
func NewPipeline(classifier Classifier, categories *models.CategorySet) *Pipeline {
	return &Pipeline{
		classifier:  classifier,
		builder:     NewBuilder(categories),
		concurrency: DefaultConcurrency,
	}
}

// Run extracts candidate items from the note. The caller controls the
// budget through ctx; on deadline expiry partial results are discarded
// and a TimeoutError is returned.
func (p *Pipeline) Run(ctx context.Context, note *models.SourceNote) (*Result, error) {
	start := time.Now()
	segs := Split(note.RawText)

	classifications := make([]Classification, len(segs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, seg := range segs {
		i, seg := i, seg
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			classifications[i] = p.classifier.Classify(seg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, pipelineErr(err)
	}

	items := make([]*models.CandidateItem, 0, len(segs))
	for i, seg := range segs {
		if err := ctx.Err(); err != nil {
			return nil, pipelineErr(err)
		}
		item, err := p.builder.Build(note.ID, note.RawText, seg, classifications[i])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return &Result{
		Items:        items,
		SegmentCount: len(segs),
		Elapsed:      time.Since(start),
	}, nil
}

func pipelineErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &models.TimeoutError{Op: "parse"}
	}
	return err
}
