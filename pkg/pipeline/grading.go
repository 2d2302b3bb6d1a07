package pipeline

import (
	"context"
	"fmt"
	"sort"

	"ai-slidegen-be/internal/pkg/logger"
	"ai-slidegen-be/pkg/events"

	"golang.org/x/sync/errgroup"
)

// GradingLoop runs the render -> score -> repair cycle per slide during
// qa_in_progress. Slides run independently (bounded concurrency); iterations
// within one slide are strictly sequential, since each repair depends on the
// previous iteration's issues.
type GradingLoop struct {
	cfg      Config
	pub      *events.Publisher
	log      logger.ILogger
	renderer Renderer
	grader   SlideGrader
	fixer    SlideFixer
}

func NewGradingLoop(cfg Config, pub *events.Publisher, log logger.ILogger, renderer Renderer, grader SlideGrader, fixer SlideFixer) *GradingLoop {
	return &GradingLoop{cfg: cfg, pub: pub, log: log, renderer: renderer, grader: grader, fixer: fixer}
}

// Run grades every slide of the rendered output. It returns the aggregated
// report and the output with each slide replaced by its best-scoring attempt.
// A slide that never reaches the pass threshold keeps the best attempt seen
// across iterations; on a score tie the earliest iteration wins, which keeps
// re-runs with identical collaborator responses reproducible.
func (g *GradingLoop) Run(ctx context.Context, sessionID string, output RenderedOutput) (*QAReport, *RenderedOutput, error) {
	results := make([]QAResult, len(output.Slides))
	best := make([]RenderedSlide, len(output.Slides))
	total := len(output.Slides)

	eg, egCtx := errgroup.WithContext(ctx)
	limit := g.cfg.QAConcurrency
	if limit <= 0 {
		limit = 1
	}
	eg.SetLimit(limit)

	for i, slide := range output.Slides {
		eg.Go(func() error {
			res, kept, err := g.gradeSlide(egCtx, sessionID, slide, total)
			if err != nil {
				return err
			}
			results[i] = res
			best[i] = kept
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	report := aggregate(results)
	kept := output
	kept.Slides = best
	sort.Slice(kept.Slides, func(a, b int) bool { return kept.Slides[a].Order < kept.Slides[b].Order })
	return report, &kept, nil
}

func (g *GradingLoop) gradeSlide(ctx context.Context, sessionID string, slide RenderedSlide, total int) (QAResult, RenderedSlide, error) {
	current := slide
	bestSlide := slide
	bestScore := -1.0
	var lastIssues []string

	for iteration := 1; ; iteration++ {
		artifact, err := g.renderer.Render(ctx, current)
		if err != nil {
			return QAResult{}, RenderedSlide{}, fmt.Errorf("render slide %d: %w", slide.Order, err)
		}
		grade, err := g.grader.Grade(ctx, artifact)
		if err != nil {
			return QAResult{}, RenderedSlide{}, fmt.Errorf("grade slide %d: %w", slide.Order, err)
		}
		lastIssues = grade.Issues

		g.pub.Publish(sessionID, events.TypeQAIteration, StageVisualQA, map[string]interface{}{
			"slide_order":  slide.Order,
			"iteration":    iteration,
			"score":        grade.Score,
			"issues":       grade.Issues,
			"total_slides": total,
		})

		// Strictly-greater keeps the earliest iteration on ties.
		if grade.Score > bestScore {
			bestScore = grade.Score
			bestSlide = current
		}

		if grade.Score >= g.cfg.PassThreshold {
			return QAResult{
				SlideOrder: slide.Order,
				Score:      grade.Score,
				Issues:     grade.Issues,
				Passed:     true,
				Iteration:  iteration,
			}, current, nil
		}
		if iteration >= g.cfg.MaxQAIterations {
			g.log.Warn("GradingLoop", "Slide failed QA after max iterations", map[string]interface{}{
				"session_id": sessionID, "slide_order": slide.Order, "best_score": bestScore,
			})
			return QAResult{
				SlideOrder: slide.Order,
				Score:      bestScore,
				Issues:     lastIssues,
				Passed:     false,
				Iteration:  iteration,
			}, bestSlide, nil
		}

		fixed, err := g.fixer.Fix(ctx, current, grade.Issues)
		if err != nil {
			return QAResult{}, RenderedSlide{}, fmt.Errorf("fix slide %d: %w", slide.Order, err)
		}
		current = fixed
	}
}

func aggregate(results []QAResult) *QAReport {
	report := &QAReport{Slides: results, AllPassed: true}
	if len(results) == 0 {
		return report
	}
	sort.Slice(report.Slides, func(a, b int) bool { return report.Slides[a].SlideOrder < report.Slides[b].SlideOrder })
	var sum float64
	for _, r := range report.Slides {
		sum += r.Score
		report.TotalIterations += r.Iteration
		if !r.Passed {
			report.AllPassed = false
		}
	}
	report.AverageScore = sum / float64(len(report.Slides))
	return report
}
