// Package pipeline wires the evidence library, JD structurer, tier
// router, bullet generator, stitcher, header/skills composer, and
// grader/improver into one end-to-end tailoring run, the way
// cmd/generate.go once wired analysis, generation, and evaluation into a
// single flow.
package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/harlowdata/tailorcore/pkg/bullets"
	"github.com/harlowdata/tailorcore/pkg/domain"
	"github.com/harlowdata/tailorcore/pkg/eventstream"
	"github.com/harlowdata/tailorcore/pkg/evidence"
	"github.com/harlowdata/tailorcore/pkg/gateway"
	"github.com/harlowdata/tailorcore/pkg/grader"
	"github.com/harlowdata/tailorcore/pkg/jdstructurer"
	"github.com/harlowdata/tailorcore/pkg/lessons"
	"github.com/harlowdata/tailorcore/pkg/profile"
	"github.com/harlowdata/tailorcore/pkg/stitch"
	"github.com/harlowdata/tailorcore/pkg/tier"
)

// DefaultCallTimeout and DefaultJobTimeout bound, respectively, a single
// model call and the whole run. A job timeout cancels any outstanding
// per-role sub-tasks; whatever roles finished before the deadline are
// kept and the artifact is marked Partial.
const (
	DefaultCallTimeout = 45 * time.Second
	DefaultJobTimeout  = 4 * time.Minute
	DefaultWorkerPool  = 4
)

// Pipeline owns every layer and runs them in sequence for one job.
type Pipeline struct {
	library    *evidence.Library
	structurer *jdstructurer.Structurer
	generator  *bullets.Generator
	composer   *profile.Composer
	improver   *grader.Improver
	lessonIdx  lessons.Index
	gw         *gateway.Gateway

	jobTimeout     time.Duration
	workerPoolSize int
}

// New assembles a Pipeline from its already-constructed layers. lessonIdx
// may be the zero value when no prior grading history exists yet.
func New(gw *gateway.Gateway, library *evidence.Library, structurer *jdstructurer.Structurer, composerImpl *profile.Composer, lessonIdx lessons.Index) *Pipeline {
	g := grader.New(gw)
	return &Pipeline{
		library:        library,
		structurer:     structurer,
		generator:      bullets.New(gw),
		composer:       composerImpl,
		improver:       grader.NewImprover(g, gw),
		lessonIdx:      lessonIdx,
		gw:             gw,
		jobTimeout:     DefaultJobTimeout,
		workerPoolSize: DefaultWorkerPool,
	}
}

// WithJobTimeout overrides the default per-job deadline.
func (p *Pipeline) WithJobTimeout(d time.Duration) *Pipeline {
	p.jobTimeout = d
	return p
}

// WithWorkerPoolSize overrides the bounded worker pool used for per-role
// bullet generation.
func (p *Pipeline) WithWorkerPoolSize(n int) *Pipeline {
	p.workerPoolSize = n
	return p
}

// Run takes a raw job posting through every layer and returns the
// terminal TailoringArtifact. A SKIP-tier job short-circuits after tier
// routing: it never calls the bullet generator, grader, or improver, and
// is returned with IsTailored=false.
func (p *Pipeline) Run(ctx context.Context, job domain.JobRecord, candidateTitle string, cfg domain.RunConfig) (domain.TailoringArtifact, error) {
	jobTimeout := p.jobTimeout
	if cfg.BudgetSeconds > 0 {
		jobTimeout = time.Duration(cfg.BudgetSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	jobID := job.JobID
	sink := eventstream.New(p.gw.Logger(), jobID)

	artifact := domain.TailoringArtifact{JobID: jobID, CreatedAt: time.Now()}

	whitelist := p.library.Data.Skills.All()

	var jd domain.ExtractedJD
	err := sink.Timed("jd_structurer", func() (int, float64, []string, error) {
		inBefore, outBefore := p.gw.Spent()
		var err error
		jd, err = p.structurer.Structure(ctx, gateway.TierSilver, job, whitelist)
		inAfter, outAfter := p.gw.Spent()
		return (inAfter - inBefore) + (outAfter - outBefore), 0, nil, err
	})
	if err != nil {
		if gateway.KindOf(err) == gateway.KindSchemaMismatch {
			artifact.JD = jd
			artifact.Tier = domain.TierSkip
			artifact.IsTailored = false
			artifact.Degraded = append(artifact.Degraded, "jd_structurer: hard schema failure after retry budget, routed to SKIP")
			artifact.Trace = sink.Trace()
			return artifact, nil
		}
		artifact.Trace = sink.Trace()
		return artifact, errors.Wrap(err, "jd structuring failed")
	}
	artifact.JD = jd

	plan := tier.Route(jd.FitScore, cfg.TierOverride)
	artifact.Tier = plan.Tier
	sink.Record(eventstream.Event{Layer: "tier_router", Status: "completed"})

	if plan.Tier == domain.TierSkip {
		artifact.IsTailored = false
		artifact.Trace = sink.Trace()
		return artifact, nil
	}
	artifact.IsTailored = true

	searchQuery := structurerQuery(jd)
	candidates, err := p.library.Search(ctx, searchQuery, jd.MustHaveKeywords, len(p.library.Data.Achievements))
	if err != nil {
		artifact.Trace = sink.Trace()
		return artifact, errors.Wrap(err, "evidence search failed")
	}
	achievements := make([]domain.AchievementRecord, 0, len(candidates))
	for _, c := range candidates {
		achievements = append(achievements, c.Achievement)
	}

	var roles []domain.RoleOutput
	err = sink.Timed("bullets", func() (int, float64, []string, error) {
		inBefore, outBefore := p.gw.Spent()
		var err error
		roles, err = p.generator.GenerateAll(ctx, achievements, jd, plan.Passes, plan.Synthesize, plan.GatewayTier, p.workerPoolSize)
		inAfter, outAfter := p.gw.Spent()

		var flags []string
		for _, r := range roles {
			if r.Degraded {
				flags = append(flags, "role "+r.RoleID+" degraded: fewer than minimum passing bullets")
			}
		}
		return (inAfter - inBefore) + (outAfter - outBefore), 0, flags, err
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			artifact.Partial = true
		} else {
			artifact.Trace = sink.Trace()
			return artifact, errors.Wrap(err, "bullet generation failed")
		}
	}
	for _, r := range roles {
		if r.Degraded {
			artifact.Degraded = append(artifact.Degraded, "role:"+r.RoleID)
		}
	}

	// roles arrive in curriculum file order, which is expected to already
	// be most-recent-first; stitch.Stitch relies on that ordering since
	// RoleOutput carries no parseable date.
	var body domain.StitchedBody
	sink.Record(eventstream.Event{Layer: "stitch", Status: "started"})
	body = stitch.Stitch(roles)
	sink.Record(eventstream.Event{Layer: "stitch", Status: "completed"})

	sink.Record(eventstream.Event{Layer: "profile", Status: "started"})
	prof := p.composer.Compose(body, jd, candidateTitle)
	sink.Record(eventstream.Event{Layer: "profile", Status: "completed"})

	guidance := lessons.Retrieve(ctx, p.lessonIdx, jd.SeniorityLevel)

	var result grader.Result
	err = sink.Timed("grade_and_improve", func() (int, float64, []string, error) {
		inBefore, outBefore := p.gw.Spent()
		var err error
		result, err = p.improver.Improve(ctx, plan.GatewayTier, jd, body, prof, achievements, guidance)
		inAfter, outAfter := p.gw.Spent()
		var flags []string
		if !result.Grade.Pass {
			flags = append(flags, "composite score below threshold after improvement loop")
		}
		return (inAfter - inBefore) + (outAfter - outBefore), 0, flags, err
	})
	if err != nil {
		artifact.Trace = sink.Trace()
		return artifact, errors.Wrap(err, "grading/improvement failed")
	}

	artifact.Body = result.Body
	artifact.Profile = result.Profile
	artifact.Grade = result.Grade
	artifact.GradeHistory = result.History
	artifact.Trace = sink.Trace()

	if ctx.Err() != nil {
		artifact.Partial = true
	}

	return artifact, nil
}

// structurerQuery builds the text used to search the evidence library: a
// simple join of everything the JD structurer extracted, which the
// library's hashing embedder and keyword bonus both key off vocabulary
// overlap with.
func structurerQuery(jd domain.ExtractedJD) string {
	parts := append([]string{jd.RoleTitle, jd.RoleCategory}, jd.Responsibilities...)
	parts = append(parts, jd.Qualifications...)
	parts = append(parts, jd.MustHaveKeywords...)
	parts = append(parts, jd.ImpliedPainPoints...)
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
