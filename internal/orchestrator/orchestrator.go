// Package orchestrator runs the analyzer over planned skill targets one at
// a time, with heartbeat progress and cooperative cancellation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/leppikallio/pai-opencode/internal/models"
	"github.com/leppikallio/pai-opencode/internal/observability/logging"
	"github.com/leppikallio/pai-opencode/internal/observability/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrSkillLoad marks a target the analyzer could not load. In list and
// directory mode such targets are skipped and the run continues; a single
// target that fails to load fails the run.
var ErrSkillLoad = errors.New("skill load error")

// Scanner scans one skill. Implementations must return promptly once ctx
// is cancelled.
type Scanner interface {
	Scan(ctx context.Context, t Target) (models.ScanResult, error)
}

// ScannerFunc adapts a function to Scanner.
type ScannerFunc func(ctx context.Context, t Target) (models.ScanResult, error)

func (f ScannerFunc) Scan(ctx context.Context, t Target) (models.ScanResult, error) {
	return f(ctx, t)
}

// Status is how a run ended.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

const (
	DefaultProgressInterval = 15 * time.Second
	DefaultJoinTimeout      = time.Second
)

// Config controls progress output. The zero value prints nothing.
// Skip warnings go to Warn, or to Out when Warn is nil, and are printed
// even when ShowProgress is false.
type Config struct {
	ShowProgress     bool
	ProgressInterval time.Duration
	JoinTimeout      time.Duration
	Out              io.Writer
	Warn             io.Writer
	Now              func() time.Time
}

// DefaultConfig prints progress to out.
func DefaultConfig(out io.Writer) Config {
	return Config{
		ShowProgress:     true,
		ProgressInterval: DefaultProgressInterval,
		JoinTimeout:      DefaultJoinTimeout,
		Out:              out,
	}
}

func (c Config) normalize() Config {
	if c.ProgressInterval < MinProgressInterval {
		c.ProgressInterval = MinProgressInterval
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = DefaultJoinTimeout
	}
	if c.Warn == nil {
		c.Warn = c.Out
	}
	if c.Warn == nil {
		c.Warn = io.Discard
	}
	if c.Out == nil || !c.ShowProgress {
		c.Out = io.Discard
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Outcome is the result of Run. Report is nil only when a single-target
// run was interrupted before producing a result.
type Outcome struct {
	Mode          Mode
	Status        Status
	Report        *models.Report
	Planned       int
	Skipped       []Skip
	InterruptedAt int
}

// Run scans plan's targets in order. Load failures are skipped in list and
// directory mode; any other scan error, or a load failure of a single
// target, stops the run and is returned alongside the partial outcome.
func Run(ctx context.Context, sc Scanner, plan *Plan, cfg Config) (*Outcome, error) {
	r := &runner{
		scanner: sc,
		cfg:     cfg.normalize(),
		log:     logging.From(ctx),
	}
	return r.run(ctx, plan)
}

// run keeps cfg and the writer private to one invocation.
type runner struct {
	scanner Scanner
	cfg     Config
	out     io.Writer
	warn    io.Writer
	log     logging.Logger
}

func (r *runner) run(ctx context.Context, plan *Plan) (*Outcome, error) {
	mu := &sync.Mutex{}
	r.out = &lockedWriter{mu: mu, w: r.cfg.Out}
	r.warn = &lockedWriter{mu: mu, w: r.cfg.Warn}
	total := len(plan.Targets)
	outcome := &Outcome{
		Mode:    plan.Mode,
		Status:  StatusCompleted,
		Report:  models.NewReport(),
		Planned: total,
		Skipped: append([]Skip(nil), plan.Skipped...),
	}

	for _, s := range plan.Skipped {
		fmt.Fprintf(r.warn, "[warn] skipping %s (%s)\n", s.Path, s.Reason)
		r.log.Event(ctx, "scan.target.skip", map[string]any{
			"level":  logging.LevelWarn,
			"path":   s.Path,
			"reason": s.Reason,
		})
	}
	if plan.Mode == ModeSingle && total == 1 {
		fmt.Fprintf(r.out, "[progress] scanning: %s\n", plan.Targets[0].Path)
	} else {
		fmt.Fprintf(r.out, "[progress] discovered %d skills\n", total)
	}

	for i, t := range plan.Targets {
		idx := i + 1
		if ctx.Err() != nil {
			r.interrupted(ctx, outcome, plan.Mode, idx, total)
			break
		}

		res, err := r.scanOne(ctx, t, idx, total)
		switch {
		case err == nil:
			outcome.Report.Add(res)
		case errors.Is(err, ErrSkillLoad) && plan.Mode == ModeSingle:
			outcome.Status = StatusFailed
			return outcome, fmt.Errorf("scan %s: %w", t.Path, err)
		case errors.Is(err, ErrSkillLoad):
			fmt.Fprintf(r.warn, "[%d/%d] skip load error: %s (%v)\n", idx, total, t.Path, err)
			r.log.Event(ctx, "scan.target.skip", map[string]any{
				"level": logging.LevelWarn,
				"skill": t.Name,
				"path":  t.Path,
				"error": err.Error(),
			})
			outcome.Skipped = append(outcome.Skipped, Skip{Path: t.Path, Reason: err.Error()})
			continue
		case ctx.Err() != nil:
			r.interrupted(ctx, outcome, plan.Mode, idx, total)
		default:
			outcome.Status = StatusFailed
			return outcome, fmt.Errorf("scan %s: %w", t.Path, err)
		}
		if outcome.Status == StatusInterrupted {
			break
		}
	}

	if outcome.Status == StatusInterrupted && plan.Mode == ModeSingle && outcome.Report.Len() == 0 {
		outcome.Report = nil
	}
	return outcome, nil
}

func (r *runner) interrupted(ctx context.Context, o *Outcome, mode Mode, idx, total int) {
	o.Status = StatusInterrupted
	o.InterruptedAt = idx
	if mode == ModeSingle {
		fmt.Fprintln(r.out, "[progress] interrupted by user during single-skill scan")
	} else {
		fmt.Fprintf(r.out, "[progress] interrupted by user at %d/%d; preserving partial report\n", idx, total)
	}
	r.log.Event(ctx, "scan.interrupted", map[string]any{
		"level":     logging.LevelWarn,
		"index":     idx,
		"total":     total,
		"completed": o.Report.Len(),
	})
}

type scanReply struct {
	res models.ScanResult
	err error
}

// scanOne runs one blocking scan with a heartbeat. The heartbeat is
// stopped and joined on every return path.
func (r *runner) scanOne(ctx context.Context, t Target, idx, total int) (res models.ScanResult, err error) {
	prefix := fmt.Sprintf("[%d/%d]", idx, total)
	start := r.cfg.Now()

	ctx, span := otel.StartSpan(ctx, "skillvet.scan.target",
		attribute.String("skillvet.skill", t.Name),
		attribute.String("skillvet.path", t.Path),
		attribute.Int("skillvet.index", idx),
	)
	defer func() { otel.EndSpan(span, err) }()

	r.log.Event(ctx, "scan.target.start", map[string]any{
		"skill": t.Name,
		"path":  t.Path,
		"index": idx,
		"total": total,
	})
	fmt.Fprintf(r.out, "%s scanning %s\n", prefix, t.Path)

	var mon *monitor
	if r.cfg.ShowProgress {
		mon = startMonitor(ctx, r.out, prefix, t.Name, r.cfg.ProgressInterval, r.cfg.Now)
	}
	defer func() {
		if mon != nil && !mon.Stop(r.cfg.JoinTimeout) {
			r.log.Warn("orchestrator", "progress monitor did not stop in time", "skill", t.Name)
		}
	}()

	reply := make(chan scanReply, 1)
	go func() {
		res, err := r.scanner.Scan(ctx, t)
		reply <- scanReply{res: res, err: err}
	}()

	select {
	case rep := <-reply:
		res, err = rep.res, rep.err
	case <-ctx.Done():
		select {
		case rep := <-reply:
			res, err = rep.res, rep.err
		default:
			err = ctx.Err()
		}
	}
	if err != nil {
		return models.ScanResult{}, err
	}

	elapsed := r.cfg.Now().Sub(start)
	if res.DurationSeconds == 0 {
		res.DurationSeconds = elapsed.Seconds()
	}
	if res.SkillName == "" {
		res.SkillName = t.Name
	}
	if res.SkillPath == "" {
		res.SkillPath = t.Path
	}

	fmt.Fprintf(r.out, "%s done %s | findings=%d max=%s | %ds\n",
		prefix, res.SkillName, len(res.Findings), res.MaxSeverity(), int(elapsed.Seconds()))
	r.log.Event(ctx, "scan.target.complete", map[string]any{
		"skill":        res.SkillName,
		"findings":     len(res.Findings),
		"max_severity": res.MaxSeverity().Label(),
		"duration_ms":  elapsed.Milliseconds(),
	})
	return res, nil
}
