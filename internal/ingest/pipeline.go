// Package ingest loads per-region GeoJSON outlines into a display. Each file
// becomes one outline plus, when the region has a name, one label. Files that
// cannot be read or parsed are skipped and reported in the result sequence.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"globeview/internal/display"
	"globeview/internal/logging"
	"globeview/internal/metrics"
)

var (
	ErrFileRead = errors.New("geometry file read failed")
	ErrParse    = errors.New("geometry file parse failed")
)

// Target is the part of a display controller the pipeline submits to. Both
// calls must be safe from a background goroutine.
type Target interface {
	AddOutline(g orb.Geometry, style display.OutlineStyle) display.Handle
	AddLabels(labels []display.Label, style display.LabelStyle) display.Handle
}

// Region is one ingested file.
type Region struct {
	Path       string
	Geometry   orb.Geometry
	Attributes map[string]any
	// Name is the ADMIN attribute as text, empty when absent.
	Name  string
	Label *display.Label

	Outline     display.Handle
	LabelHandle display.Handle
}

// Result is the outcome for one file: a Region, or Err wrapping ErrFileRead
// or ErrParse.
type Result struct {
	Path   string
	Region *Region
	Err    error
}

func (r Result) Skipped() bool { return r.Err != nil }

type Pipeline struct {
	source  Source
	target  Target
	outline display.OutlineStyle
	label   display.LabelStyle
	metrics *metrics.Metrics
	log     zerolog.Logger
}

type Option func(*Pipeline)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithStyles(outline display.OutlineStyle, label display.LabelStyle) Option {
	return func(p *Pipeline) {
		p.outline = outline
		p.label = label
	}
}

func New(source Source, target Target, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:  source,
		target:  target,
		outline: display.DefaultOutlineStyle(),
		label:   display.DefaultLabelStyle(),
		log:     logging.Module("ingest"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Results yields one Result per listed file, submitting overlays as it goes.
// A listing failure yields a single skipped result. Cancelling ctx stops the
// sequence between files.
func (p *Pipeline) Results(ctx context.Context) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		p.walk(ctx, yield)
	}
}

// walk reports whether ctx stopped it before every file was visited.
func (p *Pipeline) walk(ctx context.Context, yield func(Result) bool) (canceled bool) {
	names, err := p.source.List()
	if err != nil {
		p.log.Error().Err(err).Msg("cannot list geometry files")
		yield(Result{Err: fmt.Errorf("list: %w: %v", ErrFileRead, err)})
		return false
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return true
		}
		if !yield(p.ingestFile(name)) {
			return false
		}
	}
	return false
}

func (p *Pipeline) ingestFile(path string) Result {
	data, err := p.source.Read(path)
	if err != nil {
		p.skip(path, metrics.ResultReadError, err)
		return Result{Path: path, Err: fmt.Errorf("%s: %w: %v", path, ErrFileRead, err)}
	}

	geom, attrs, err := Parse(data)
	if err != nil {
		p.skip(path, metrics.ResultParseErr, err)
		return Result{Path: path, Err: fmt.Errorf("%s: %w: %v", path, ErrParse, err)}
	}

	region := &Region{Path: path, Geometry: geom, Attributes: attrs}
	if name, ok := RegionName(attrs); ok {
		region.Name = name
	}

	// A region with no coordinates has nowhere to put its label.
	if region.Name != "" && !geom.Bound().IsEmpty() {
		region.Label = &display.Label{
			Text:       region.Name,
			Loc:        display.LabelAnchor(geom),
			Selectable: true,
		}
		region.LabelHandle = p.target.AddLabels([]display.Label{*region.Label}, p.label)
		if p.metrics != nil {
			p.metrics.LabelsAdded.Inc()
		}
	}

	region.Outline = p.target.AddOutline(geom, p.outline)
	if p.metrics != nil {
		p.metrics.OutlinesAdded.Inc()
		p.metrics.IngestFiles.WithLabelValues(metrics.ResultOK).Inc()
	}

	p.log.Debug().Str("file", path).Str("name", region.Name).Msg("region added")
	return Result{Path: path, Region: region}
}

func (p *Pipeline) skip(path, reason string, err error) {
	p.log.Warn().Err(err).Str("file", path).Str("reason", reason).Msg("skipping geometry file")
	if p.metrics != nil {
		p.metrics.IngestFiles.WithLabelValues(reason).Inc()
	}
}

// Summary tallies a finished run.
type Summary struct {
	Files    int
	Outlines int
	Labels   int
	Skipped []Result
	// Canceled is set when ctx ended before every file was visited.
	Canceled bool
}

// Run drains Results.
func (p *Pipeline) Run(ctx context.Context) Summary {
	var s Summary
	s.Canceled = p.walk(ctx, func(r Result) bool {
		if r.Path != "" {
			s.Files++
		}
		if r.Skipped() {
			s.Skipped = append(s.Skipped, r)
			return true
		}
		s.Outlines++
		if r.Region.Label != nil {
			s.Labels++
		}
		return true
	})
	p.log.Info().
		Int("files", s.Files).
		Int("outlines", s.Outlines).
		Int("labels", s.Labels).
		Int("skipped", len(s.Skipped)).
		Bool("canceled", s.Canceled).
		Msg("ingestion finished")
	return s
}

// Task is a background run that can be joined or cancelled.
type Task struct {
	cancel  context.CancelFunc
	done    chan struct{}
	summary Summary
}

// Start runs the pipeline on its own goroutine and returns immediately.
func (p *Pipeline) Start(ctx context.Context) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		t.summary = p.Run(ctx)
	}()
	return t
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel asks the run to stop before its next file.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the run ends.
func (t *Task) Wait() Summary {
	<-t.done
	return t.summary
}

// Shutdown cancels the run and waits for it, giving up when ctx ends.
func (t *Task) Shutdown(ctx context.Context) (Summary, error) {
	t.Cancel()
	select {
	case <-t.done:
		return t.summary, nil
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
}
