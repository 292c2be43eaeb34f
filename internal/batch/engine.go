// Package batch scores uploaded CSV tables against the loaded pipelines.
package batch

import (
	"bytes"
	"context"
	"io"
	"math"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/common/metrics"
	"credit-prediction/internal/common/observability"
	"credit-prediction/internal/common/requestid"
	"credit-prediction/internal/pipeline"
	"credit-prediction/internal/schema"
	"credit-prediction/internal/store"
)

const operation = "batch"

const (
	ColumnCreditLimit = "pred_credit_limit"
	ColumnTier        = "pred_tier"
	ProbaPrefix       = "proba_"
)

var missingMarkers = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "NaN": {}, "nan": {}, "null": {}, "NULL": {}, "None": {},
}

// IsMissing reports whether a cell holds one of the missing-value markers.
func IsMissing(cell string) bool {
	_, ok := missingMarkers[cell]
	return ok
}

// Summary describes a completed batch job.
type Summary struct {
	Kind       string   `json:"mode"`
	ModelName  string   `json:"model_name"`
	Rows       int      `json:"rows"`
	Appended   []string `json:"appended_columns"`
	DurationMS float64  `json:"duration_ms"`
	RequestID  string   `json:"request_id,omitempty"`
}

// Notifier is told about every successful batch job.
type Notifier interface {
	BatchScored(ctx context.Context, s *Summary)
}

type Engine struct {
	store      *store.Store
	chunkSize  int
	maxWorkers int
	obs        *observability.Observability
	notifier   Notifier
	logger     logger.Logger
}

type Option func(*Engine)

func WithObservability(o *observability.Observability) Option {
	return func(e *Engine) { e.obs = o }
}

func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.logger = l } }

func NewEngine(st *store.Store, cfg config.BatchConfig, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		chunkSize:  cfg.ChunkSize,
		maxWorkers: cfg.MaxWorkers,
		logger:     logger.NewNoOpLogger(),
	}
	if e.chunkSize < 1 {
		e.chunkSize = 1000
	}
	if e.maxWorkers < 1 {
		e.maxWorkers = 1
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score reads a CSV table from r, scores every row with the pipeline of the
// given kind and writes the augmented table to w. Nothing is written on error.
func (e *Engine) Score(ctx context.Context, kind string, r io.Reader, w io.Writer) (*Summary, error) {
	ctx, span := e.obs.StartSpan(ctx, "batch.score", attribute.String("kind", kind))
	defer span.End()

	start := time.Now()
	out, summary, err := e.score(ctx, kind, r)
	if err != nil {
		stdErr := errors.Normalize(operation, err)
		metrics.PredictionFailures.WithLabelValues(kind, string(stdErr.Code)).Inc()
		span.SetStatus(codes.Error, string(stdErr.Code))
		return nil, stdErr
	}

	var buf bytes.Buffer
	if err := out.Write(&buf); err != nil {
		return nil, errors.NewInternalError(operation, err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return nil, errors.NewInternalError(operation, err)
	}

	summary.DurationMS = float64(time.Since(start).Microseconds()) / 1000
	summary.RequestID = requestid.FromContext(ctx)
	span.SetAttributes(attribute.Int("rows", summary.Rows))

	metrics.BatchRowsScored.WithLabelValues(kind).Add(float64(summary.Rows))
	e.obs.RecordRowsScored(ctx, kind, summary.Rows)
	e.logger.Info("Batch scored", map[string]interface{}{
		"mode":       kind,
		"modelName":  summary.ModelName,
		"rows":       summary.Rows,
		"durationMs": summary.DurationMS,
		"requestId":  summary.RequestID,
	})
	if e.notifier != nil {
		e.notifier.BatchScored(ctx, summary)
	}
	return summary, nil
}

func (e *Engine) score(ctx context.Context, kind string, r io.Reader) (*Table, *Summary, error) {
	if !store.ValidKind(kind) {
		return nil, nil, errors.NewInvalidModeError(operation, kind)
	}
	p, err := e.store.Get(kind)
	if err != nil {
		return nil, nil, errors.NewNoPipelineLoadedError(operation, kind)
	}
	sc, err := e.store.Schema(kind)
	if err != nil {
		return nil, nil, errors.NewNoPipelineLoadedError(operation, kind)
	}

	in, err := ReadTable(r)
	if err != nil {
		return nil, nil, err
	}
	return e.ScoreTable(ctx, p, sc, in)
}

// ScoreTable scores in with p and returns a new table with the prediction
// columns appended, or replaced in place when in already has them.
func (e *Engine) ScoreTable(ctx context.Context, p *pipeline.Pipeline, sc *schema.Schema, in *Table) (*Table, *Summary, error) {
	outCols := OutputColumns(p)
	out := newOutputTable(in, outCols)

	numIdx := make([]int, len(sc.NumericFeatures))
	for i, name := range sc.NumericFeatures {
		numIdx[i] = in.ColumnIndex(name)
	}
	catIdx := make([]int, len(sc.CategoricalFeatures))
	for i, name := range sc.CategoricalFeatures {
		catIdx[i] = in.ColumnIndex(name)
	}

	n := len(in.Rows)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)
	for lo := 0; lo < n; lo += e.chunkSize {
		if gctx.Err() != nil {
			break
		}
		lo, hi := lo, min(lo+e.chunkSize, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows := make([]pipeline.Row, 0, hi-lo)
			for _, cells := range in.Rows[lo:hi] {
				rows = append(rows, reconcile(cells, numIdx, catIdx))
			}
			return writeChunk(p, rows, out, lo)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	return out.table, &Summary{
		Kind:      p.Task(),
		ModelName: p.ModelName(),
		Rows:      n,
		Appended:  outCols,
	}, nil
}

// OutputColumns lists the prediction columns for p in output order.
func OutputColumns(p *pipeline.Pipeline) []string {
	if p.Task() == pipeline.TaskRegression {
		return []string{ColumnCreditLimit}
	}
	cols := []string{ColumnTier}
	for _, c := range p.Classes() {
		cols = append(cols, ProbaPrefix+c)
	}
	return cols
}

type outputTable struct {
	table *Table
	// pos[k] is the column index of the k-th output column
	pos []int
}

func newOutputTable(in *Table, outCols []string) *outputTable {
	header := append([]string(nil), in.Header...)
	pos := make([]int, len(outCols))
	for k, name := range outCols {
		idx := -1
		for i, h := range header {
			if h == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = len(header)
			header = append(header, name)
		}
		pos[k] = idx
	}

	rows := make([][]string, len(in.Rows))
	for i, cells := range in.Rows {
		row := make([]string, len(header))
		copy(row, cells)
		rows[i] = row
	}
	return &outputTable{table: &Table{Header: header, Rows: rows}, pos: pos}
}

func reconcile(cells []string, numIdx, catIdx []int) pipeline.Row {
	r := pipeline.Row{
		Numeric:     make([]float64, len(numIdx)),
		Categorical: make([]string, len(catIdx)),
	}
	for i, idx := range numIdx {
		r.Numeric[i] = math.NaN()
		if idx < 0 || IsMissing(cells[idx]) {
			continue
		}
		if v, ok := schema.ParseNumber(cells[idx]); ok {
			r.Numeric[i] = v
		}
	}
	for i, idx := range catIdx {
		if idx < 0 || IsMissing(cells[idx]) {
			continue
		}
		r.Categorical[i] = cells[idx]
	}
	return r
}

// writeChunk scores rows and stores the results at offset lo. Chunks own
// disjoint row ranges, so no locking is needed.
func writeChunk(p *pipeline.Pipeline, rows []pipeline.Row, out *outputTable, lo int) error {
	if p.Task() == pipeline.TaskRegression {
		values, err := p.Predict(rows)
		if err != nil {
			return err
		}
		for i, v := range values {
			out.table.Rows[lo+i][out.pos[0]] = formatFloat(v)
		}
		return nil
	}

	proba, err := p.PredictProba(rows)
	if err != nil {
		return err
	}
	classes := p.Classes()
	for i, dist := range proba {
		row := out.table.Rows[lo+i]
		row[out.pos[0]] = classes[pipeline.ArgMax(dist)]
		for k, v := range dist {
			row[out.pos[k+1]] = formatFloat(v)
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
