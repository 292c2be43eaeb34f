package metadata

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/database"
)

// Record is one row of a metrics table.
type Record = map[string]interface{}

// MetricsSource returns the evaluation table for one kind. A nil table with a
// nil error means the source has nothing for that kind.
type MetricsSource interface {
	Table(ctx context.Context, kind string) ([]Record, error)
}

// CSVSource reads the metrics tables exported next to the artifacts.
type CSVSource struct {
	paths map[string]string
}

func NewCSVSource(cfg config.ArtifactsConfig) *CSVSource {
	return &CSVSource{paths: map[string]string{
		config.KindRegression:     cfg.Path(cfg.RegressionMetrics),
		config.KindClassification: cfg.Path(cfg.ClassificationMetrics),
	}}
}

func (s *CSVSource) Table(_ context.Context, kind string) ([]Record, error) {
	path, ok := s.paths[kind]
	if !ok || path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	table := make([]Record, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		rec := make(Record, len(header))
		for i, name := range header {
			rec[name] = cellValue(cells[i])
		}
		table = append(table, rec)
	}
	return table, nil
}

// cellValue decodes finite numeric cells as numbers and empty cells as null.
// nan and inf cells stay strings so the table remains JSON-encodable.
func cellValue(cell string) interface{} {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v
	}
	return cell
}

const metricsQuery = `SELECT record FROM model_metrics WHERE task = $1 ORDER BY row_index`

// PostgresSource reads metrics tables from the model_metrics table, one JSONB record per row.
type PostgresSource struct {
	db *database.PostgresClient
}

func NewPostgresSource(db *database.PostgresClient) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Table(ctx context.Context, kind string) ([]Record, error) {
	records, err := s.db.QueryJSONRecords(ctx, metricsQuery, kind)
	if err != nil {
		return nil, fmt.Errorf("metrics for %s: %w", kind, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records, nil
}
