package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"credit-prediction/internal/pipeline"
)

// ParseNumber parses a numeric cell. Surrounding whitespace is ignored.
// Empty, unparsable and non-finite values report false.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// NumericValue coerces a decoded JSON scalar for a numeric column. Anything
// that is not a usable number becomes NaN, the missing marker.
func NumericValue(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		if math.IsInf(x, 0) {
			return math.NaN()
		}
		return x
	case float32:
		return NumericValue(float64(x))
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case json.Number:
		if f, ok := ParseNumber(x.String()); ok {
			return f
		}
	case string:
		if f, ok := ParseNumber(x); ok {
			return f
		}
	case bool:
		if x {
			return 1
		}
		return 0
	}
	return math.NaN()
}

// CategoricalValue coerces a decoded JSON scalar for a categorical column.
// The empty string is the missing marker.
func CategoricalValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return CategoricalValue(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "True"
		}
		return "False"
	}
	return ""
}

// Row builds a pipeline row from a flat record. Columns absent from the record
// are missing; keys outside the schema are ignored.
func (s *Schema) Row(record map[string]interface{}) pipeline.Row {
	r := pipeline.Row{
		Numeric:     make([]float64, len(s.NumericFeatures)),
		Categorical: make([]string, len(s.CategoricalFeatures)),
	}
	for i, name := range s.NumericFeatures {
		v, ok := record[name]
		if !ok {
			r.Numeric[i] = math.NaN()
			continue
		}
		r.Numeric[i] = NumericValue(v)
	}
	for i, name := range s.CategoricalFeatures {
		r.Categorical[i] = CategoricalValue(record[name])
	}
	return r
}
