package pipeline

import (
	"fmt"
	"math"
)

// Row is one input record in schema order. A NaN numeric value or an empty
// categorical value is missing and is filled by the fitted imputers.
type Row struct {
	Numeric     []float64
	Categorical []string
}

// preprocessor is the compiled form of the preprocess stage.
type preprocessor struct {
	numeric     []string
	categorical []string

	impute []float64
	mean   []float64
	scale  []float64

	catImpute []string
	// catIndex[j] maps a category of feature j to its column offset inside the block
	catIndex  []map[string]int
	catOffset []int
	width     int

	// source[c] names the input feature that produced transformed column c
	source []string
}

func newPreprocessor(p Preprocess) *preprocessor {
	pp := &preprocessor{
		numeric:     append([]string(nil), p.Numeric.Features...),
		categorical: append([]string(nil), p.Categorical.Features...),
		impute:      append([]float64(nil), p.Numeric.Impute...),
		mean:        append([]float64(nil), p.Numeric.Mean...),
		scale:       make([]float64, len(p.Numeric.Scale)),
		catImpute:   append([]string(nil), p.Categorical.Impute...),
	}
	for i, s := range p.Numeric.Scale {
		// a constant column is fitted with unit scale
		if s == 0 || math.IsNaN(s) {
			s = 1
		}
		pp.scale[i] = s
	}

	pp.source = append(pp.source, pp.numeric...)
	offset := len(pp.numeric)
	for j, cats := range p.Categorical.Categories {
		idx := make(map[string]int, len(cats))
		for k, c := range cats {
			if _, dup := idx[c]; !dup {
				idx[c] = k
			}
			pp.source = append(pp.source, pp.categorical[j])
		}
		pp.catIndex = append(pp.catIndex, idx)
		pp.catOffset = append(pp.catOffset, offset)
		offset += len(cats)
	}
	pp.width = offset
	return pp
}

func (pp *preprocessor) check(r Row) error {
	if len(r.Numeric) != len(pp.numeric) || len(r.Categorical) != len(pp.categorical) {
		return fmt.Errorf("row has %d numeric and %d categorical values, want %d and %d",
			len(r.Numeric), len(r.Categorical), len(pp.numeric), len(pp.categorical))
	}
	return nil
}

// transform writes the model input for r into dst, which must have length pp.width.
func (pp *preprocessor) transform(r Row, dst []float64) {
	for i, v := range r.Numeric {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = pp.impute[i]
		}
		dst[i] = (v - pp.mean[i]) / pp.scale[i]
	}
	for j := len(pp.numeric); j < pp.width; j++ {
		dst[j] = 0
	}
	for j, v := range r.Categorical {
		if v == "" {
			v = pp.catImpute[j]
		}
		if k, ok := pp.catIndex[j][v]; ok {
			dst[pp.catOffset[j]+k] = 1
		}
	}
}
