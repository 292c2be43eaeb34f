package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// FormatVersion is the only artifact layout this package decodes.
const FormatVersion = 1

const (
	TaskRegression     = "regression"
	TaskClassification = "classification"
)

const (
	EstimatorRandomForest     = "random_forest"
	EstimatorGradientBoosting = "gradient_boosting"
	EstimatorLinear           = "linear"
)

// Artifact is the serialized form of a fitted pipeline.
type Artifact struct {
	FormatVersion int        `json:"format_version"`
	ModelName     string     `json:"model_name"`
	Task          string     `json:"task"`
	Preprocess    Preprocess `json:"preprocess"`
	Estimator     Estimator  `json:"estimator"`
}

type Preprocess struct {
	Numeric     NumericStage     `json:"numeric"`
	Categorical CategoricalStage `json:"categorical"`
}

// NumericStage is median imputation followed by standard scaling.
type NumericStage struct {
	Features []string  `json:"features"`
	Impute   []float64 `json:"impute"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

// CategoricalStage is most-frequent imputation followed by one-hot encoding.
// Values outside Categories encode as all zeros.
type CategoricalStage struct {
	Features   []string   `json:"features"`
	Impute     []string   `json:"impute"`
	Categories [][]string `json:"categories"`
}

type Estimator struct {
	Kind               string      `json:"kind"`
	Classes            []Label     `json:"classes,omitempty"`
	Trees              []Tree      `json:"trees,omitempty"`
	TreeGroups         [][]int     `json:"tree_groups,omitempty"`
	Init               []float64   `json:"init,omitempty"`
	LearningRate       float64     `json:"learning_rate,omitempty"`
	Coef               [][]float64 `json:"coef,omitempty"`
	Intercept          []float64   `json:"intercept,omitempty"`
	FeatureImportances []float64   `json:"feature_importances,omitempty"`
}

// Tree uses the flat node-array layout of a fitted decision tree.
// Node i is a leaf when ChildrenLeft[i] == -1.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// Label is a class label. Exporters may write labels as JSON strings, numbers or booleans.
type Label string

func (l *Label) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = Label(s)
		return nil
	}
	switch string(b) {
	case "true":
		*l = "True"
		return nil
	case "false":
		*l = "False"
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("class label %s is not a scalar", b)
	}
	*l = Label(b)
	return nil
}

// Load reads and decodes one artifact file. A missing file yields an error
// satisfying errors.Is(err, fs.ErrNotExist).
func Load(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Decode reads an artifact document and builds an immutable Pipeline from it.
func Decode(r io.Reader) (*Pipeline, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var a Artifact
	if err := dec.Decode(&a); err != nil {
		return nil, &FormatError{Reason: "decode", Err: err}
	}
	return New(&a)
}

// FormatError reports an artifact that is malformed or structurally inconsistent.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("incompatible artifact: %s: %v", e.Reason, e.Err)
	}
	return "incompatible artifact: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErrorf(format string, args ...interface{}) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// validate checks every structural invariant the scoring code relies on.
func (a *Artifact) validate() error {
	if a.FormatVersion != FormatVersion {
		return formatErrorf("unsupported format_version %d", a.FormatVersion)
	}
	if a.ModelName == "" {
		return formatErrorf("model_name is required")
	}
	if a.Task != TaskRegression && a.Task != TaskClassification {
		return formatErrorf("unknown task %q", a.Task)
	}

	num := a.Preprocess.Numeric
	if len(num.Impute) != len(num.Features) || len(num.Mean) != len(num.Features) || len(num.Scale) != len(num.Features) {
		return formatErrorf("numeric stage arrays must match %d features", len(num.Features))
	}
	cat := a.Preprocess.Categorical
	if len(cat.Impute) != len(cat.Features) || len(cat.Categories) != len(cat.Features) {
		return formatErrorf("categorical stage arrays must match %d features", len(cat.Features))
	}
	if len(num.Features)+len(cat.Features) == 0 {
		return formatErrorf("preprocess declares no features")
	}

	seen := make(map[string]struct{}, len(num.Features)+len(cat.Features))
	for _, name := range append(append([]string{}, num.Features...), cat.Features...) {
		if name == "" {
			return formatErrorf("empty feature name")
		}
		if _, dup := seen[name]; dup {
			return formatErrorf("feature %q declared twice", name)
		}
		seen[name] = struct{}{}
	}

	return a.Estimator.validate(a.Task, a.Preprocess.width())
}

func (p Preprocess) width() int {
	n := len(p.Numeric.Features)
	for _, cats := range p.Categorical.Categories {
		n += len(cats)
	}
	return n
}

func (e *Estimator) validate(task string, width int) error {
	nClasses := len(e.Classes)
	if task == TaskClassification {
		if nClasses < 2 {
			return formatErrorf("classification needs at least 2 classes, got %d", nClasses)
		}
		labels := make(map[Label]struct{}, nClasses)
		for _, c := range e.Classes {
			if _, dup := labels[c]; dup {
				return formatErrorf("class %q declared twice", c)
			}
			labels[c] = struct{}{}
		}
	} else if nClasses != 0 {
		return formatErrorf("regression estimator must not declare classes")
	}

	if e.FeatureImportances != nil && len(e.FeatureImportances) != width {
		return formatErrorf("feature_importances has %d entries, want %d", len(e.FeatureImportances), width)
	}

	switch e.Kind {
	case EstimatorRandomForest:
		if len(e.Trees) == 0 {
			return formatErrorf("random_forest has no trees")
		}
		valueWidth := 1
		if task == TaskClassification {
			valueWidth = nClasses
		}
		for i := range e.Trees {
			if err := e.Trees[i].validate(width, valueWidth); err != nil {
				return formatErrorf("tree %d: %v", i, err)
			}
		}
	case EstimatorGradientBoosting:
		if len(e.Trees) == 0 {
			return formatErrorf("gradient_boosting has no trees")
		}
		if !(e.LearningRate > 0) {
			return formatErrorf("gradient_boosting learning_rate must be positive")
		}
		for i := range e.Trees {
			if err := e.Trees[i].validate(width, 1); err != nil {
				return formatErrorf("tree %d: %v", i, err)
			}
		}
		groups := e.boostingGroups()
		want := 1
		if task == TaskClassification && nClasses > 2 {
			want = nClasses
		}
		if len(groups) != want {
			return formatErrorf("gradient_boosting has %d tree groups, want %d", len(groups), want)
		}
		if len(e.Init) != want {
			return formatErrorf("gradient_boosting has %d init values, want %d", len(e.Init), want)
		}
		for g, group := range groups {
			for _, idx := range group {
				if idx < 0 || idx >= len(e.Trees) {
					return formatErrorf("tree group %d references tree %d of %d", g, idx, len(e.Trees))
				}
			}
		}
	case EstimatorLinear:
		rows := 1
		if task == TaskClassification && nClasses > 2 {
			rows = nClasses
		}
		if len(e.Coef) != rows || len(e.Intercept) != rows {
			return formatErrorf("linear estimator needs %d coef rows and intercepts", rows)
		}
		for i, row := range e.Coef {
			if len(row) != width {
				return formatErrorf("coef row %d has %d entries, want %d", i, len(row), width)
			}
		}
	default:
		return formatErrorf("unknown estimator kind %q", e.Kind)
	}
	return nil
}

// boostingGroups returns the tree indices per boosting output. A regression
// artifact may omit tree_groups, meaning every tree contributes to one output.
func (e *Estimator) boostingGroups() [][]int {
	if len(e.TreeGroups) > 0 {
		return e.TreeGroups
	}
	all := make([]int, len(e.Trees))
	for i := range all {
		all[i] = i
	}
	return [][]int{all}
}

func (t *Tree) validate(width, valueWidth int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays have different lengths")
	}
	for i := 0; i < n; i++ {
		left, right := t.ChildrenLeft[i], t.ChildrenRight[i]
		if left == -1 || right == -1 {
			if left != right {
				return fmt.Errorf("node %d has exactly one child", i)
			}
			if len(t.Value[i]) < valueWidth {
				return fmt.Errorf("leaf %d has %d values, want %d", i, len(t.Value[i]), valueWidth)
			}
			continue
		}
		// children always follow their parent, which also rules out cycles
		if left <= i || left >= n || right <= i || right >= n {
			return fmt.Errorf("node %d has out-of-range children %d, %d", i, left, right)
		}
		if f := t.Feature[i]; f < 0 || f >= width {
			return fmt.Errorf("node %d splits on feature %d of %d", i, f, width)
		}
	}
	return nil
}
