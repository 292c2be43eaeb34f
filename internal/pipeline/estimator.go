package pipeline

import "math"

// model scores one transformed row. Regression models write a single value,
// classifiers write one probability per class.
type model interface {
	outputs() int
	score(x []float64, out []float64)
}

// leaf walks the tree for x and returns the leaf's value vector.
func (t *Tree) leaf(x []float64) []float64 {
	node := 0
	for t.ChildrenLeft[node] != -1 {
		// fitted trees compare single-precision inputs against their thresholds
		v := float64(float32(x[t.Feature[node]]))
		if v <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

type forestRegressor struct {
	trees []Tree
}

func (f *forestRegressor) outputs() int { return 1 }

func (f *forestRegressor) score(x []float64, out []float64) {
	var sum float64
	for i := range f.trees {
		sum += f.trees[i].leaf(x)[0]
	}
	out[0] = sum / float64(len(f.trees))
}

type forestClassifier struct {
	trees    []Tree
	nClasses int
}

func (f *forestClassifier) outputs() int { return f.nClasses }

func (f *forestClassifier) score(x []float64, out []float64) {
	for k := range out {
		out[k] = 0
	}
	for i := range f.trees {
		v := f.trees[i].leaf(x)
		var total float64
		for k := 0; k < f.nClasses; k++ {
			total += v[k]
		}
		if total <= 0 {
			continue
		}
		for k := 0; k < f.nClasses; k++ {
			out[k] += v[k] / total
		}
	}
	normalize(out)
}

type boosting struct {
	trees        []Tree
	groups       [][]int
	init         []float64
	learningRate float64
	nClasses     int // 0 for regression
}

func (b *boosting) outputs() int {
	if b.nClasses == 0 {
		return 1
	}
	return b.nClasses
}

func (b *boosting) raw(x []float64, g int) float64 {
	var sum float64
	for _, idx := range b.groups[g] {
		sum += b.trees[idx].leaf(x)[0]
	}
	return b.init[g] + b.learningRate*sum
}

func (b *boosting) score(x []float64, out []float64) {
	switch {
	case b.nClasses == 0:
		out[0] = b.raw(x, 0)
	case b.nClasses == 2:
		p := sigmoid(b.raw(x, 0))
		out[0], out[1] = 1-p, p
	default:
		for k := range out {
			out[k] = b.raw(x, k)
		}
		softmax(out)
	}
}

type linear struct {
	coef      [][]float64
	intercept []float64
	nClasses  int
}

func (l *linear) outputs() int {
	if l.nClasses == 0 {
		return 1
	}
	return l.nClasses
}

func (l *linear) decision(x []float64, r int) float64 {
	d := l.intercept[r]
	for i, c := range l.coef[r] {
		d += c * x[i]
	}
	return d
}

func (l *linear) score(x []float64, out []float64) {
	switch {
	case l.nClasses == 0:
		out[0] = l.decision(x, 0)
	case l.nClasses == 2:
		p := sigmoid(l.decision(x, 0))
		out[0], out[1] = 1-p, p
	default:
		for k := range out {
			out[k] = l.decision(x, k)
		}
		softmax(out)
	}
}

func newModel(task string, e *Estimator) model {
	nClasses := 0
	if task == TaskClassification {
		nClasses = len(e.Classes)
	}
	switch e.Kind {
	case EstimatorRandomForest:
		if nClasses == 0 {
			return &forestRegressor{trees: e.Trees}
		}
		return &forestClassifier{trees: e.Trees, nClasses: nClasses}
	case EstimatorGradientBoosting:
		return &boosting{
			trees:        e.Trees,
			groups:       e.boostingGroups(),
			init:         e.Init,
			learningRate: e.LearningRate,
			nClasses:     nClasses,
		}
	default:
		return &linear{coef: e.Coef, intercept: e.Intercept, nClasses: nClasses}
	}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func softmax(v []float64) {
	hi := math.Inf(-1)
	for _, x := range v {
		if x > hi {
			hi = x
		}
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - hi)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

// normalize rescales v to sum to 1. An all-zero vector becomes uniform.
func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		for i := range v {
			v[i] = 1 / float64(len(v))
		}
		return
	}
	for i := range v {
		v[i] /= sum
	}
}
