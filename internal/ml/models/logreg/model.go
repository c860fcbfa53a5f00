package logreg

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Format tags a binary logistic regression artifact.
const Format = "logreg"

// Params are the fitted coefficients. Inputs are standardized with Means and
// Stds before the linear term.
type Params struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Means   []float64 `json:"means"`
	Stds    []float64 `json:"stds"`
}

type artifact struct {
	Format       string    `json:"format"`
	FeatureNames []string  `json:"feature_names,omitempty"`
	Labels       []float64 `json:"labels,omitempty"`
	Model        Params    `json:"model"`
}

// Model is a binary classifier. It returns Labels[1] when the positive-class
// probability reaches 0.5 and Labels[0] otherwise.
type Model struct {
	featureNames []string
	labels       [2]float64
	params       Params
}

// New validates params. An empty labels slice means {0, 1}.
func New(params Params, featureNames []string, labels []float64) (*Model, error) {
	n := len(params.Weights)
	if n == 0 || len(params.Means) != n || len(params.Stds) != n {
		return nil, errors.New("invalid artifact")
	}
	if len(featureNames) > 0 && len(featureNames) != n {
		return nil, fmt.Errorf("artifact names %d features but has %d weights", len(featureNames), n)
	}
	m := &Model{featureNames: append([]string(nil), featureNames...), labels: [2]float64{0, 1}, params: params}
	switch len(labels) {
	case 0:
	case 2:
		m.labels = [2]float64{labels[0], labels[1]}
	default:
		return nil, fmt.Errorf("binary model needs 2 labels, got %d", len(labels))
	}
	return m, nil
}

// PredictProb is the positive-class probability of sample.
func (m *Model) PredictProb(sample []float64) float64 {
	if m == nil || len(sample) != len(m.params.Weights) {
		return 0.5
	}
	x := normalize(sample, m.params.Means, m.params.Stds)
	return sigmoid(dot(m.params.Weights, x) + m.params.Bias)
}

// Predict returns one label per row.
func (m *Model) Predict(rows [][]float64) ([]float64, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(m.params.Weights) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), len(m.params.Weights))
		}
		if m.PredictProb(row) >= 0.5 {
			out[i] = m.labels[1]
		} else {
			out[i] = m.labels[0]
		}
	}
	return out, nil
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.featureNames...)
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return json.Marshal(artifact{
		Format:       Format,
		FeatureNames: m.featureNames,
		Labels:       m.labels[:],
		Model:        m.params,
	})
}

func UnmarshalBinary(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	if a.Format != "" && a.Format != Format {
		return nil, fmt.Errorf("artifact format %q is not %s", a.Format, Format)
	}
	return New(a.Model, a.FeatureNames, a.Labels)
}

// Load reads an artifact from r.
func Load(r io.Reader) (*Model, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return UnmarshalBinary(blob)
}

func sigmoid(x float64) float64 {
	if x > 35 {
		return 1
	}
	if x < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func normalize(in, means, stds []float64) []float64 {
	out := make([]float64, len(in))
	for i := range in {
		std := stds[i]
		if std == 0 {
			std = 1
		}
		out[i] = (in[i] - means[i]) / std
	}
	return out
}
