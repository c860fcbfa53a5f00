package xgboost

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rmera/boo"
)

// Format tags a gradient boosted multiclass artifact.
const Format = "boo-multiclass"

type artifact struct {
	Format       string    `json:"format"`
	FeatureNames []string  `json:"feature_names,omitempty"`
	Labels       []float64 `json:"labels,omitempty"`
	Model        string    `json:"model"`
}

// Model predicts the most probable class of a boosted tree ensemble. Labels,
// when set, map class index to the label returned to callers.
type Model struct {
	featureNames []string
	labels       []float64
	boost        *boo.MultiClass
}

// New wraps an in-memory booster.
func New(boost *boo.MultiClass, featureNames []string, labels []float64) (*Model, error) {
	if boost == nil {
		return nil, errors.New("nil booster")
	}
	return &Model{
		featureNames: append([]string(nil), featureNames...),
		labels:       append([]float64(nil), labels...),
		boost:        boost,
	}, nil
}

// Predict returns one label per row.
func (m *Model) Predict(rows [][]float64) ([]float64, error) {
	if m == nil || m.boost == nil {
		return nil, errors.New("nil model")
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		if n := len(m.featureNames); n > 0 && len(row) != n {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), n)
		}
		label, err := m.predictOne(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = label
	}
	return out, nil
}

func (m *Model) predictOne(row []float64) (float64, error) {
	probs := m.boost.PredictSingle(row)
	if len(probs) == 0 {
		return 0, errors.New("booster returned no class probabilities")
	}
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	class := best
	if classes := m.boost.ClassLabels(); best < len(classes) {
		class = classes[best]
	}
	if len(m.labels) == 0 {
		return float64(class), nil
	}
	if class < 0 || class >= len(m.labels) {
		return 0, fmt.Errorf("class %d has no label mapping", class)
	}
	return m.labels[class], nil
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.featureNames...)
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil || m.boost == nil {
		return nil, errors.New("nil model")
	}
	var buf bytes.Buffer
	if err := boo.JSONMultiClass(m.boost, "softmax", &buf); err != nil {
		return nil, err
	}
	return json.Marshal(artifact{
		Format:       Format,
		FeatureNames: m.featureNames,
		Labels:       m.labels,
		Model:        buf.String(),
	})
}

func UnmarshalBinary(blob []byte) (*Model, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, err
	}
	if a.Format != "" && a.Format != Format {
		return nil, fmt.Errorf("artifact format %q is not %s", a.Format, Format)
	}
	if strings.TrimSpace(a.Model) == "" {
		return nil, errors.New("artifact has no model")
	}
	boost, err := boo.UnJSONMultiClass(bufio.NewReader(strings.NewReader(a.Model)))
	if err != nil {
		return nil, fmt.Errorf("decode booster: %w", err)
	}
	return New(boost, a.FeatureNames, a.Labels)
}

// Load reads an artifact from r.
func Load(r io.Reader) (*Model, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return UnmarshalBinary(blob)
}
