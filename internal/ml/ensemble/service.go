package ensemble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/ml/models/logreg"
	"ni225-oracle/internal/ml/models/xgboost"
)

// Artifact file names inside the model directory.
const (
	DirectionFile = "direction_classifier.json"
	MetaFile      = "meta_label_classifier.json"
)

// Predictor returns one class label per input row.
type Predictor interface {
	Predict(rows [][]float64) ([]float64, error)
}

// featureNamer is implemented by predictors whose artifact records the
// training schema.
type featureNamer interface {
	FeatureNames() []string
}

// SchemaMismatchError means an artifact was trained on different columns.
type SchemaMismatchError struct {
	Model    string
	Expected []string
	Got      []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s model expects %d features %v, input has %d %v", e.Model, len(e.Expected), e.Expected, len(e.Got), e.Got)
}

// Service combines a direction classifier (labels 0, 1, 2) with a meta-label
// classifier (labels -1, 1) into one bounded signal per row.
type Service struct {
	direction Predictor
	meta      Predictor
	tracer    trace.Tracer
}

func NewService(tracer trace.Tracer, direction, meta Predictor) *Service {
	return &Service{direction: direction, meta: meta, tracer: tracer}
}

// LoadDir loads both artifacts from dir.
func LoadDir(tracer trace.Tracer, dir string) (*Service, error) {
	direction, err := LoadPredictor(filepath.Join(dir, DirectionFile))
	if err != nil {
		return nil, fmt.Errorf("load direction model: %w", err)
	}
	meta, err := LoadPredictor(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, fmt.Errorf("load meta-label model: %w", err)
	}
	return NewService(tracer, direction, meta), nil
}

// LoadPredictor reads an artifact and picks the adapter from its format tag.
func LoadPredictor(path string) (Predictor, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var head struct {
		Format string `json:"format"`
	}
	if err := json.Unmarshal(blob, &head); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	switch head.Format {
	case xgboost.Format:
		return xgboost.UnmarshalBinary(blob)
	case logreg.Format:
		return logreg.UnmarshalBinary(blob)
	default:
		return nil, fmt.Errorf("%s: unsupported model format %q", filepath.Base(path), head.Format)
	}
}

// CheckSchema compares columns with the feature names recorded in each
// artifact. Artifacts without names are accepted.
func (s *Service) CheckSchema(columns []string) error {
	models := []struct {
		name string
		p    Predictor
	}{{"direction", s.direction}, {"meta-label", s.meta}}
	for _, m := range models {
		named, ok := m.p.(featureNamer)
		if !ok {
			continue
		}
		expected := named.FeatureNames()
		if len(expected) == 0 {
			continue
		}
		if !equalStrings(expected, columns) {
			return &SchemaMismatchError{Model: m.name, Expected: expected, Got: columns}
		}
	}
	return nil
}

// Predict runs both classifiers over rows and combines their labels.
func (s *Service) Predict(ctx context.Context, dates []time.Time, rows [][]float64) ([]domain.PredictionRow, error) {
	_, span := s.tracer.Start(ctx, "ensemble.predict", trace.WithAttributes(attribute.Int("rows", len(rows))))
	defer span.End()

	if len(dates) != len(rows) {
		return nil, fmt.Errorf("got %d dates for %d rows", len(dates), len(rows))
	}
	if len(rows) == 0 {
		return nil, errors.New("no rows to predict")
	}
	dirLabels, err := s.direction.Predict(rows)
	if err != nil {
		return nil, fmt.Errorf("direction model: %w", err)
	}
	metaLabels, err := s.meta.Predict(rows)
	if err != nil {
		return nil, fmt.Errorf("meta-label model: %w", err)
	}
	if len(dirLabels) != len(rows) || len(metaLabels) != len(rows) {
		return nil, fmt.Errorf("models returned %d and %d labels for %d rows", len(dirLabels), len(metaLabels), len(rows))
	}

	out := make([]domain.PredictionRow, len(rows))
	for i := range rows {
		direction, confidence, signal, err := Combine(dirLabels[i], metaLabels[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dates[i].Format(domain.DateLayout), err)
		}
		out[i] = domain.PredictionRow{Date: dates[i], Direction: direction, Confidence: confidence, Signal: signal}
	}
	return out, nil
}

// Combine maps a direction label in {0,1,2} to {-1,0,1}, a meta label in
// {-1,1} to a confidence in {0,1}, and returns their product.
func Combine(directionLabel, metaLabel float64) (float64, float64, domain.Signal, error) {
	direction := directionLabel - 1
	confidence := (metaLabel + 1) * 0.5
	signal := domain.Signal(direction * confidence)
	if signal == 0 {
		signal = 0 // drop the sign of -0
	}
	if !signal.IsValid() {
		return direction, confidence, 0, fmt.Errorf("signal %v from labels (%v, %v) is outside {-1, -0.5, 0, 0.5, 1}", float64(signal), directionLabel, metaLabel)
	}
	return direction, confidence, signal, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
