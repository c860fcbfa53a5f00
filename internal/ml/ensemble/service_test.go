package ensemble

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/ml/models/logreg"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type fixedPredictor struct {
	labels []float64
	names  []string
	err    error
}

func (p fixedPredictor) Predict(rows [][]float64) ([]float64, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.labels[:len(rows)], nil
}

func (p fixedPredictor) FeatureNames() []string { return p.names }

func dates(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = time.Date(2026, 3, 1+i, 0, 0, 0, 0, time.UTC)
	}
	return out
}

func TestCombineProductRule(t *testing.T) {
	cases := []struct {
		dir, meta float64
		want      domain.Signal
	}{
		{2, 1, domain.SignalStrongBuy},
		{0, 1, domain.SignalStrongSell},
		{1, 1, domain.SignalNoAction},
		{2, 0, domain.SignalBuy},
		{0, 0, domain.SignalSell},
		{2, -1, domain.SignalNoAction},
		{0, -1, domain.SignalNoAction},
	}
	for _, c := range cases {
		dir, conf, sig, err := Combine(c.dir, c.meta)
		if err != nil {
			t.Fatalf("Combine(%v,%v): %v", c.dir, c.meta, err)
		}
		if sig != c.want || float64(sig) != dir*conf {
			t.Fatalf("Combine(%v,%v) = %v, want %v", c.dir, c.meta, sig, c.want)
		}
	}
	if _, _, _, err := Combine(5, 1); err == nil {
		t.Fatal("expected out-of-set signal error")
	}
}

func TestPredictMetaMinusOneZeroesSignal(t *testing.T) {
	svc := NewService(testTracer,
		fixedPredictor{labels: []float64{0, 2, 2}},
		fixedPredictor{labels: []float64{1, 1, -1}},
	)
	rows := [][]float64{{1}, {2}, {3}}
	preds, err := svc.Predict(context.Background(), dates(3), rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preds[0].Signal != domain.SignalStrongSell || preds[1].Signal != domain.SignalStrongBuy {
		t.Fatalf("unexpected signals %+v", preds)
	}
	if preds[2].Signal != domain.SignalNoAction || preds[2].Direction != 1 || preds[2].Confidence != 0 {
		t.Fatalf("expected zero signal when meta label is -1, got %+v", preds[2])
	}
	if !preds[2].Date.Equal(dates(3)[2]) {
		t.Fatalf("unexpected date %s", preds[2].Date)
	}
}

func TestPredictPropagatesModelFailure(t *testing.T) {
	svc := NewService(testTracer, fixedPredictor{err: errors.New("boom")}, fixedPredictor{labels: []float64{1}})
	if _, err := svc.Predict(context.Background(), dates(1), [][]float64{{1}}); err == nil {
		t.Fatal("expected direction model error")
	}
	if _, err := svc.Predict(context.Background(), dates(2), [][]float64{{1}}); err == nil {
		t.Fatal("expected date/row mismatch error")
	}
}

func TestCheckSchema(t *testing.T) {
	svc := NewService(testTracer,
		fixedPredictor{names: []string{"a", "b"}},
		fixedPredictor{},
	)
	if err := svc.CheckSchema([]string{"a", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := svc.CheckSchema([]string{"b", "a"})
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) || mismatch.Model != "direction" {
		t.Fatalf("expected direction schema mismatch, got %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	params := logreg.Params{Weights: []float64{1}, Means: []float64{0}, Stds: []float64{1}}

	direction, err := logreg.New(params, []string{"x"}, []float64{0, 2})
	if err != nil {
		t.Fatalf("new direction: %v", err)
	}
	meta, err := logreg.New(params, []string{"x"}, []float64{-1, 1})
	if err != nil {
		t.Fatalf("new meta: %v", err)
	}
	for name, m := range map[string]*logreg.Model{DirectionFile: direction, MetaFile: meta} {
		blob, err := m.MarshalBinary()
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), blob, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	svc, err := LoadDir(testTracer, dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if err := svc.CheckSchema([]string{"x"}); err != nil {
		t.Fatalf("unexpected schema error: %v", err)
	}
	preds, err := svc.Predict(context.Background(), dates(2), [][]float64{{5}, {-5}})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if preds[0].Signal != domain.SignalStrongBuy {
		t.Fatalf("expected strong buy for positive input, got %v", preds[0].Signal)
	}
	// negative input: direction 0 -> -1, meta -1 -> confidence 0
	if preds[1].Signal != domain.SignalNoAction {
		t.Fatalf("expected no action for negative input, got %v", preds[1].Signal)
	}
}

func TestLoadPredictorRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	if err := os.WriteFile(path, []byte(`{"format":"pickle"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadPredictor(path); err == nil {
		t.Fatal("expected unsupported format error")
	}
	if _, err := LoadDir(testTracer, t.TempDir()); err == nil {
		t.Fatal("expected missing artifact error")
	}
}
