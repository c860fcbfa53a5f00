package features

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ni225-oracle/internal/diag"
	"ni225-oracle/internal/frame"
)

// InputRows is how many trailing dates the ModelInput keeps.
const InputRows = 30

// MissingColumnError means the merged panel lacks a ModelInput column.
type MissingColumnError struct {
	Profile string
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("profile %s: merged panel is missing %s", e.Profile, strings.Join(e.Columns, ", "))
}

// Panel is the outcome of one assembly.
type Panel struct {
	// Merged holds every normalized column after alignment and forward-fill.
	Merged *frame.Frame
	// Input is the profile's ordered ModelInput over the last InputRows dates.
	Input *frame.Frame
}

// Assembler runs the ticker groups of a profile and aligns them by date.
type Assembler struct {
	builder  *Builder
	universe Universe
	tracer   trace.Tracer
}

func NewAssembler(builder *Builder, universe Universe, tracer trace.Tracer) *Assembler {
	return &Assembler{builder: builder, universe: universe, tracer: tracer}
}

func (a *Assembler) Universe() Universe { return a.universe }

// Assemble builds every group, merges them, normalizes names, clears
// infinities, forward-fills and selects the profile's schema.
func (a *Assembler) Assemble(ctx context.Context, profile Profile, manualOpen *float64, diags *diag.Collector) (*Panel, error) {
	ctx, span := a.tracer.Start(ctx, "features.assemble", trace.WithAttributes(attribute.String("profile", profile.Name)))
	defer span.End()

	groups, err := profile.Groups(a.universe)
	if err != nil {
		return nil, err
	}

	groupFrames := make([]*frame.Frame, 0, len(groups))
	for _, g := range groups {
		gf, err := a.buildGroup(ctx, g, manualOpen, diags)
		if err != nil {
			return nil, fmt.Errorf("build %s group: %w", g.Name, err)
		}
		groupFrames = append(groupFrames, gf)
	}

	merged, err := frame.Concat(groupFrames...)
	if err != nil {
		return nil, fmt.Errorf("merge groups: %w", err)
	}
	primary := a.universe.Primary.Symbol
	merged, err = merged.Rename(func(name string) string { return NormalizeColumn(name, primary) })
	if err != nil {
		return nil, fmt.Errorf("normalize columns: %w", err)
	}
	merged = merged.ReplaceInf().FFill()

	schema := profile.InputColumns(a.universe)
	if missing := merged.Missing(schema); len(missing) > 0 {
		return nil, &MissingColumnError{Profile: profile.Name, Columns: missing}
	}
	input, err := merged.Select(schema)
	if err != nil {
		return nil, err
	}
	input = input.Tail(InputRows)
	span.SetAttributes(attribute.Int("merged_rows", merged.Len()), attribute.Int("input_rows", input.Len()))
	return &Panel{Merged: merged, Input: input}, nil
}

func (a *Assembler) buildGroup(ctx context.Context, g Group, manualOpen *float64, diags *diag.Collector) (*frame.Frame, error) {
	frames := make([]*frame.Frame, 0, len(g.Tickers))
	for _, t := range g.Tickers {
		f, err := a.builder.Build(ctx, BuildRequest{
			Ticker:     t,
			Variant:    g.Variant,
			Columns:    g.Columns,
			ManualOpen: manualOpen,
		}, diags)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Symbol, err)
		}
		frames = append(frames, f)
	}
	merged, err := frame.Concat(frames...)
	if err != nil {
		return nil, err
	}
	return merged.FFill(), nil
}
