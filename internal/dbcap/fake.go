package dbcap

import (
	"context"
	"time"
)

// FakeHandle is an in-memory Handle for tests: Execute/Explain/Cost
// results are scripted per exact SQL text.
type FakeHandle struct {
	Results map[string]ExecResult
	Errors  map[string]error
	Plans   map[string]string
	Costs   map[string]float64
	Calls   []string
}

// NewFakeHandle builds an empty FakeHandle; populate its maps before use.
func NewFakeHandle() *FakeHandle {
	return &FakeHandle{
		Results: map[string]ExecResult{},
		Errors:  map[string]error{},
		Plans:   map[string]string{},
		Costs:   map[string]float64{},
	}
}

func (f *FakeHandle) Execute(_ context.Context, sql string, _ time.Duration) (ExecResult, error) {
	f.Calls = append(f.Calls, sql)
	if err, ok := f.Errors[sql]; ok {
		return ExecResult{}, err
	}
	return f.Results[sql], nil
}

func (f *FakeHandle) Explain(_ context.Context, sql string) (string, error) {
	return f.Plans[sql], nil
}

func (f *FakeHandle) Cost(_ context.Context, sql string) (float64, error) {
	return f.Costs[sql], nil
}

func (f *FakeHandle) Close() error { return nil }
