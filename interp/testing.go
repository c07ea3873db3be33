package interp

import "context"

// Fake is a scripted Interpreter for testing backend logic without a
// real language runtime. Unset hooks answer with zero values.
type Fake struct {
	Config Config

	EvalFunc     func(ctx context.Context, source string) (Value, error)
	CompleteFunc func(ctx context.Context, source string) ([]string, error)
	InvokeFunc   func(ctx context.Context, path []string, args []any, kwargs map[string]any) (Value, error)
	LoadFunc     func(ctx context.Context, source string) error

	Closed bool
}

// NewFakeFactory returns a Factory producing a single Fake, configured
// by setup after the backend's Config has been applied to it.
func NewFakeFactory(setup func(*Fake)) Factory {
	return func(cfg Config) (Interpreter, error) {
		f := &Fake{Config: cfg.WithDefaults()}
		if setup != nil {
			setup(f)
		}
		return f, nil
	}
}

func (f *Fake) Eval(ctx context.Context, source string) (Value, error) {
	if f.EvalFunc == nil {
		return nil, nil
	}
	return f.EvalFunc(ctx, source)
}

func (f *Fake) Complete(ctx context.Context, source string) ([]string, error) {
	if f.CompleteFunc == nil {
		return nil, nil
	}
	return f.CompleteFunc(ctx, source)
}

func (f *Fake) Invoke(ctx context.Context, path []string, args []any, kwargs map[string]any) (Value, error) {
	if f.InvokeFunc == nil {
		return nil, nil
	}
	return f.InvokeFunc(ctx, path, args, kwargs)
}

func (f *Fake) LoadModules(ctx context.Context, source string) error {
	if f.LoadFunc == nil {
		return nil
	}
	return f.LoadFunc(ctx, source)
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// FakeValue is a canned Value.
type FakeValue struct {
	Val      any
	Printed  string
	Mark     *Markup
	IsEmpty  bool
	Released bool
}

func (v *FakeValue) Export() (any, error) { return v.Val, nil }

func (v *FakeValue) Repr() string { return v.Printed }

func (v *FakeValue) Render() (Markup, bool) {
	if v.Mark == nil {
		return Markup{}, false
	}
	return *v.Mark, true
}

func (v *FakeValue) Empty() bool { return v.IsEmpty }

func (v *FakeValue) Release() { v.Released = true }
