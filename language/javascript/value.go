package javascript

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/pontoon-dev/pontoon/interp"
)

// value wraps a guest value for conversion. goja values are garbage
// collected with the runtime, so Release has nothing to free; the type
// still honors the acquire/release contract.
type value struct {
	rt *goja.Runtime
	v  goja.Value
}

func (v *value) Export() (any, error) {
	if v.Empty() {
		return nil, nil
	}
	return v.v.Export(), nil
}

// Repr renders the value the way the bundled REPL displays it.
func (v *value) Repr() string {
	if v.Empty() {
		return ""
	}

	switch ex := v.v.Export().(type) {
	case string:
		return fmt.Sprintf("%q", ex)
	case []any:
		items := make([]string, len(ex))
		for i, item := range ex {
			items[i] = fmt.Sprintf("%v", item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	default:
		return v.v.String()
	}
}

// Render asks the value for a markup self-description: a callable
// renderMarkup() wins, then the toSVG() convention common to plotting
// values.
func (v *value) Render() (interp.Markup, bool) {
	obj, ok := v.v.(*goja.Object)
	if !ok {
		return interp.Markup{}, false
	}

	if fn, ok := goja.AssertFunction(obj.Get("renderMarkup")); ok {
		res, err := fn(obj)
		if err != nil {
			return interp.Markup{}, false
		}
		return markupFromValue(v.rt, res)
	}

	if fn, ok := goja.AssertFunction(obj.Get("toSVG")); ok {
		res, err := fn(obj)
		if err != nil {
			return interp.Markup{}, false
		}
		return interp.Markup{Kind: interp.MarkupHTML, Content: res.String()}, true
	}

	return interp.Markup{}, false
}

// markupFromValue accepts either a bare string or a {kind, content}
// object from renderMarkup().
func markupFromValue(rt *goja.Runtime, v goja.Value) (interp.Markup, bool) {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return interp.Markup{}, false
	}
	if obj, ok := v.(*goja.Object); ok {
		kind := obj.Get("kind")
		content := obj.Get("content")
		if kind != nil && content != nil && !goja.IsUndefined(kind) && !goja.IsUndefined(content) {
			return interp.Markup{Kind: kind.String(), Content: content.String()}, true
		}
	}
	return interp.Markup{Kind: interp.MarkupHTML, Content: v.String()}, true
}

func (v *value) Empty() bool {
	return v.v == nil || goja.IsUndefined(v.v) || goja.IsNull(v.v)
}

func (v *value) Release() {}
