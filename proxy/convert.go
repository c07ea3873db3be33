package proxy

import "github.com/pontoon-dev/pontoon/interp"

// convertValue shapes an already-held guest value per mode. It does
// not release v; that is the caller's scoped obligation.
func convertValue(v interp.Value, mode ResultMode) *ExecuteResult {
	res := &ExecuteResult{Mode: mode}

	switch mode {
	case ModeValue:
		ex, err := v.Export()
		if err != nil {
			// No faithful host equivalent: degrade to text rather
			// than fail the call.
			res.Value = v.Repr()
			return res
		}
		res.Value = ex

	case ModePrinted:
		res.Printed = v.Repr()

	case ModeMarkup:
		if m, ok := v.Render(); ok {
			res.Markup = &m
		} else {
			res.Markup = &interp.Markup{Kind: interp.MarkupText, Content: v.Repr()}
		}

	case ModeNone:
		// Nothing returned to the caller.
	}

	return res
}
