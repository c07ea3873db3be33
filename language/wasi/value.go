package wasi

import "github.com/pontoon-dev/pontoon/interp"

// value carries an already-converted guest value: the guest exports,
// formats and renders before replying, and releases its side of the
// handle when the reply frame goes out.
type value struct {
	reply *guestReply
}

func (v *value) Export() (any, error) {
	return v.reply.Value, nil
}

func (v *value) Repr() string {
	return v.reply.Repr
}

func (v *value) Render() (interp.Markup, bool) {
	if v.reply.Markup == nil {
		return interp.Markup{}, false
	}
	return *v.reply.Markup, true
}

func (v *value) Empty() bool {
	return v.reply.Empty
}

func (v *value) Release() {}
