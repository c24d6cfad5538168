package forloop

import "github.com/mlld-lang/mlld/internal/env"

// LoopFrame builds the read-only `@x.mx.loop` view for one item (spec
// §4.5: index/iteration/key/total exposed on every loop-bound variable).
func LoopFrame(item Item, total int) env.LoopFrame {
	return env.LoopFrame{
		Index:     item.Index,
		Iteration: item.Index + 1,
		Key:       item.Key,
		Total:     total,
	}
}

// Collect filters Skip outcomes and projects the remaining outputs, for
// the expression/comprehension forms ("for @x in @items when cond =>
// expr" / "for @x in @items => expr") which return an array rather than
// discarding results like the directive form does.
func Collect(outcomes []Outcome) []interface{} {
	out := make([]interface{}, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Skip {
			continue
		}
		out = append(out, o.Output.Data)
	}
	return out
}
