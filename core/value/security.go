package value

import "sort"

// TaintLevel is a trust-level tag propagated from inputs to outputs.
type TaintLevel string

const (
	TaintTrusted       TaintLevel = "trusted"
	TaintUntrusted     TaintLevel = "untrusted"
	TaintCommandOutput TaintLevel = "command_output"
	TaintSrcMCP        TaintLevel = "src:mcp"
	TaintSrcNet        TaintLevel = "src:net"
	TaintSrcFS         TaintLevel = "src:fs"
)

// PolicyRef names the policy frame a descriptor was stamped under, if any.
type PolicyRef struct {
	Name string
}

// SecurityDescriptor travels with every StructuredValue and Variable. See
// spec §3.3. Merge combines two descriptors: union of labels, union of
// taint, ordered-deduplicated concatenation of sources, first non-empty
// policy wins.
type SecurityDescriptor struct {
	Labels  map[string]bool
	Taint   map[TaintLevel]bool
	Sources []string
	Policy  *PolicyRef
}

// NewDescriptor builds an empty descriptor, optionally seeded with taint levels.
func NewDescriptor(taint ...TaintLevel) SecurityDescriptor {
	d := SecurityDescriptor{
		Labels: map[string]bool{},
		Taint:  map[TaintLevel]bool{},
	}
	for _, t := range taint {
		d.Taint[t] = true
	}
	return d
}

// Clone returns a deep copy so callers never share mutable maps.
func (d SecurityDescriptor) Clone() SecurityDescriptor {
	out := SecurityDescriptor{
		Labels:  make(map[string]bool, len(d.Labels)),
		Taint:   make(map[TaintLevel]bool, len(d.Taint)),
		Sources: append([]string(nil), d.Sources...),
		Policy:  d.Policy,
	}
	for k, v := range d.Labels {
		out.Labels[k] = v
	}
	for k, v := range d.Taint {
		out.Taint[k] = v
	}
	return out
}

// HasLabel reports whether a label is present.
func (d SecurityDescriptor) HasLabel(label string) bool {
	return d.Labels[label]
}

// HasTaint reports whether a taint level is present.
func (d SecurityDescriptor) HasTaint(t TaintLevel) bool {
	return d.Taint[t]
}

// WithLabel returns a copy of d with label added.
func (d SecurityDescriptor) WithLabel(label string) SecurityDescriptor {
	out := d.Clone()
	if out.Labels == nil {
		out.Labels = map[string]bool{}
	}
	out.Labels[label] = true
	return out
}

// WithSource returns a copy of d with a provenance annotation appended
// (deduplicated, order-preserving).
func (d SecurityDescriptor) WithSource(source string) SecurityDescriptor {
	out := d.Clone()
	for _, s := range out.Sources {
		if s == source {
			return out
		}
	}
	out.Sources = append(out.Sources, source)
	return out
}

// SortedLabels returns labels in deterministic order, for diagnostics/tests.
func (d SecurityDescriptor) SortedLabels() []string {
	labels := make([]string, 0, len(d.Labels))
	for l := range d.Labels {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// MergeDescriptors implements the merge rule from spec §3.3: union of
// labels, union of taint, ordered-dedup concat of sources, first non-empty
// policy wins. Invariant V1 requires this on every re-wrap after a
// computation boundary.
func MergeDescriptors(ds ...SecurityDescriptor) SecurityDescriptor {
	out := NewDescriptor()
	for _, d := range ds {
		for l := range d.Labels {
			out.Labels[l] = true
		}
		for t := range d.Taint {
			out.Taint[t] = true
		}
		for _, s := range d.Sources {
			out = out.WithSource(s)
		}
		if out.Policy == nil && d.Policy != nil {
			out.Policy = d.Policy
		}
	}
	return out
}
