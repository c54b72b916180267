package tensor

import (
	"fmt"
	"sort"
)

// Bundle is a named-tensor mapping, the engine's only exchange format with
// the outside world. File encodings for bundles live with the importers, not
// here.
type Bundle map[string]*Tensor

// Names returns the tensor names in sorted order.
func (b Bundle) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close compares two bundles entry by entry using each tensor's default
// tolerance. Both must hold exactly the same names.
func (b Bundle) Close(want Bundle) error {
	if len(b) != len(want) {
		return fmt.Errorf("tensor: bundle size mismatch: %d vs %d entries", len(b), len(want))
	}
	for _, name := range b.Names() {
		w, ok := want[name]
		if !ok {
			return fmt.Errorf("tensor: unexpected bundle entry %q", name)
		}
		if err := Close(b[name], w, DefaultTolerance(b[name].DType())); err != nil {
			return fmt.Errorf("bundle entry %q: %w", name, err)
		}
	}
	return nil
}
