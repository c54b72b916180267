package codegen

import (
	"fmt"

	"github.com/weft-ml/weft/kernels"
)

// Arch describes the execution target a plan is compiled for. Plans compiled
// for one Arch are only valid on hosts providing at least those features.
type Arch struct {
	Features kernels.Feature
}

// HostArch probes the running CPU.
func HostArch() Arch {
	return Arch{Features: kernels.Detect()}
}

// Portable is the featureless target; only reference kernels qualify.
var Portable = Arch{}

func (a Arch) String() string {
	if a.Features == 0 {
		return "portable"
	}
	return a.Features.String()
}

// UnsupportedOperationError reports a kernel-bound node for which no kernel,
// not even a portable reference one, matches the signature.
type UnsupportedOperationError struct {
	Node string
	Sig  kernels.Signature
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("no kernel implements %s for node %s", e.Sig, e.Node)
}
