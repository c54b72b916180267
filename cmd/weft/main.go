// Package main provides the weft inference engine CLI.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"k8s.io/klog/v2"

	"github.com/weft-ml/weft/codegen"
	"github.com/weft-ml/weft/declutter"
	"github.com/weft-ml/weft/exec"
	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/kernels"
	"github.com/weft-ml/weft/ops"
	"github.com/weft-ml/weft/tensor"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	cmd := "help"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	var err error
	switch cmd {
	case "version":
		fmt.Printf("weft %s\n", version)
	case "features":
		fmt.Printf("cpu features: %s\n", kernels.Detect())
		for _, k := range kernels.Registry() {
			fmt.Printf("  kernel %-16s priority %2d requires %s\n", k.Name(), k.Priority(), k.Requires())
		}
	case "plan":
		err = dumpPlan()
	case "selfcheck":
		err = selfcheck()
	default:
		fmt.Println("weft - typed-graph neural network inference")
		fmt.Printf("Version: %s\n\n", version)
		fmt.Println("Commands:")
		fmt.Println("  version    Show version")
		fmt.Println("  features   Show detected CPU features and the kernel table")
		fmt.Println("  plan       Compile the built-in demo model and dump its plan")
		fmt.Println("  selfcheck  Compare optimized against reference execution")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "weft: %v\n", err)
		os.Exit(1)
	}
}

// demoModel is a small windowed acoustic pipeline: splice 20 frames of 3
// features with 5 frames of left and 2 of right context, project through a
// dense layer and squash.
func demoModel() (*graph.Graph, error) {
	rng := rand.New(rand.NewSource(42))
	randTensor := func(shape tensor.Shape) *tensor.Tensor {
		vals := make([]float32, shape.NumElements())
		for i := range vals {
			vals[i] = rng.Float32()*2 - 1
		}
		return tensor.FromFloat32(shape, vals)
	}

	g := graph.New()
	x, err := g.AddInput("frames", graph.ShapedFact(tensor.Float32, tensor.Shape{20, 3}))
	if err != nil {
		return nil, err
	}
	cw, err := g.Add("splice", &ops.ContextWindow{Left: 5, Right: 2}, x.Outlet(0))
	if err != nil {
		return nil, err
	}
	w, err := g.Add("weights", &ops.Const{Value: randTensor(tensor.Shape{24, 8})})
	if err != nil {
		return nil, err
	}
	b, err := g.Add("bias", &ops.Const{Value: randTensor(tensor.Shape{8})})
	if err != nil {
		return nil, err
	}
	mm, err := g.Add("dense", &ops.MatMul{}, cw.Outlet(0), w.Outlet(0))
	if err != nil {
		return nil, err
	}
	sum, err := g.Add("dense_bias", &ops.Binary{Kind: ops.Add}, mm.Outlet(0), b.Outlet(0))
	if err != nil {
		return nil, err
	}
	act, err := g.Add("dense_act", &ops.Unary{Kind: ops.Tanh}, sum.Outlet(0))
	if err != nil {
		return nil, err
	}
	if err := g.SetOutputs(map[string]graph.Outlet{"out": act.Outlet(0)}); err != nil {
		return nil, err
	}
	return g, nil
}

func demoInput() tensor.Bundle {
	rng := rand.New(rand.NewSource(1))
	vals := make([]float32, 60)
	for i := range vals {
		vals[i] = rng.Float32()*2 - 1
	}
	return tensor.Bundle{"frames": tensor.FromFloat32(tensor.Shape{20, 3}, vals)}
}

func dumpPlan() error {
	g, err := demoModel()
	if err != nil {
		return err
	}
	if err := declutter.Run(g); err != nil {
		return err
	}
	plan, err := codegen.Compile(g, codegen.HostArch(), codegen.Options{})
	if err != nil {
		return err
	}
	fmt.Print(plan.String())
	return nil
}

func selfcheck() error {
	input := demoInput()

	ref, err := demoModel()
	if err != nil {
		return err
	}
	if err := declutter.Run(ref); err != nil {
		return err
	}
	refPlan, err := codegen.Reference(ref)
	if err != nil {
		return err
	}
	want, err := exec.New(refPlan).Run(input)
	if err != nil {
		return err
	}

	opt, err := demoModel()
	if err != nil {
		return err
	}
	if err := declutter.Run(opt); err != nil {
		return err
	}
	optPlan, err := codegen.Compile(opt, codegen.HostArch(), codegen.Options{})
	if err != nil {
		return err
	}
	got, err := exec.New(optPlan).Run(input)
	if err != nil {
		return err
	}
	if err := got.Close(want); err != nil {
		return err
	}

	// Chunked execution must agree with the batch result too.
	stream := exec.New(optPlan).NewStream()
	frames := input["frames"]
	var rows []float32
	total := 0
	for _, span := range [][2]int{{0, 7}, {7, 14}, {14, 20}} {
		chunk := tensor.New(tensor.Float32, tensor.Shape{span[1] - span[0], 3})
		copy(chunk.Bytes(), frames.Bytes()[span[0]*12:span[1]*12])
		var out tensor.Bundle
		if span[1] == 20 {
			out, err = stream.Finish(tensor.Bundle{"frames": chunk})
		} else {
			out, err = stream.Feed(tensor.Bundle{"frames": chunk})
		}
		if err != nil {
			return err
		}
		rows = append(rows, out["out"].Float32s()...)
		total += out["out"].Shape()[0]
	}
	chunked := tensor.FromFloat32(tensor.Shape{total, 8}, rows)
	if err := tensor.Close(chunked, want["out"], tensor.DefaultTolerance(tensor.Float32)); err != nil {
		return err
	}

	fmt.Printf("selfcheck ok: %d frames, optimized and chunked runs match reference (features %s)\n",
		total, kernels.Detect())
	return nil
}
