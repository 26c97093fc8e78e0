package main

import (
	"flag"
	"fmt"
	"os"

	"minirt/pkg/config"
	"minirt/pkg/memory"
)

var (
	configPath = flag.String("config", "", "Path to YAML runtime config")
	demoMode   = flag.Bool("demo", false, "Run the walkthrough demo")
	stressMode = flag.Bool("stress", false, "Run the allocation stress driver")
	stressIter = flag.Int("n", 1000, "Stress iterations")
	threshold  = flag.Uint64("threshold", 0, "Override heap threshold in bytes")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "minirt - transparent stack/heap/refcount runtime core\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -demo                     # Frame/heap/collector walkthrough\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -stress -n 100000         # Allocation churn with periodic sweeps\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -demo -threshold 100      # Tiny threshold to watch sweeps fire\n", os.Args[0])
	}
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
			os.Exit(1)
		}
	}
	if *threshold > 0 {
		cfg.HeapThreshold = *threshold
	}

	ctx := memory.NewContext(memory.Options{
		StackCapacity: cfg.StackCapacity,
		FrameLocalCap: cfg.FrameLocalCap,
		HeapCapacity:  cfg.HeapCapacity,
		HeapThreshold: cfg.HeapThreshold,
	})

	switch {
	case *stressMode:
		runStress(ctx, *stressIter)
	case *demoMode:
		runDemo(ctx)
	default:
		flag.Usage()
		os.Exit(1)
	}
}

// runDemo walks through rooting, release, cascading free, threshold
// sweeps and the cyclic-leak limitation, dumping state at each step.
func runDemo(ctx *memory.Context) {
	fmt.Println("== minirt demo ==")
	fmt.Println()

	fmt.Println("-- scalars in a frame --")
	frame := mustOpen(ctx)
	a := mustAlloc(ctx, memory.TypeInt32)
	b := mustAlloc(ctx, memory.TypeInt64)
	mustAddLocal(frame, a)
	mustAddLocal(frame, b)

	objA, _ := ctx.Get(a)
	objB, _ := ctx.Get(b)
	if err := objA.WriteInt32(-123456); err != nil {
		fatal("write: %v", err)
	}
	if err := objB.WriteInt64(1 << 40); err != nil {
		fatal("write: %v", err)
	}
	v32, _ := objA.ReadInt32()
	v64, _ := objB.ReadInt64()
	fmt.Printf("a = %d (payload % x)\n", v32, objA.PayloadBytes())
	fmt.Printf("b = %d (payload % x)\n", v64, objB.PayloadBytes())
	dumpState(ctx)

	fmt.Println("-- composite with two children --")
	inner := mustOpen(ctx)
	arr, err := ctx.AllocateArray(2)
	if err != nil {
		fatal("allocate: %v", err)
	}
	c1 := mustAlloc(ctx, memory.TypeInt8)
	c2 := mustAlloc(ctx, memory.TypeInt16)
	mustAddLocal(inner, arr)
	if err := ctx.Heap.AddChild(arr, c1); err != nil {
		fatal("add child: %v", err)
	}
	if err := ctx.Heap.AddChild(arr, c2); err != nil {
		fatal("add child: %v", err)
	}
	dumpState(ctx)

	fmt.Println("-- inner frame closes: composite and children go --")
	inner.Close()
	dumpState(ctx)

	fmt.Println("-- threshold sweep over unrooted objects --")
	ctx.Heap.SetThreshold(ctx.Heap.TotalLiveBytes() + 100)
	for i := 0; i < 16; i++ {
		mustAlloc(ctx, memory.TypeInt64) // never rooted
	}
	dumpState(ctx)

	fmt.Println("-- outer frame closes --")
	frame.Close()
	dumpState(ctx)

	fmt.Println("-- cyclic composites leak, and the leak check says so --")
	cycleFrame := mustOpen(ctx)
	x, _ := ctx.AllocateArray(1)
	y, _ := ctx.AllocateArray(1)
	mustAddLocal(cycleFrame, x)
	mustAddLocal(cycleFrame, y)
	ctx.Heap.AddChild(x, y)
	ctx.Heap.AddChild(y, x)
	cycleFrame.Close()
	for _, leak := range ctx.LeakCheck() {
		fmt.Printf("leaked: %s\n", leak)
	}

	fmt.Println()
	printStats(ctx.Stats())
}

// runStress churns nested frames full of scalar and composite objects so
// the eager release path and the threshold sweep both get exercised.
func runStress(ctx *memory.Context, iterations int) {
	fmt.Printf("== stress: %d iterations ==\n", iterations)

	report := iterations / 10
	if report == 0 {
		report = 1
	}

	for i := 0; i < iterations; i++ {
		outer, err := ctx.OpenFrame()
		if err != nil {
			fatal("open frame: %v", err)
		}

		arr, err := ctx.AllocateArray(4)
		if err != nil {
			fatal("allocate: %v", err)
		}
		mustAddLocal(outer, arr)
		for j := 0; j < 4; j++ {
			child := mustAlloc(ctx, memory.TypeInt64)
			if err := ctx.Heap.AddChild(arr, child); err != nil {
				fatal("add child: %v", err)
			}
			obj, _ := ctx.Get(child)
			obj.WriteInt64(int64(i * j))
		}

		inner, err := ctx.OpenFrame()
		if err != nil {
			fatal("open frame: %v", err)
		}
		for j := 0; j < 8; j++ {
			h := mustAlloc(ctx, memory.TypeInt32)
			mustAddLocal(inner, h)
		}
		// Unrooted garbage for the sweep.
		mustAlloc(ctx, memory.TypeInt64)

		inner.Close()
		outer.Close()

		if *verbose && (i+1)%report == 0 {
			fmt.Printf("iter %d: live=%d bytes=%d\n",
				i+1, ctx.Heap.LiveCount(), ctx.Heap.TotalLiveBytes())
		}
	}

	ctx.Collect()
	leaks := ctx.LeakCheck()
	fmt.Printf("done: live=%d bytes=%d leaks=%d\n",
		ctx.Heap.LiveCount(), ctx.Heap.TotalLiveBytes(), len(leaks))
	printStats(ctx.Stats())
}

// dumpState prints the open frames and live heap objects. Presentation
// only; everything comes from the read-only introspection API.
func dumpState(ctx *memory.Context) {
	fmt.Printf("stack: depth=%d cursor=%d/%d\n",
		ctx.Stack.Depth(), ctx.Stack.Cursor(), ctx.Stack.Capacity())
	for i, f := range ctx.Stack.OpenFrames() {
		fmt.Printf("  frame %d: saved=%d locals=%v\n", i, f.OriginalPointer(), f.Locals())
	}
	fmt.Printf("heap: live=%d bytes=%d threshold=%d\n",
		ctx.Heap.LiveCount(), ctx.Heap.TotalLiveBytes(), ctx.Heap.Threshold())
	for _, info := range ctx.Heap.LiveObjects() {
		fmt.Printf("  #%d %s %s %s size=%d rc=%d children=%d rooted=%v\n",
			info.Handle, info.VarType, info.AllocationType, info.DataType,
			info.SizeInBytes, info.RefCount, info.ChildCount, info.HasStackReference)
	}
	fmt.Println()
}

func printStats(s memory.Stats) {
	fmt.Printf("stats: alloc=%d free=%d retain=%d release=%d sweeps=%d swept=%d triggers=%d\n",
		s.Allocations, s.Frees, s.Retains, s.Releases,
		s.SweepRuns, s.SweepFreed, s.ThresholdTriggers)
}

func mustOpen(ctx *memory.Context) *memory.Frame {
	f, err := ctx.OpenFrame()
	if err != nil {
		fatal("open frame: %v", err)
	}
	return f
}

func mustAlloc(ctx *memory.Context, t memory.DataType) memory.Handle {
	h, err := ctx.AllocatePrimitive(t)
	if err != nil {
		fatal("allocate %s: %v", t, err)
	}
	return h
}

func mustAddLocal(f *memory.Frame, h memory.Handle) {
	if err := f.AddLocal(h); err != nil {
		fatal("add local: %v", err)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
