// Command sbpfrun loads, verifies and executes a BPF ELF object, the
// ambient CLI counterpart of original_source/cli/src/main.rs: a flag-based
// front end over the core package, grounded on the teacher's own
// flag-driven main.go rather than a cobra/clap-style framework.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xyproto/sbpfvm"
	"github.com/xyproto/sbpfvm/syscalls"
	"github.com/xyproto/sbpfvm/verifier"
)

const versionString = "sbpfrun 0.1.0"

func main() {
	var (
		elfPath    = flag.String("elf", "", "path to the BPF ELF object to run (required)")
		input      = flag.String("input", "", "input bytes for the program: a hex string, or @path to read from a file")
		useJIT     = flag.Bool("jit", false, "compile to native code instead of interpreting")
		trace      = flag.Bool("trace", false, "record and print an instruction trace")
		tautology  = flag.Bool("skip-verify", false, "accept the program unconditionally instead of running the structural verifier (debugging only)")
		maxDepth   = flag.Int("max-call-depth", 0, "override the configured call-depth limit (0 keeps the default)")
		disasm     = flag.Bool("disasm", false, "print the decoded instruction stream and exit, without running it")
		showVer    = flag.Bool("version", false, "print the version and exit")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVer {
		fmt.Println(versionString)
		return
	}

	if *elfPath == "" {
		usage()
		os.Exit(2)
	}

	if *disasm {
		if err := disassemble(*elfPath); err != nil {
			fmt.Fprintln(os.Stderr, "sbpfrun:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*elfPath, *input, *useJIT, *trace, *tautology, *maxDepth); err != nil {
		fmt.Fprintln(os.Stderr, "sbpfrun:", err)
		os.Exit(1)
	}
}

func disassemble(elfPath string) error {
	data, err := os.ReadFile(elfPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", elfPath, err)
	}
	ex, err := sbpfvm.Load(data, sbpfvm.FromEnv())
	if err != nil {
		return fmt.Errorf("loading: %w", err)
	}
	for _, line := range ex.Disassemble() {
		fmt.Println(line)
	}
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sbpfrun -elf <file> [flags]")
	flag.PrintDefaults()
}

func run(elfPath, inputSpec string, useJIT, trace, skipVerify bool, maxDepthOverride int) error {
	data, err := os.ReadFile(elfPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", elfPath, err)
	}

	cfg := sbpfvm.FromEnv()
	cfg.EnableInstructionTracing = cfg.EnableInstructionTracing || trace
	if maxDepthOverride > 0 {
		cfg.MaxCallDepth = maxDepthOverride
	}

	ex, err := sbpfvm.Load(data, cfg)
	if err != nil {
		return fmt.Errorf("loading: %w", err)
	}

	var v verifier.Verifier = verifier.Structural{}
	if skipVerify {
		v = verifier.Tautology{}
	}
	if err := ex.Verify(v); err != nil {
		return fmt.Errorf("verifying: %w", err)
	}

	if useJIT {
		if err := ex.JIT(); err != nil {
			return fmt.Errorf("compiling: %w", err)
		}
		defer ex.Release()
	}

	input, err := parseInput(inputSpec)
	if err != nil {
		return fmt.Errorf("parsing -input: %w", err)
	}

	result, executed, entries, err := ex.Execute(sbpfvm.RunOptions{
		Input:       input,
		HostUpcalls: syscalls.Registry(),
		Trace:       trace,
	})
	if trace {
		for _, e := range entries {
			fmt.Printf("pc=%-6d r0..r10=%v\n", e.PC, e.Regs)
		}
	}
	if err != nil {
		return fmt.Errorf("executing: %w", err)
	}

	fmt.Printf("result: %d (0x%x)\n", result, result)
	fmt.Printf("instructions executed: %d\n", executed)
	return nil
}

// parseInput accepts either a hex-encoded byte string or an @-prefixed
// file path, the same two forms original_source/cli/src/main.rs's -input
// flag takes.
func parseInput(spec string) ([]byte, error) {
	if spec == "" {
		return nil, nil
	}
	if strings.HasPrefix(spec, "@") {
		return os.ReadFile(spec[1:])
	}
	spec = strings.TrimPrefix(spec, "0x")
	if len(spec)%2 != 0 {
		spec = "0" + spec
	}
	buf := make([]byte, len(spec)/2)
	for i := range buf {
		v, err := strconv.ParseUint(spec[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", spec[i*2:i*2+2], err)
		}
		buf[i] = byte(v)
	}
	return buf, nil
}
