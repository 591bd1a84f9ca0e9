package sbpfvm

import "github.com/xyproto/env/v2"

// Config controls loader, verifier, interpreter and JIT behavior, per
// spec.md §6's configuration table.
type Config struct {
	// EnableInstructionMeter, when false, means branches do not update the
	// meter; when true the meter is enforced and ExceededMaxInstructions
	// can be returned.
	EnableInstructionMeter bool

	// EnableInstructionTracing, when true, populates the trace log.
	EnableInstructionTracing bool

	// EnableSymbolAndSectionLabels decorates disassembly produced by
	// external tooling; the core only threads the flag through, it does
	// not itself disassemble anything.
	EnableSymbolAndSectionLabels bool

	// MaxCallDepth caps the frame stack.
	MaxCallDepth int

	// StackFrameSize is the per-frame reservation used in v1 (fixed
	// stride) stack semantics.
	StackFrameSize uint64

	// EnableSbpfV2, when true, means the stack pointer is managed
	// explicitly by the program (dynamic frames); when false, frames step
	// by StackFrameSize.
	EnableSbpfV2 bool

	// RejectBrokenELFs, when true, makes unresolved host-upcall symbols a
	// load-time failure; when false, such a call fails with
	// UnsupportedInstruction only when it is executed.
	RejectBrokenELFs bool
}

// DefaultConfig returns the configuration used when a caller does not ask
// for FromEnv. Values mirror the reference implementation's defaults.
func DefaultConfig() Config {
	return Config{
		EnableInstructionMeter:       true,
		EnableInstructionTracing:     false,
		EnableSymbolAndSectionLabels: false,
		MaxCallDepth:                 64,
		StackFrameSize:               4096,
		EnableSbpfV2:                 false,
		RejectBrokenELFs:             false,
	}
}

// FromEnv layers environment variable overrides on top of DefaultConfig.
// This is the one place this module actually imports
// github.com/xyproto/env/v2 — a dependency the teacher's go.mod already
// declares but never imports from its own source. Reading tunables from
// the process environment is exactly the role that package's API
// (env.Bool, env.Int, ...) is built for, so this wires it up for real
// rather than leaving it a dead require line.
func FromEnv() Config {
	cfg := DefaultConfig()
	if env.Has("SBPFVM_ENABLE_METER") {
		cfg.EnableInstructionMeter = env.Bool("SBPFVM_ENABLE_METER")
	}
	if env.Has("SBPFVM_TRACE") {
		cfg.EnableInstructionTracing = env.Bool("SBPFVM_TRACE")
	}
	if env.Has("SBPFVM_MAX_CALL_DEPTH") {
		cfg.MaxCallDepth = env.Int("SBPFVM_MAX_CALL_DEPTH", cfg.MaxCallDepth)
	}
	if env.Has("SBPFVM_STACK_FRAME_SIZE") {
		cfg.StackFrameSize = uint64(env.Int("SBPFVM_STACK_FRAME_SIZE", int(cfg.StackFrameSize)))
	}
	if env.Has("SBPFVM_SBPF_V2") {
		cfg.EnableSbpfV2 = env.Bool("SBPFVM_SBPF_V2")
	}
	if env.Has("SBPFVM_REJECT_BROKEN_ELFS") {
		cfg.RejectBrokenELFs = env.Bool("SBPFVM_REJECT_BROKEN_ELFS")
	}
	return cfg
}
