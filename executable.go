package sbpfvm

import (
	"errors"
	"fmt"

	elfpkg "github.com/xyproto/sbpfvm/elf"
	"github.com/xyproto/sbpfvm/interp"
	"github.com/xyproto/sbpfvm/isa"
	"github.com/xyproto/sbpfvm/jit"
	"github.com/xyproto/sbpfvm/memmap"
	"github.com/xyproto/sbpfvm/meter"
	"github.com/xyproto/sbpfvm/verifier"
)

// Sizes of the stack and heap regions Execute allocates afresh on every
// call. The input region is as long as the caller's RunOptions.Input; the
// stack and heap sizes are not configurable.
const (
	defaultStackSize = 64 * 1024
	defaultHeapSize  = 256 * 1024
)

// Executable is a loaded bytecode object somewhere along the
// load -> verify -> (optionally) JIT -> run pipeline. The zero value is
// not usable; construct one with Load.
type Executable struct {
	program  *isa.Program
	cfg      Config
	verified bool
	verifier string

	compiled *jit.Compiled
}

// Load parses and relocates data (an ELF object) into an Executable ready
// for Verify. It does not itself check structural invariants: an
// Executable that has not yet been verified can be inspected but not run.
func Load(data []byte, cfg Config) (*Executable, error) {
	program, err := elfpkg.Load(data, elfpkg.Config{RejectBrokenELFs: cfg.RejectBrokenELFs})
	if err != nil {
		return nil, translateLoadError(err)
	}
	return &Executable{program: program, cfg: cfg}, nil
}

// Disassemble renders the loaded program's text segment as one line per
// instruction. It works on an Executable that hasn't been verified yet,
// since disassembly is a read-only debugging aid, not part of the
// load/verify/run pipeline itself.
func (ex *Executable) Disassemble() []string {
	return isa.Disassemble(ex.program)
}

// Verify runs v over the loaded program. A program must pass Verify
// (with anything other than verifier.Tautology, per spec.md §4.D) before
// JIT or Execute will run it.
func (ex *Executable) Verify(v verifier.Verifier) error {
	if err := v.Verify(ex.program, verifier.Config{
		RejectBrokenELFs: ex.cfg.RejectBrokenELFs,
		EnableSbpfV2:     ex.cfg.EnableSbpfV2,
	}); err != nil {
		return translateVerifierError(err)
	}
	ex.verified = true
	ex.verifier = v.Name()
	return nil
}

// JIT compiles the program to native code. The executable must already
// have passed Verify with a non-Tautology verifier; JIT does not re-check
// structural invariants itself (spec.md §4.H).
func (ex *Executable) JIT() error {
	if !ex.verified {
		return fmt.Errorf("sbpfvm: JIT requires a verified program")
	}
	if ex.verifier == (verifier.Tautology{}).Name() {
		return fmt.Errorf("sbpfvm: JIT refuses a program only checked by %q", ex.verifier)
	}
	compiled, err := jit.Compile(ex.program, ex.cfg.MaxCallDepth, ex.cfg.StackFrameSize, ex.cfg.EnableSbpfV2)
	if err != nil {
		return translateJITError(err)
	}
	ex.compiled = compiled
	return nil
}

// Release frees any native code pages JIT allocated. Safe to call on an
// Executable that was never JIT'd.
func (ex *Executable) Release() error {
	if ex.compiled == nil {
		return nil
	}
	c := ex.compiled
	ex.compiled = nil
	return c.Release()
}

// defaultInstructionBudget is the meter's initial "remaining" value when
// a caller's RunOptions leaves MaxInstructions at zero. Every Execute
// call still brings its own *meter.Meter seeded from this budget (or the
// caller's own), per spec.md §5's "each thread brings its own mutable
// meter" — nothing here is shared across calls.
const defaultInstructionBudget = 10_000_000

// RunOptions supplies the per-invocation state Execute needs beyond what
// Load/Verify/JIT already fixed: the input buffer the program sees at
// isa.InputStart, the host upcalls it may call, the instruction budget
// this particular call's meter starts from, and whether this call
// should record a trace (honoured only when Config.EnableInstructionTracing
// is also set).
type RunOptions struct {
	Input           []byte
	InputReadOnly   bool // maps the input region read-only instead of spec.md §8's default writable mapping
	HostUpcalls     map[uint32]interp.HostUpcall
	MaxInstructions uint64 // 0 uses defaultInstructionBudget
	Trace           bool
}

// Execute runs the loaded, verified program once: via the JIT if JIT has
// already been called successfully, via the interpreter otherwise. Each
// call builds its own memory map, register file, meter and call stack,
// so one Executable can be run concurrently by multiple goroutines once
// loaded (spec.md's concurrency model) as long as JIT is not still in
// flight. The second return value is the number of instructions the run
// actually consumed (spec.md §6's "(instructions_executed, result)"),
// derived from how far the meter moved off its starting budget — it is
// accurate whether or not a trace was requested, and is always zero when
// EnableInstructionMeter is false, since a disabled meter never moves.
func (ex *Executable) Execute(opts RunOptions) (result uint64, instructionsExecuted uint64, trace []meter.TraceEntry, err error) {
	if !ex.verified {
		return 0, 0, nil, fmt.Errorf("sbpfvm: Execute requires a verified program")
	}
	if ex.verifier == (verifier.Tautology{}).Name() {
		return 0, 0, nil, fmt.Errorf("sbpfvm: Execute refuses a program only checked by %q", ex.verifier)
	}

	stack := make([]byte, defaultStackSize)
	heap := make([]byte, defaultHeapSize)
	input := opts.Input

	regions := []memmap.Region{
		{Name: "stack", HostBase: memmap.HostBaseFor(stack), VMBase: isa.StackStart, Length: uint64(len(stack)), Writable: true},
		{Name: "heap", HostBase: memmap.HostBaseFor(heap), VMBase: isa.HeapStart, Length: uint64(len(heap)), Writable: true},
	}
	if len(input) > 0 {
		regions = append(regions, memmap.Region{Name: "input", HostBase: memmap.HostBaseFor(input), VMBase: isa.InputStart, Length: uint64(len(input)), Writable: !opts.InputReadOnly})
	}
	for _, s := range ex.program.Sections {
		if len(s.Data) == 0 {
			continue
		}
		regions = append(regions, memmap.Region{Name: s.Name, HostBase: memmap.HostBaseFor(s.Data), VMBase: s.VMAddr, Length: uint64(len(s.Data)), Writable: s.Writable})
	}

	mm, err := memmap.New(regions)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("sbpfvm: building memory map: %w", err)
	}

	budget := opts.MaxInstructions
	if budget == 0 {
		budget = defaultInstructionBudget
	}
	met := meter.New(budget, ex.cfg.EnableInstructionMeter)
	var tracer *meter.Tracer
	if opts.Trace && ex.cfg.EnableInstructionTracing {
		tracer = meter.NewTracer()
	}

	initialSP := isa.StackStart + uint64(len(stack))
	vm := interp.New(ex.program, mm, met, tracer, opts.HostUpcalls, ex.cfg.MaxCallDepth, ex.cfg.StackFrameSize, ex.cfg.EnableSbpfV2, initialSP)

	var runErr error
	if ex.compiled != nil {
		result, runErr = jit.Run(ex.compiled, vm)
	} else {
		result, runErr = vm.Run()
	}
	instructionsExecuted = budget - met.Remaining()
	if runErr != nil {
		return 0, instructionsExecuted, tracer.Entries(), translateRunError(runErr)
	}
	return result, instructionsExecuted, tracer.Entries(), nil
}

// translateLoadError converts elf package error mirrors into the public
// sbpfvm.* error types (errors.go), so callers never need to import the
// elf package themselves to inspect what went wrong.
func translateLoadError(err error) error {
	var invalid *elfpkg.InvalidElf
	if errors.As(err, &invalid) {
		return &InvalidElf{Detail: invalid.Detail}
	}
	var reloc *elfpkg.RelocationFailure
	if errors.As(err, &reloc) {
		return &RelocationFailure{Detail: reloc.Detail}
	}
	var unresolved *elfpkg.UnresolvedSymbol
	if errors.As(err, &unresolved) {
		return &UnresolvedSymbol{Name: unresolved.Name, Code: unresolved.Code, FileOffset: unresolved.FileOffset}
	}
	return err
}

func translateVerifierError(err error) error {
	var verr *verifier.Error
	if errors.As(err, &verr) {
		return &VerifierRejected{Kind: string(verr.Kind), PC: verr.PC}
	}
	return err
}

// translateJITError and translateRunError share one translation table:
// the jit and interp packages mirror the exact same set of runtime error
// types (errors.go in each), since either one can be the execution
// strategy behind Execute.
func translateJITError(err error) error {
	return translateRunError(err)
}

// translateRunError converts whichever package's local error mirror
// interp.Run or jit.Run returned into the public sbpfvm.* type, so
// callers can type-switch on errors.go's types regardless of which
// execution strategy ran. interp and jit each declare their own mirror
// of the runtime error kinds they raise (package-cycle avoidance, same
// pattern as elf/errors.go), so each of those cases checks both;
// ExceededMaxInstructions and AccessViolation come from the shared meter
// and memmap packages and are checked once.
func translateRunError(err error) error {
	if err == nil {
		return nil
	}

	var interpDBZ *interp.DivideByZero
	var jitDBZ *jit.DivideByZero
	if errors.As(err, &interpDBZ) {
		return &DivideByZero{PC: interpDBZ.PC}
	}
	if errors.As(err, &jitDBZ) {
		return &DivideByZero{PC: jitDBZ.PC}
	}

	var interpDO *interp.DivideOverflow
	var jitDO *jit.DivideOverflow
	if errors.As(err, &interpDO) {
		return &DivideOverflow{PC: interpDO.PC}
	}
	if errors.As(err, &jitDO) {
		return &DivideOverflow{PC: jitDO.PC}
	}

	var interpII *interp.InvalidInstruction
	var jitII *jit.InvalidInstruction
	if errors.As(err, &interpII) {
		return &InvalidInstruction{PC: interpII.PC}
	}
	if errors.As(err, &jitII) {
		return &InvalidInstruction{PC: jitII.PC}
	}

	var interpUI *interp.UnsupportedInstruction
	var jitUI *jit.UnsupportedInstruction
	if errors.As(err, &interpUI) {
		return &UnsupportedInstruction{PC: interpUI.PC}
	}
	if errors.As(err, &jitUI) {
		return &UnsupportedInstruction{PC: jitUI.PC}
	}

	var interpCDE *interp.CallDepthExceeded
	var jitCDE *jit.CallDepthExceeded
	if errors.As(err, &interpCDE) {
		return &CallDepthExceeded{PC: interpCDE.PC, Limit: interpCDE.Limit}
	}
	if errors.As(err, &jitCDE) {
		return &CallDepthExceeded{PC: jitCDE.PC, Limit: jitCDE.Limit}
	}

	var interpCOT *interp.CallOutsideTextSegment
	var jitCOT *jit.CallOutsideTextSegment
	if errors.As(err, &interpCOT) {
		return &CallOutsideTextSegment{PC: interpCOT.PC, Target: interpCOT.Target}
	}
	if errors.As(err, &jitCOT) {
		return &CallOutsideTextSegment{PC: jitCOT.PC, Target: jitCOT.Target}
	}

	var interpEO *interp.ExecutionOverrun
	var jitEO *jit.ExecutionOverrun
	if errors.As(err, &interpEO) {
		return &ExecutionOverrun{PC: interpEO.PC}
	}
	if errors.As(err, &jitEO) {
		return &ExecutionOverrun{PC: jitEO.PC}
	}

	var interpSE *interp.SyscallException
	var jitSE *jit.SyscallException
	if errors.As(err, &interpSE) {
		return &SyscallException{PC: interpSE.PC, Inner: interpSE.Inner}
	}
	if errors.As(err, &jitSE) {
		return &SyscallException{PC: jitSE.PC, Inner: jitSE.Inner}
	}

	var meterErr *meter.ExceededMaxInstructions
	if errors.As(err, &meterErr) {
		return &ExceededMaxInstructions{PC: meterErr.PC}
	}

	var accessErr *memmap.AccessViolation
	if errors.As(err, &accessErr) {
		return &AccessViolation{
			PC:         accessErr.PC,
			Access:     accessErr.AccessKind.String(),
			VMAddr:     accessErr.VMAddr,
			Len:        accessErr.Len,
			RegionName: accessErr.RegionName,
		}
	}

	return err
}
