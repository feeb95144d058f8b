// Package layout implements the annotation (dyn layout) pass: the
// stack frame allocator, the per-statement register allocator, and
// the generic cross-storage-class data mover every higher-level
// emitter composes from.
package layout

import (
	"math/bits"

	"ply/internal/ast"
	"ply/internal/isa"
)

// AllRegsMask is the bitmask of every allocatable general-purpose
// register (r0..r9); r10, the frame pointer, is never a member.
const AllRegsMask uint16 = (1 << isa.NumGPRegs) - 1

// DynRegsMask is the bitmask of the provider-reserved "dyn regs"
// (r6..r8) set aside for values that must survive a helper call.
const DynRegsMask uint16 = (1 << (ast.DynRegHi + 1)) - (1 << ast.DynRegLo)

// HelperClobberMask is the bitmask of registers a helper call
// clobbers (r0..r5); callers must evict anything they need to keep
// across a CALL from this range before emitting it.
const HelperClobberMask uint16 = (1 << 6) - 1

// CtxRegMask is the bitmask of the probe context register (r9),
// which holds the pointer saved once in CompileProbe's prologue and
// is read directly, by hardcoded register number, for the entire
// probe body's lifetime (arg0..arg5/retval/stackid). It is never a
// candidate for general allocation, the same way r10 (the frame
// pointer) never is.
const CtxRegMask uint16 = 1 << isa.R9

// NewStatementRegSet returns the initial free-register mask for a
// fresh statement: every GP register except the provider's reserved
// dyn regs (handed out separately when a value must outlive a helper
// call) and the probe context register.
func NewStatementRegSet() uint16 {
	return AllRegsMask &^ DynRegsMask &^ CtxRegMask
}

// AcquireReg draws the lowest-numbered free register from *free,
// marking it used. ok is false if no register remains.
func AcquireReg(free *uint16) (isa.Reg, bool) {
	if *free == 0 {
		return 0, false
	}
	bit := bits.TrailingZeros16(*free)
	*free &^= 1 << uint(bit)
	return isa.Reg(bit), true
}

// ReleaseReg returns reg to the free set. Release is always deferred
// to end-of-statement rather than reclaimed the moment a value's last
// use is emitted.
func ReleaseReg(free *uint16, reg isa.Reg) {
	*free |= 1 << uint(reg)
}

// ReserveHelperClobbered temporarily clears r0-r5 from *free around a
// helper call emission, returning the subset that was actually free so
// the caller can restore it afterward.
func ReserveHelperClobbered(free *uint16) uint16 {
	saved := *free & HelperClobberMask
	*free &^= HelperClobberMask
	return saved
}

// RestoreHelperClobbered undoes ReserveHelperClobbered.
func RestoreHelperClobbered(free *uint16, saved uint16) {
	*free |= saved
}

// AcquireDynReg draws one of the provider-reserved dyn regs (r6..r8)
// for a value that must survive a helper call, independent of the
// statement's general free-register set.
func AcquireDynReg(used *uint16) (isa.Reg, bool) {
	free := DynRegsMask &^ *used
	if free == 0 {
		return 0, false
	}
	bit := bits.TrailingZeros16(free)
	*used |= 1 << uint(bit)
	return isa.Reg(bit), true
}

// StackFrame is the per-probe stack allocator: offsets are negative,
// 8-byte aligned, and monotonically decreasing as statements are
// visited.
type StackFrame struct {
	sp int
}

// Alloc reserves size bytes (rounded up to 8-byte alignment) and
// returns the new (negative) frame offset.
func (f *StackFrame) Alloc(size int) int {
	f.sp -= ast.AlignUp(size)
	return f.sp
}

// SP returns the current stack pointer (<=0); callers use this to
// snapshot a probe's frame size once layout finishes.
func (f *StackFrame) SP() int { return f.sp }
