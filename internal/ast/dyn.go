package ast

// Type is the semantic type of a node's value. It determines width and
// comparability.
type Type int

const (
	TypeNone Type = iota
	TypeInt
	TypeStr
	TypeRec
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeStr:
		return "str"
	case TypeRec:
		return "rec"
	default:
		return "none"
	}
}

// Loc is a node's storage class after annotation.
type Loc int

const (
	// LocNowhere means the node is unresolved — an error at emit time.
	LocNowhere Loc = iota
	// LocVirtual means the node produces no runtime value; emitters
	// must skip it.
	LocVirtual
	// LocReg means the value lives in a VM general-purpose register.
	LocReg
	// LocStack means the value lives at a negative frame offset.
	LocStack
)

func (l Loc) String() string {
	switch l {
	case LocVirtual:
		return "virtual"
	case LocReg:
		return "reg"
	case LocStack:
		return "stack"
	default:
		return "nowhere"
	}
}

// NumRegisters is the number of general-purpose registers the target
// VM exposes (R0..R9); R10 is the read-only frame pointer and is never
// a candidate for allocation.
const NumRegisters = 10

// DynRegLo/DynRegHi bound the provider-reserved "dyn regs" — registers
// 6 through 8 are reserved for caller-preserved values that must
// survive a helper call.
const (
	DynRegLo = 6
	DynRegHi = 8
)

// Dyn is the per-node storage descriptor: the heart of the layout
// model. It is interior-mutable, single-threaded
// data — the annotator fills it, emitters may mutate Reg for
// statement-local reuse, and nothing about it is ever shared across
// compilation units.
type Dyn struct {
	Type Type
	Size int // storage footprint in bytes, 8-byte aligned when stack-resident
	Loc  Loc
	Reg  int // valid iff Loc == LocReg; 0..9
	Addr int // valid iff Loc == LocStack; negative, 8-byte aligned

	// KeyAddr is valid on KindMap nodes only: the base address of the
	// contiguous stack region holding the map's key bytes (the node's
	// own Addr/Reg describe the map's *value*, looked up using this
	// key).
	KeyAddr int

	// FreeRegs is the per-statement bitmask of registers not yet in
	// use. Only meaningful on nodes that start a fresh statement scope
	// (probe bodies); child nodes read their statement's mask through
	// the layout package's allocator, not through this field directly.
	FreeRegs uint16

	// Probe variant extension.
	Provider     ProviderHandle
	ProviderPriv any
	StackPointer int // running sp for this probe, negative-growing

	// Script variant extension.
	Maps       []*MapDyn
	FmtTable   []string       // printf formats, ordered by first occurrence
	fmtIndex   map[string]int // dedup index into FmtTable
	NextFmtID  int
}

// ProviderHandle is an opaque reference to a provider registration,
// stored on a probe's Dyn so the emitter never has to re-resolve the
// namespace string. Concretely implemented by *provider.Provider; this
// package only needs the ability to hold and compare the handle.
type ProviderHandle interface {
	ProviderName() string
}

// NewDyn returns a zero-valued descriptor: Loc == LocNowhere, which is
// itself meaningful — it is an error for this location to survive to
// emit time on a non-virtual node.
func NewDyn() *Dyn {
	return &Dyn{}
}

// InternFormat returns the fmt_id for format, allocating a fresh id on
// first occurrence and returning the existing one on repeats — an
// ordered, deduplicated container keyed by first occurrence.
func (d *Dyn) InternFormat(format string) int {
	if d.fmtIndex == nil {
		d.fmtIndex = make(map[string]int)
	}
	if id, ok := d.fmtIndex[format]; ok {
		return id
	}
	id := d.NextFmtID
	d.NextFmtID++
	d.fmtIndex[format] = id
	d.FmtTable = append(d.FmtTable, format)
	return id
}

// MapDyn is the per-map descriptor: one per distinct map name
// referenced in the script. Its file descriptor is
// assigned by the external map-setup collaborator (internal/attach)
// before compilation and only ever read by the emitter.
type MapDyn struct {
	Name      string
	KeyType   Type
	KeySize   int
	ValueType Type
	ValueSize int
	FD        uint32

	// Dump/compare pair used by the output drainer (internal/output);
	// left nil until the drainer wires concrete implementations in.
	Dump    func(key, value []byte) string
	Compare func(a, b []byte) int
}

// AlignUp rounds n up to the VM's 8-byte stack alignment.
func AlignUp(n int) int {
	const align = 8
	return (n + align - 1) &^ (align - 1)
}
