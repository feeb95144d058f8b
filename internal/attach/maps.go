package attach

import (
	"fmt"

	"github.com/cilium/ebpf"

	"ply/internal/ast"
)

// defaultMapEntries bounds every script-declared map. ply's own maps
// are unbounded in principle (a hash grows with the cardinality of
// whatever key the probe happens to see), so this is a pragmatic cap,
// not a value read from anywhere in the DSL.
const defaultMapEntries = 4096

// stackDepth and stackMapEntries size the shared stack-trace map.
// stackDepth mirrors the kernel's own PERF_MAX_STACK_DEPTH.
const (
	stackDepth      = 127
	stackMapEntries = 4096
)

// mapSpecFor builds the kernel map spec for one script-declared map.
// Every map this back end creates — scalar accumulator or keyed — is
// addressed by a fixed-width key (see internal/lang/maps.go's
// keyShape), so a plain hash map serves both without a map-type
// decision needing to flow in from anywhere upstream.
func mapSpecFor(md *ast.MapDyn) *ebpf.MapSpec {
	name := md.Name
	if name == "" {
		name = "ply_scalar"
	}
	return &ebpf.MapSpec{
		Name:       name,
		Type:       ebpf.Hash,
		KeySize:    uint32(md.KeySize),
		ValueSize:  uint32(md.ValueSize),
		MaxEntries: defaultMapEntries,
	}
}

// CreateMaps creates one kernel hash map per descriptor in dyns and
// writes its fd back into MapDyn.FD, where internal/emit's LD_MAPFD
// instructions and internal/output's drain loop both expect to find
// it. Must run after internal/lang.Parse's map-inference pass and
// before any probe referencing these maps is compiled.
func (a *Attacher) CreateMaps(dyns []*ast.MapDyn) error {
	for _, md := range dyns {
		m, err := ebpf.NewMap(mapSpecFor(md))
		if err != nil {
			return fmt.Errorf("attach: create map %q: %w", md.Name, err)
		}
		md.FD = uint32(m.FD())
		a.maps[md.Name] = m
	}
	return nil
}

// EnsureStackMap creates the shared stack-trace map consumed by every
// probe that calls stackid(), the first time any probe needs it, and
// returns its fd for Provider.StackMapFD. Later calls are no-ops that
// return the same fd: one stack-trace map is shared by the whole
// script, not one per probe.
func (a *Attacher) EnsureStackMap() (uint32, error) {
	if a.stackMap != nil {
		return uint32(a.stackMap.FD()), nil
	}
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "ply_stackmap",
		Type:       ebpf.StackTrace,
		KeySize:    4,
		ValueSize:  8 * stackDepth,
		MaxEntries: stackMapEntries,
	})
	if err != nil {
		return 0, fmt.Errorf("attach: create stack map: %w", err)
	}
	a.stackMap = m
	return uint32(m.FD()), nil
}
