// Package provider implements the tracing back end's provider-dispatch
// layer: the per-namespace callback record (annotate/loc-assign/
// compile/setup/teardown) and the concrete kprobe/kretprobe providers
// with their builtin table.
//
// Provider satisfies internal/layout's and internal/emit's Provider
// interfaces structurally — neither package imports this one, so the
// dependency only ever points one way: provider -> layout/emit/isa/ast.
package provider

import (
	"strings"

	"ply/internal/ast"
	"ply/internal/cerr"
	"ply/internal/isa"
	"ply/internal/layout"
)

// scratchReg mirrors internal/emit's convention: r0 is always safe to
// clobber as a transit register, since every helper call clobbers it
// anyway.
const scratchReg = isa.R0

// Provider is one namespace's callback record. The zero value is not
// useful; construct with NewKprobeProvider/NewKretprobeProvider.
type Provider struct {
	name string
	kind string // "p" (kprobe) or "r" (kretprobe), the kprobe_events control-file type character

	// StackMapFD is the shared stack-trace map's file descriptor, used
	// by stackid()/KindStackID compilation. It is infrastructure
	// external to a single probe — one stack-trace map is shared by
	// every probe a provider compiles — so internal/driver sets it
	// once, from internal/attach's EnsureStackMap, before compiling any
	// probe that calls stackid().
	StackMapFD uint32
}

// NewKprobeProvider returns the provider registered under the
// "kprobe" namespace.
func NewKprobeProvider() *Provider { return &Provider{name: "kprobe", kind: "p"} }

// NewKretprobeProvider returns the provider registered under the
// "kretprobe" namespace. It shares every callback with kprobe except
// Setup's control-file type character and the builtins it permits
// (retval is only meaningful once the traced function has returned).
func NewKretprobeProvider() *Provider { return &Provider{name: "kretprobe", kind: "r"} }

// ProviderName satisfies ast.ProviderHandle.
func (pv *Provider) ProviderName() string { return pv.name }

// Registry is a namespace-keyed table of providers, built once at
// startup and handed to internal/layout.Annotate as a lookup closure.
type Registry struct {
	byName map[string]*Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Provider)}
}

// Register adds p, keyed by its own namespace name.
func (r *Registry) Register(p *Provider) {
	r.byName[p.name] = p
}

// Lookup resolves namespace to its registered provider.
func (r *Registry) Lookup(namespace string) (*Provider, bool) {
	p, ok := r.byName[namespace]
	return p, ok
}

// Defaults returns a registry pre-populated with the kprobe and
// kretprobe providers — the only two namespaces this back end
// supports.
func Defaults() *Registry {
	r := NewRegistry()
	r.Register(NewKprobeProvider())
	r.Register(NewKretprobeProvider())
	return r
}

// Annotate walks probe's predicate and statement subtrees, validating
// every builtin call against this provider's table and filling in its
// Dyn.Type/Size ahead of the generic size/type propagation pass. Both
// providers share this same walk; the only per-namespace variation is
// which builtins allowedKinds admits (see builtins.go's retval entry).
func (pv *Provider) Annotate(probe *ast.Node) error {
	if probe.Pred != nil {
		if err := pv.annotateWalk(probe.Pred); err != nil {
			return err
		}
	}
	for _, stmt := range probe.Children {
		if err := pv.annotateWalk(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (pv *Provider) annotateWalk(n *ast.Node) error {
	for _, c := range layout.Children(n) {
		if err := pv.annotateWalk(c); err != nil {
			return err
		}
	}
	switch n.Kind {
	case ast.KindCall:
		return pv.annotateCall(n)
	case ast.KindStackID, ast.KindStackMap:
		if n.Dyn == nil {
			n.Dyn = ast.NewDyn()
		}
		n.Dyn.Type = ast.TypeInt
		n.Dyn.Size = 8
	}
	return nil
}

func (pv *Provider) annotateCall(n *ast.Node) error {
	b, ok := lookupBuiltin(n.Name)
	if !ok {
		return cerr.New(cerr.KindUnknownBuiltin, n.Name, "provider %q has no builtin named %q", pv.name, n.Name)
	}
	if len(b.allowedKinds) > 0 && !containsString(b.allowedKinds, pv.kind) {
		return cerr.New(cerr.KindUnknownBuiltin, n.Name, "builtin %q is not valid for provider %q", n.Name, pv.name)
	}
	if n.Dyn == nil {
		n.Dyn = ast.NewDyn()
	}
	n.Dyn.Type = b.resultType
	n.Dyn.Size = b.resultSize
	if b.annotate != nil {
		return b.annotate(n)
	}
	return nil
}

// LocAssign satisfies internal/layout.Provider. It special-cases the
// one shape the generic policy can't express — a builtin call whose
// result is a string, which (like any string) must live on the stack
// — and otherwise defers entirely to layout.DefaultLocAssign, which
// already knows how to place every other node kind (map, rec, assign,
// binop, literal, builtin int result, ...).
func (pv *Provider) LocAssign(n *ast.Node, regs *uint16, frame *layout.StackFrame) error {
	if n.Kind == ast.KindCall && (n.Dyn.Type == ast.TypeStr || n.Name == "printf") {
		n.Dyn.Loc = ast.LocStack
		n.Dyn.Addr = frame.Alloc(n.Dyn.Size)
		return nil
	}
	return layout.DefaultLocAssign(n, regs, frame)
}

// Compile satisfies internal/emit.Provider. Stack-capture nodes
// (KindStackID/KindStackMap) bypass the name-keyed builtin table
// entirely, since they carry no call name to look up — every other
// call (including a method's nested aggregation call) dispatches
// through the table by n.Name.
func (pv *Provider) Compile(p *isa.Program, n *ast.Node) error {
	switch n.Kind {
	case ast.KindStackID, ast.KindStackMap:
		return pv.compileStackID(p, n)
	}
	b, ok := lookupBuiltin(n.Name)
	if !ok {
		return cerr.New(cerr.KindUnknownBuiltin, n.Name, "no compile entry for builtin %q", n.Name)
	}
	return b.compile(pv, p, n)
}

func (pv *Provider) compileStackID(p *isa.Program, n *ast.Node) error {
	if _, err := p.Emit(isa.MOV(isa.R1, isa.R9)); err != nil {
		return err
	}
	if _, err := p.EmitWide(isa.LD_MAPFD(isa.R2, pv.StackMapFD)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV_IMM(isa.R3, 0)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.CALL(isa.HelperGetStackid)); err != nil {
		return err
	}
	return layout.EmitXfer(p, n, regAt(isa.R0), scratchReg)
}

// AttachSpec is what Setup hands back to internal/attach: enough to
// resolve a probe spec's target (possibly a glob pattern) and know
// whether to attach as a kprobe ("p") or a kretprobe ("r"), without
// internal/attach needing to re-parse the probe's namespace string
// itself.
type AttachSpec struct {
	Kind   string // "p" or "r"
	Target string // the probe spec's function part, e.g. "sys_read" or "sys_*"
}

// Setup validates probe's spec string and returns the attach
// descriptor internal/attach needs to do the actual kernel-side work
// (BPF_PROG_LOAD and the kprobe/kretprobe attachment through
// cilium/ebpf's link package — see internal/attach). kprobe and
// kretprobe share this same body, differing only in the "p"/"r" type
// character passed through AttachSpec.Kind, so the kernel-side
// sequence itself lives only in internal/attach.
func (pv *Provider) Setup(probe *ast.Node) (*AttachSpec, error) {
	target := targetOf(probe.Name)
	if target == "" {
		return nil, cerr.New(cerr.KindUnknownBuiltin, probe.Name, "probe spec %q has no target function", probe.Name)
	}
	return &AttachSpec{Kind: pv.kind, Target: target}, nil
}

// Teardown is a no-op hook kept for symmetry with the original
// callback record's setup/teardown pair: the real per-probe resources
// (perf-event fds) are owned and released by internal/attach, not by
// the provider.
func (pv *Provider) Teardown(*AttachSpec) error { return nil }

func targetOf(probeSpec string) string {
	if i := strings.IndexByte(probeSpec, ':'); i >= 0 {
		return probeSpec[i+1:]
	}
	return ""
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// regAt builds a throwaway node that is already resident in register
// r, for use as an EmitXfer source/destination with no AST node of
// its own — the same idiom internal/emit/binop.go uses. Kind is
// deliberately KindNone: EmitXfer special-cases KindInt/KindStr
// regardless of Dyn, which a synthetic register reference must not
// trigger.
func regAt(r isa.Reg) *ast.Node {
	return &ast.Node{Kind: ast.KindNone, Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 8, Loc: ast.LocReg, Reg: int(r)}}
}
