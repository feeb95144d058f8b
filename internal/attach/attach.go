// Package attach loads a compiled probe program into the kernel,
// attaches it to its kprobe/kretprobe target, and creates the kernel
// maps a script's probes share. It is the only package in this
// repository that touches the kernel's BPF syscall surface directly —
// everything upstream (internal/lang, internal/layout, internal/emit,
// internal/provider) works entirely on in-process data structures and
// never assumes it is running on a real kernel.
package attach

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
)

// Attacher owns every kernel-side resource a running script holds:
// created maps, loaded programs, and their kprobe/kretprobe links.
// Call Close when the script exits to release all of them.
type Attacher struct {
	debug bool

	maps     map[string]*ebpf.Map
	stackMap *ebpf.Map
	progs    []*ebpf.Program
	links    []link.Link

	numCPU int
}

// New returns an Attacher ready to create maps and attach probes.
// debug enables the BPF verifier log on a program load failure.
func New(debug bool) (*Attacher, error) {
	cpus, err := onlineCPUs()
	if err != nil {
		return nil, err
	}
	return &Attacher{
		debug:  debug,
		maps:   make(map[string]*ebpf.Map),
		numCPU: len(cpus),
	}, nil
}

// NumCPU returns the number of online CPUs seen at construction time.
// link.Kprobe/link.Kretprobe already fan a single attachment out
// across every CPU internally, so this package keeps no manual
// per-CPU attach loop of its own — NumCPU exists purely for startup
// logging (the driver's "cpus" field).
func (a *Attacher) NumCPU() int { return a.numCPU }

// Maps returns every kernel map created by CreateMaps, keyed by its
// script-level name, for internal/output's drain loop.
func (a *Attacher) Maps() map[string]*ebpf.Map { return a.maps }

// Close releases every link, program, and map this Attacher created.
// Errors are collected rather than short-circuited, so a failure
// tearing down one resource doesn't leak the rest.
func (a *Attacher) Close() error {
	var errs []error
	for _, l := range a.links {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range a.progs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.stackMap != nil {
		if err := a.stackMap.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, m := range a.maps {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("attach: close: %v", errs)
}
