// Package driver is the top-level orchestration a command-line front
// end calls: parse a script, resolve its providers, compile and attach
// every probe, and hand back a Session the caller drains until it is
// told to stop. The per-probe compile+attach loop is soft-failure by
// default, controlled by Settings.Strict, rather than aborting the
// whole run on the first probe that fails.
package driver

import (
	"fmt"
	"strings"
	"time"

	"github.com/cilium/ebpf"
	"github.com/sirupsen/logrus"

	"ply/internal/ast"
	"ply/internal/attach"
	"ply/internal/emit"
	"ply/internal/lang"
	"ply/internal/layout"
	"ply/internal/provider"
)

// Settings configures one compile-and-attach run.
type Settings struct {
	// Debug turns on the BPF verifier log on a failed program load and
	// raises the driver's own log level.
	Debug bool
	// DumpOnly compiles every probe and prints its instruction listing
	// without attaching anything.
	DumpOnly bool
	// Ascii forces non-printable bytes in string output to print as
	// \xNN escapes.
	Ascii bool
	// Strict aborts the whole run on the first probe that fails to
	// compile, resolve, or attach. A false Strict logs the failure and
	// continues with the script's remaining probes.
	Strict bool
	// DumpInterval is how often aggregated maps are printed. Zero
	// selects DefaultDumpInterval.
	DumpInterval time.Duration
	// Timeout bounds how long a front end should keep a Session's
	// probes running before stopping it. Compile itself never reads
	// this field — it is carried on Settings purely so the whole
	// debug/dump/ascii/timeout record travels together, and the front
	// end that owns the drain loop's
	// context is what actually enforces it. Zero means run until
	// signalled.
	Timeout time.Duration
}

// DefaultDumpInterval is used when Settings.DumpInterval is zero.
const DefaultDumpInterval = time.Second

// probeFailure records one probe's compile/setup/attach error for a
// non-strict run's summary.
type probeFailure struct {
	Probe string
	Err   error
}

func (f probeFailure) String() string {
	return fmt.Sprintf("%s: %v", f.Probe, f.Err)
}

// attached is one probe that made it all the way through compile,
// provider setup, and kernel attach.
type attached struct {
	probe *ast.Node
	prov  *provider.Provider
	spec  *provider.AttachSpec
}

// Session owns every kernel-side resource a compiled script holds. The
// caller drains its maps (Maps, handed to internal/output's Drainer)
// until it decides to stop, then calls Close.
type Session struct {
	script   *ast.Node
	attacher *attach.Attacher
	attached []attached
	settings Settings
	log      logrus.FieldLogger

	Failures []probeFailure
}

// Compile parses src, resolves its providers, compiles and attaches
// every probe, and returns the running Session. On a Strict run the
// first probe failure aborts and returns that error; on a non-strict
// run every probe is attempted and failures are collected into
// Session.Failures instead of aborting.
func Compile(src string, settings Settings, log logrus.FieldLogger) (*Session, error) {
	if settings.DumpInterval == 0 {
		settings.DumpInterval = DefaultDumpInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	script, err := lang.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("driver: parse: %w", err)
	}

	registry := provider.Defaults()
	lookup := func(namespace string) (layout.Provider, bool) {
		return registry.Lookup(namespace)
	}

	attacher, err := attach.New(settings.Debug)
	if err != nil {
		return nil, fmt.Errorf("driver: %w", err)
	}
	log.WithField("cpus", attacher.NumCPU()).Debug("driver: attacher ready")

	if err := attacher.CreateMaps(script.Dyn.Maps); err != nil {
		return nil, fmt.Errorf("driver: %w", err)
	}

	if usesStackID(script) {
		fd, err := attacher.EnsureStackMap()
		if err != nil {
			return nil, fmt.Errorf("driver: %w", err)
		}
		for _, name := range []string{"kprobe", "kretprobe"} {
			if pv, ok := registry.Lookup(name); ok {
				pv.StackMapFD = fd
			}
		}
	}

	if err := layout.Annotate(script, lookup); err != nil {
		return nil, fmt.Errorf("driver: annotate: %w", err)
	}

	s := &Session{script: script, attacher: attacher, settings: settings, log: log}

	for _, probe := range script.Children {
		if probe.Kind != ast.KindProbe {
			continue
		}
		if err := s.compileAndAttachProbe(registry, probe); err != nil {
			if settings.Strict {
				s.attacher.Close()
				return nil, fmt.Errorf("driver: probe %q: %w", probe.Name, err)
			}
			s.Failures = append(s.Failures, probeFailure{Probe: probe.Name, Err: err})
			log.WithField("probe", probe.Name).WithError(err).Warn("driver: probe failed, continuing")
		}
	}

	if !settings.DumpOnly && len(s.attached) == 0 {
		s.attacher.Close()
		return nil, fmt.Errorf("driver: no probe attached successfully")
	}
	return s, nil
}

func (s *Session) compileAndAttachProbe(registry *provider.Registry, probe *ast.Node) error {
	prog, err := emit.CompileProbe(probe, s.settings.Debug)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	if s.settings.DumpOnly {
		fmt.Println(probe.Name)
		fmt.Println(prog.Dump())
		return nil
	}

	namespace := namespaceOf(probe.Name)
	prov, ok := registry.Lookup(namespace)
	if !ok {
		return fmt.Errorf("no provider registered for namespace %q", namespace)
	}

	spec, err := prov.Setup(probe)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	if err := s.attacher.Attach(probe.Name, spec, prog); err != nil {
		return fmt.Errorf("attach: %w", err)
	}

	s.attached = append(s.attached, attached{probe: probe, prov: prov, spec: spec})
	s.log.WithField("probe", probe.Name).Info("driver: probe attached")
	return nil
}

// Close tears down every provider's attach-time resources and every
// kernel resource the Session's Attacher created.
func (s *Session) Close() error {
	var errs []error
	for _, a := range s.attached {
		if err := a.prov.Teardown(a.spec); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.attacher.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("driver: close: %v", errs)
}

// Maps returns the session's attacher-owned kernel maps alongside
// their script-level descriptors, the exact pair internal/output.New
// takes to build a Drainer over this session.
func (s *Session) Maps() (map[string]*ebpf.Map, []*ast.MapDyn) {
	return s.attacher.Maps(), s.script.Dyn.Maps
}

func namespaceOf(probeSpec string) string {
	if i := strings.IndexByte(probeSpec, ':'); i >= 0 {
		return probeSpec[:i]
	}
	return probeSpec
}

func usesStackID(script *ast.Node) bool {
	for _, probe := range script.Children {
		if probe.Kind != ast.KindProbe {
			continue
		}
		if probe.Pred != nil && callsStackID(probe.Pred) {
			return true
		}
		for _, stmt := range probe.Children {
			if callsStackID(stmt) {
				return true
			}
		}
	}
	return false
}

func callsStackID(n *ast.Node) bool {
	if n == nil {
		return false
	}
	if n.Kind == ast.KindStackID || n.Kind == ast.KindStackMap {
		return true
	}
	for _, c := range layout.Children(n) {
		if callsStackID(c) {
			return true
		}
	}
	return false
}
