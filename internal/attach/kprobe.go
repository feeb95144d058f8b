package attach

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"

	"ply/internal/isa"
	"ply/internal/provider"
)

// availableFilterFunctions lists every kernel function that can carry
// a kprobe, one per line. A glob target is expanded against this list
// before being attached.
const availableFilterFunctions = "/sys/kernel/debug/tracing/available_filter_functions"

// hasGlobMeta reports whether s contains a shell-glob metacharacter,
// deciding whether a target needs expansion against the kernel's
// function list at all.
func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// filterFunctionNames reads one kernel function name per line (as
// available_filter_functions lists them, optionally followed by a
// module tag after a space) and returns every name pattern matches.
// Module-qualified symbols (containing a '.') are skipped, matching
// kprobe_attach_pattern's own `strchr(line, '.')` skip.
func filterFunctionNames(r io.Reader, pattern string) ([]string, error) {
	var matches []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, ' '); i >= 0 {
			line = line[:i]
		}
		if strings.Contains(line, ".") {
			continue
		}
		ok, err := filepath.Match(pattern, line)
		if err != nil {
			return nil, fmt.Errorf("attach: bad pattern %q: %w", pattern, err)
		}
		if ok {
			matches = append(matches, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("attach: pattern %q matched no kernel functions", pattern)
	}
	return matches, nil
}

// matchTargets resolves an attach target that may be a glob pattern
// into the concrete kernel function name(s) it covers. A plain target
// with no glob metacharacter is returned unchanged without even
// opening availableFilterFunctions.
func matchTargets(target string) ([]string, error) {
	if !hasGlobMeta(target) {
		return []string{target}, nil
	}
	f, err := os.Open(availableFilterFunctions)
	if err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	defer f.Close()
	return filterFunctionNames(f, target)
}

// Attach loads prog into the kernel under spec's probe type and
// attaches it to every kernel function spec.Target resolves to — a
// single function, or every match of a glob pattern. name labels the
// loaded program (truncated to the kernel's 15-character limit) and
// appears in attach-failure messages.
func (a *Attacher) Attach(name string, spec *provider.AttachSpec, prog *isa.Program) error {
	targets, err := matchTargets(spec.Target)
	if err != nil {
		return err
	}

	fd, err := loadProgram(prog, name, a.debug)
	if err != nil {
		return err
	}
	ebpfProg, err := ebpf.NewProgramFromFD(fd)
	if err != nil {
		return fmt.Errorf("attach: wrap loaded program %q: %w", name, err)
	}
	a.progs = append(a.progs, ebpfProg)

	for _, fn := range targets {
		var lnk link.Link
		var attachErr error
		if spec.Kind == "r" {
			lnk, attachErr = link.Kretprobe(fn, ebpfProg, nil)
		} else {
			lnk, attachErr = link.Kprobe(fn, ebpfProg, nil)
		}
		if attachErr != nil {
			return fmt.Errorf("attach: %s:%s: %w", name, fn, attachErr)
		}
		a.links = append(a.links, lnk)
	}
	return nil
}
