// Package output drains a running script's kernel-side state into
// readable text: the aggregated maps its probes declared, and the
// printf/trace lines those probes write to the kernel's trace buffer.
package output

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cilium/ebpf"
	"github.com/sirupsen/logrus"

	"ply/internal/ast"
)

// Drainer periodically dumps a script's declared maps and tails its
// trace_pipe output until its context is cancelled.
type Drainer struct {
	maps  map[string]*ebpf.Map
	dyns  map[string]*ast.MapDyn
	ascii bool
	log   logrus.FieldLogger
	out   io.Writer
}

// New returns a Drainer over maps (by name, as returned by
// internal/attach's Attacher.Maps) and their descriptors dyns (from
// script.Dyn.Maps). Every descriptor without a Dump/Compare pair
// already wired gets one built from its KeyType/ValueType here — see
// format.go. out receives every printed line; ascii forces non-ASCII
// bytes in string fields to print as \xNN escapes.
func New(maps map[string]*ebpf.Map, dyns []*ast.MapDyn, ascii bool, log logrus.FieldLogger, out io.Writer) *Drainer {
	byName := make(map[string]*ast.MapDyn, len(dyns))
	for _, d := range dyns {
		if d.Dump == nil || d.Compare == nil {
			wireFormatters(d, ascii)
		}
		byName[d.Name] = d
	}
	return &Drainer{maps: maps, dyns: byName, ascii: ascii, log: log, out: out}
}

// Run tails trace_pipe and periodically dumps every declared map,
// until ctx is cancelled. A cancellation is not an error: Run returns
// nil once both the trace_pipe tail and the dump ticker have stopped.
func (d *Drainer) Run(ctx context.Context, dumpInterval time.Duration) error {
	tailErr := make(chan error, 1)
	go func() { tailErr <- d.tailTracePipe(ctx) }()

	ticker := time.NewTicker(dumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-tailErr
			d.dumpMaps()
			return nil
		case err := <-tailErr:
			return err
		case <-ticker.C:
			d.dumpMaps()
		}
	}
}

func (d *Drainer) dumpMaps() {
	for name, m := range d.maps {
		if err := d.dumpMap(name, m); err != nil {
			d.log.WithField("map", name).WithError(err).Warn("output: map dump failed")
		}
	}
}

// dumpMap reads every key/value pair out of m, sorts them by value
// (descending, via the map's Compare) and writes one formatted line
// per entry through the map's Dump.
func (d *Drainer) dumpMap(name string, m *ebpf.Map) error {
	md := d.dyns[name]
	if md == nil {
		return fmt.Errorf("output: no descriptor for map %q", name)
	}

	type entry struct{ key, value []byte }
	var entries []entry

	iter := m.Iterate()
	var key, value []byte
	for iter.Next(&key, &value) {
		entries = append(entries, entry{
			key:   append([]byte(nil), key...),
			value: append([]byte(nil), value...),
		})
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("output: iterate map %q: %w", name, err)
	}
	if len(entries) == 0 {
		return nil
	}

	sortEntriesByValueDesc(entries, md.Compare)

	fmt.Fprintf(d.out, "\n@%s:\n", name)
	for _, e := range entries {
		fmt.Fprintf(d.out, "  %s\n", md.Dump(e.key, e.value))
	}
	return nil
}

func sortEntriesByValueDesc(entries []struct{ key, value []byte }, compare func(a, b []byte) int) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && compare(entries[j].value, entries[j-1].value) > 0; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
