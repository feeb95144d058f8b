package output

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

// tracePipePath is the kernel's per-instance trace ring, the sink
// every printf() call writes to — a blocking read yields one line per
// available trace record.
const tracePipePath = "/sys/kernel/debug/tracing/trace_pipe"

// tailTracePipe reads tracePipePath line by line until ctx is
// cancelled, writing each line (ascii-escaped if configured) to
// d.out. The debugfs file blocks on read the same way a growing log
// file would under `tail -f`, so a plain bufio.Scanner loop over an
// already-open file is all tailing it needs.
func (d *Drainer) tailTracePipe(ctx context.Context) error {
	f, err := os.Open(tracePipePath)
	if err != nil {
		return fmt.Errorf("output: open trace_pipe: %w", err)
	}
	defer f.Close()

	go func() {
		<-ctx.Done()
		f.Close()
	}()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if d.ascii {
			line = asciiEscape(line)
		}
		fmt.Fprintln(d.out, line)
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}
