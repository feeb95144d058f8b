package attach

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// onlineCPUPath is the kernel's online-CPU-set file: a comma-separated
// list of CPU numbers and ranges ("0-3", "0,2-3", "0").
const onlineCPUPath = "/sys/devices/system/cpu/online"

// onlineCPUs reads and parses onlineCPUPath.
func onlineCPUs() ([]int, error) {
	b, err := os.ReadFile(onlineCPUPath)
	if err != nil {
		return nil, fmt.Errorf("attach: read online CPUs: %w", err)
	}
	return parseCPURange(strings.TrimSpace(string(b)))
}

// parseCPURange parses the range-list syntax used by onlineCPUPath
// (and /sys/fs/cgroup cpuset files, which share the same format).
func parseCPURange(spec string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		loN, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("attach: invalid cpu range %q: %w", part, err)
		}
		hiN := loN
		if isRange {
			hiN, err = strconv.Atoi(hi)
			if err != nil {
				return nil, fmt.Errorf("attach: invalid cpu range %q: %w", part, err)
			}
		}
		for c := loN; c <= hiN; c++ {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("attach: %q listed no CPUs", spec)
	}
	return out, nil
}
