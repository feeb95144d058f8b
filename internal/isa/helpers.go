package isa

// Helper ids are fixed by the target kernel ABI exactly — never
// renumber these.
const (
	HelperMapLookupElem    int32 = 1
	HelperMapUpdateElem    int32 = 2
	HelperMapDeleteElem    int32 = 3
	HelperProbeRead        int32 = 4
	HelperKtimeGetNs       int32 = 5
	HelperTracePrintk      int32 = 6
	HelperGetCurrentPidTgid int32 = 14
	HelperGetCurrentUidGid  int32 = 15
	HelperGetCurrentComm    int32 = 16
	HelperGetStackid        int32 = 27
)

var helperNames = map[int32]string{
	HelperMapLookupElem:     "map_lookup_elem",
	HelperMapUpdateElem:     "map_update_elem",
	HelperMapDeleteElem:     "map_delete_elem",
	HelperProbeRead:         "probe_read",
	HelperKtimeGetNs:        "ktime_get_ns",
	HelperTracePrintk:       "trace_printk",
	HelperGetCurrentPidTgid: "get_current_pid_tgid",
	HelperGetCurrentUidGid:  "get_current_uid_gid",
	HelperGetCurrentComm:    "get_current_comm",
	HelperGetStackid:        "get_stackid",
}

// HelperName resolves a helper id to its symbolic name for the debug
// dump format; ok is false for unknown ids.
func HelperName(id int32) (string, bool) {
	name, ok := helperNames[id]
	return name, ok
}
