package assert

import (
	"fmt"
	"sync"

	"github.com/seelmesh/seel/internal/nvm"
)

// Global assertion state: a process-wide component with explicit
// init/teardown, matching the teacher's pattern for singletons that
// must still be resettable between tests.
var (
	mu         sync.Mutex
	active     *Log
	enabled    bool
	fileIDs    = map[string]int{}
	idToFile   = map[int]string{}
	nextFileID = 1
)

// Init wires the global assertion hook to dev and enables recording.
// Passing a nil dev disables recording entirely; Fail is then a no-op.
func Init(dev nvm.Device, enable bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = enable
	fileIDs = map[string]int{}
	idToFile = map[int]string{}
	nextFileID = 1
	if dev != nil {
		active = NewLog(dev)
	} else {
		active = nil
	}
}

// Fail records an invariant violation at file:line. Nothing is
// thrown; this is the continue-best-effort hook of spec section 7.
func Fail(file string, line int) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled || active == nil {
		return
	}
	id, ok := fileIDs[file]
	if !ok {
		id = nextFileID
		nextFileID++
		fileIDs[file] = id
		idToFile[id] = file
	}
	active.Add(id, line)
}

// PrintFails renders every currently-ringed assertion as "file:line".
func PrintFails() []string {
	mu.Lock()
	defer mu.Unlock()
	if active == nil {
		return nil
	}
	entries := active.Entries()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		file := idToFile[e.FileID]
		if file == "" {
			file = fmt.Sprintf("file#%d", e.FileID)
		}
		out = append(out, fmt.Sprintf("%s:%d", file, e.Line))
	}
	return out
}

// ClearGlobal clears the global log in place, per spec's
// init→add→print_nvm_fails→clear flow.
func ClearGlobal() {
	mu.Lock()
	defer mu.Unlock()
	if active != nil {
		active.Clear()
	}
}
