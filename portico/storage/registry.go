package storage

import (
	"sort"
	"sync"

	"github.com/porticolabs/portico/portico"
)

// Opener creates a Store at the given location.
type Opener func(path string, opts Options) (Store, error)

var (
	registryMu sync.RWMutex
	openers    = make(map[BackendKind]Opener)
	fileKind   = KindNone
)

// Register installs a backend opener. Backends call this from init, so
// the set of registered kinds is fixed by the build, not by runtime
// configuration.
func Register(kind BackendKind, fn Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	openers[kind] = fn
	if kind != KindMem {
		fileKind = kind
	}
}

// Open creates a Store of the requested kind. Requesting a kind that is
// not compiled into this build fails immediately with an
// unsupported-backend diagnostic rather than a failure deep inside the
// engine.
func Open(kind BackendKind, path string, opts Options) (Store, error) {
	registryMu.RLock()
	fn, ok := openers[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, portico.NewDiagnostic(
			portico.CategoryUnsupportedBackend,
			"storage::backend_not_compiled",
			"backend kind %q is not compiled into this build (available: %v)",
			kind, Available())
	}
	return fn(path, opts)
}

// Available lists the backend kinds linked into this build.
func Available() []BackendKind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]BackendKind, 0, len(openers))
	for k := range openers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// FileBackend reports the file-backed kind compiled into this build, or
// KindNone for memory-only builds.
func FileBackend() BackendKind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return fileKind
}
