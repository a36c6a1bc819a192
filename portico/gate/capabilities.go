package gate

import (
	"github.com/porticolabs/portico/portico/engine"
	"github.com/porticolabs/portico/portico/storage"
)

// CapabilitySet reports what this build of the gateway can do: which
// file backend was compiled in and which optional feature flags are
// present. Hosts probe this before opening handles.
type CapabilitySet struct {
	BackendKind storage.BackendKind   `json:"backend_kind"`
	Backends    []storage.BackendKind `json:"backends"`
	Features    []string              `json:"features"`
}

// Capabilities describes the current build. The backend set and feature
// flags are fixed at compile time by build tags.
func Capabilities() CapabilitySet {
	return CapabilitySet{
		BackendKind: storage.FileBackend(),
		Backends:    storage.Available(),
		Features:    engine.Extensions(),
	}
}
