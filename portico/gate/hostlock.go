package gate

import (
	"time"

	"github.com/porticolabs/portico/portico"
)

// HostLock adapts the gateway to an embedding host whose runtime holds a
// global lock across foreign calls. Before the gateway blocks on a
// long-running operation it calls Unlock so the host can keep scheduling,
// and Relock before returning control. Implementations must tolerate
// being called from any goroutine the gateway uses.
type HostLock interface {
	Unlock()
	Relock()
}

// NoHostLock is the default adapter for hosts without a runtime lock.
type NoHostLock struct{}

func (NoHostLock) Unlock() {}
func (NoHostLock) Relock() {}

// withUnlocked runs fn inside the host's unlocked window. The relock is
// unconditional, and a panic out of fn is converted into an internal
// diagnostic instead of unwinding through the host boundary.
func (d *DB) withUnlocked(fn func() error) (err error) {
	start := time.Now()
	d.host.Unlock()
	d.events.emit(HostUnlocked, start, nil)
	defer func() {
		relock := time.Now()
		d.host.Relock()
		d.events.emit(HostRelocked, relock, nil)
		if r := recover(); r != nil {
			err = portico.NewDiagnostic(portico.CategoryInternal, "internal::panic",
				"panic during gateway operation: %v", r)
		}
	}()
	return fn()
}

// runUnlocked is the handle-free variant of withUnlocked, for blocking
// work before a handle exists (opening the backing store).
func runUnlocked(host HostLock, fn func() error) (err error) {
	if host == nil {
		host = NoHostLock{}
	}
	host.Unlock()
	defer func() {
		host.Relock()
		if r := recover(); r != nil {
			err = portico.NewDiagnostic(portico.CategoryInternal, "internal::panic",
				"panic during gateway operation: %v", r)
		}
	}()
	return fn()
}
