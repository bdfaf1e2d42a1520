// Package broadcast is the fan-out surface the engine emits through:
// send-to-one, send-to-all, and send-to-all-except over connection
// subjects.
package broadcast

// Channel delivers events to connected clients. Implementations must
// tolerate delivery failures silently from the caller's perspective;
// nothing downstream of a submitted broadcast is ordering-sensitive to
// its completion.
type Channel interface {
	ToConn(connID, event string, payload any) error
	ToAll(event string, payload any) error
	ToAllExcept(connID, event string, payload any) error
}
