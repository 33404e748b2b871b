package dispatch

import (
	"fmt"
	"log"

	"github.com/kndysfm/webhidbridge/internal/registry"
	"github.com/kndysfm/webhidbridge/internal/session"
	"github.com/kndysfm/webhidbridge/internal/vpath"
)

// Dispatcher owns the session registry and routes WebSocket lifecycle
// events into session Create/Destroy. It is the only thing the event-loop
// goroutine uses to mutate the registry.
type Dispatcher struct {
	Registry *registry.Registry
	Opener   DeviceOpener
	Logger   *log.Logger
}

func New(opener DeviceOpener, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{Registry: registry.New(), Opener: opener, Logger: logger}
}

// Handshake opens the device named by p and, on success, creates and
// registers a session for connID. On failure the caller must reject the
// handshake by closing the connection immediately.
func (d *Dispatcher) Handshake(connID string, p vpath.Path, reportIDFilter byte) (*session.Session, error) {
	if _, found := d.Registry.Find(connID); found {
		return nil, fmt.Errorf("dispatch: session already exists for %s", connID)
	}

	h, err := d.Opener.OpenPath(p)
	if err != nil {
		return nil, fmt.Errorf("dispatch: handshake open %s: %w", vpath.Sprint(p), err)
	}

	s := session.Create(connID, h, reportIDFilter, d.Logger)
	d.Registry.Insert(s)
	d.Logger.Printf("session %s: created for %s", connID, vpath.Sprint(p))
	return s, nil
}

// Close tears down the session for connID, if one exists. Used for both
// WebSocket CLOSE frames and underlying-connection-closed events.
func (d *Dispatcher) Close(connID string) {
	sess, found := d.Registry.Remove(connID)
	if !found {
		return
	}
	s, ok := sess.(*session.Session)
	if !ok {
		return
	}
	session.Destroy(s)
	d.Logger.Printf("session %s: destroyed", connID)
}

// Shutdown destroys every remaining session in registration order.
func (d *Dispatcher) Shutdown() {
	d.Registry.Finalize(func(sess registry.Session) {
		if s, ok := sess.(*session.Session); ok {
			session.Destroy(s)
		}
	})
}

// Session looks up the live session for connID, for the frame pump.
func (d *Dispatcher) Session(connID string) (*session.Session, bool) {
	sess, found := d.Registry.Find(connID)
	if !found {
		return nil, false
	}
	s, ok := sess.(*session.Session)
	return s, ok
}
