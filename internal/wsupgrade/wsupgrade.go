// Package wsupgrade adapts gorilla/websocket's handshake and framing to
// the dispatcher: validating the handshake URI, creating the session,
// and running the frame pump for the life of the connection.
package wsupgrade

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kndysfm/webhidbridge/internal/dispatch"
	"github.com/kndysfm/webhidbridge/internal/vpath"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades WebSocket handshake requests whose URI is a virtual HID
// path, creates a session through Dispatcher, and pumps frames for the
// life of the connection.
type Handler struct {
	Dispatcher *dispatch.Dispatcher
	Logger     *log.Logger
}

func New(d *dispatch.Dispatcher, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{Dispatcher: d, Logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, suffix, ok := vpath.Parse(r.URL.Path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	filter := parseFilter(suffix)

	// Each connection gets its own identity regardless of what the client
	// sends; the dispatcher keys sessions on this, never on request state.
	connID := uuid.NewString()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Printf("ws upgrade: %v", err)
		return
	}

	sess, err := h.Dispatcher.Handshake(connID, p, filter)
	if err != nil {
		h.Logger.Printf("ws handshake rejected: %v", err)
		_ = conn.Close()
		return
	}
	h.Logger.Printf("ws handshake done: %s", connID)
	defer h.Dispatcher.Close(connID)
	defer conn.Close()

	for {
		// ReadMessage only ever returns a data (text/binary) frame; a
		// CLOSE control frame surfaces as a non-nil err after gorilla's
		// default close handler replies and terminates the read loop.
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		out := dispatch.PumpFrame(sess, msgType == websocket.BinaryMessage, payload)
		if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
			h.Logger.Printf("ws write: %v", err)
			return
		}
	}
}

// parseFilter reads the optional report-id suffix after the virtual path
// prefix ("" or "/" means accept any report).
func parseFilter(suffix string) byte {
	suffix = strings.Trim(suffix, "/")
	if suffix == "" {
		return 0
	}
	v, err := strconv.ParseUint(suffix, 0, 8)
	if err != nil {
		return 0
	}
	return byte(v)
}
