package dispatch

import "github.com/kndysfm/webhidbridge/internal/session"

// PumpFrame implements the WebSocket frame pump: optionally writes the
// frame payload as an output report, then drains the session's FIFO into
// one length-prefixed binary frame, or a 4-byte zero keepalive if nothing
// was queued. The session mutex is acquired exactly once around both the
// write and the drain — acquiring it twice (once for the write, again for
// the drain) is the nested-lock deadlock this is built to avoid.
func PumpFrame(s *session.Session, isBinary bool, payload []byte) []byte {
	s.Lock()
	defer s.Unlock()

	if isBinary && len(payload) > 0 {
		_, _ = s.Handle().Write(payload)
	}

	total := s.FIFO().PopAll(nil, 0)
	if total == 0 {
		return []byte{0, 0, 0, 0}
	}

	buf := make([]byte, total)
	n := s.FIFO().PopAll(buf, total)
	return buf[:n]
}
