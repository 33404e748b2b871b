// Package dispatch implements the event classification and one-shot HID
// transfer logic that sits between the network transports (HTTP router,
// WebSocket upgrader) and the session/hiddev core.
package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kndysfm/webhidbridge/internal/hiddev"
	"github.com/kndysfm/webhidbridge/internal/vpath"
)

// DeviceOpener resolves a virtual path to a freshly opened HID handle.
// One-shot handlers never touch the session registry: each call opens,
// transfers, and closes its own handle.
type DeviceOpener interface {
	OpenPath(p vpath.Path) (hiddev.Handle, error)
}

// Result is a transport-agnostic outcome; httpapi maps it onto net/http.
type Result struct {
	Status int
	Body   []byte
}

var errBadRequest = errors.New("dispatch: bad request")

func notFound(err error) Result {
	return Result{Status: http.StatusNotFound, Body: []byte(err.Error())}
}

func tooLong(msg string) Result {
	return Result{Status: http.StatusInternalServerError, Body: []byte(msg)}
}

func upstreamFailure(err error) Result {
	msg := "hid transfer failed"
	if err != nil {
		msg = fmt.Sprintf("hid transfer failed: %s", err.Error())
	}
	return Result{Status: http.StatusInternalServerError, Body: []byte(msg)}
}

// ServeOneShot performs one synchronous HID transfer per the suffix
// grammar: feature/<rid>, input/, output/<rid>.
func ServeOneShot(opener DeviceOpener, p vpath.Path, suffix, method string, body []byte) Result {
	switch {
	case strings.HasPrefix(suffix, "feature/"):
		return serveFeature(opener, p, strings.TrimPrefix(suffix, "feature/"), method, body)
	case suffix == "input/":
		return serveInput(opener, p, method)
	case strings.HasPrefix(suffix, "output/"):
		return serveOutput(opener, p, strings.TrimPrefix(suffix, "output/"), method, body)
	default:
		return notFound(fmt.Errorf("%w: unrecognized suffix %q", errBadRequest, suffix))
	}
}

func serveFeature(opener DeviceOpener, p vpath.Path, ridStr, method string, body []byte) Result {
	rid, err := parseReportID(ridStr)
	if err != nil {
		return notFound(err)
	}

	switch method {
	case http.MethodGet:
		return withDevice(opener, p, func(h hiddev.Handle) Result {
			data, err := h.GetFeatureReport(rid)
			if err != nil {
				return upstreamFailure(err)
			}
			return Result{Status: http.StatusOK, Body: data}
		})
	case http.MethodPost, http.MethodPut:
		if len(body) < 1 {
			return Result{Status: http.StatusInternalServerError, Body: []byte("feature body is empty")}
		}
		if len(body) > hiddev.MaxReportSize {
			return tooLong(fmt.Sprintf("feature body length %d too long", len(body)))
		}
		return withDevice(opener, p, func(h hiddev.Handle) Result {
			payload := make([]byte, hiddev.MaxReportSize)
			copy(payload, body)
			payload[0] = rid
			if err := h.SendFeatureReport(payload); err != nil {
				return upstreamFailure(err)
			}
			return Result{Status: http.StatusOK}
		})
	default:
		return notFound(fmt.Errorf("%w: method %s not allowed on feature", errBadRequest, method))
	}
}

func serveInput(opener DeviceOpener, p vpath.Path, method string) Result {
	if method != http.MethodGet {
		return notFound(fmt.Errorf("%w: method %s not allowed on input", errBadRequest, method))
	}
	return withDevice(opener, p, func(h hiddev.Handle) Result {
		buf := make([]byte, hiddev.MaxReportSize)
		n, err := h.ReadTimeout(buf, 1000)
		if err != nil {
			return upstreamFailure(err)
		}
		if n <= 0 {
			return upstreamFailure(errors.New("read timed out"))
		}
		return Result{Status: http.StatusOK, Body: buf[:n]}
	})
}

func serveOutput(opener DeviceOpener, p vpath.Path, ridStr, method string, body []byte) Result {
	rid, err := parseReportID(ridStr)
	if err != nil {
		return notFound(err)
	}
	if method != http.MethodPost && method != http.MethodPut {
		return notFound(fmt.Errorf("%w: method %s not allowed on output", errBadRequest, method))
	}
	if len(body) > hiddev.MaxReportSize-1 {
		return tooLong(fmt.Sprintf("output body length %d too long", len(body)))
	}

	return withDevice(opener, p, func(h hiddev.Handle) Result {
		out := make([]byte, len(body))
		copy(out, body)
		if rid != 0 {
			if len(out) == 0 {
				out = []byte{rid}
			} else {
				out[0] = rid
			}
		}
		if _, err := h.Write(out); err != nil {
			return upstreamFailure(err)
		}
		return Result{Status: http.StatusOK}
	})
}

func withDevice(opener DeviceOpener, p vpath.Path, fn func(hiddev.Handle) Result) Result {
	h, err := opener.OpenPath(p)
	if err != nil {
		return upstreamFailure(err)
	}
	defer h.Close()
	return fn(h)
}

func parseReportID(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid report id %q", errBadRequest, s)
	}
	return byte(v), nil
}
