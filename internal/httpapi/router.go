// Package httpapi wires the gorilla/mux HTTP router: the enumerate
// endpoint, one-shot HID transfers dispatched through internal/dispatch,
// and pass-through to the static file server for everything else under
// the bridge server's document root.
package httpapi

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kndysfm/webhidbridge/internal/dispatch"
	"github.com/kndysfm/webhidbridge/internal/hiddev"
	"github.com/kndysfm/webhidbridge/internal/vpath"
)

// DeviceEnumerator is the external enumeration collaborator; hiddev.Enumerate
// satisfies it directly.
type DeviceEnumerator func(vendorID, productID uint16) ([]hiddev.Device, error)

// Router builds the net/http handler for the bridge server's HTTP surface.
type Router struct {
	mux       *mux.Router
	enumerate DeviceEnumerator
	opener    dispatch.DeviceOpener
	static    http.Handler
	logger    *log.Logger
}

// New wires the router. static is the external static-file collaborator
// (e.g. http.FileServer over the configured docroot).
func New(enumerate DeviceEnumerator, opener dispatch.DeviceOpener, static http.Handler, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	// SkipClean keeps mux from redirecting the literal double slash in
	// "/hid//enumerate" to a cleaned path.
	r := &Router{mux: mux.NewRouter().SkipClean(true), enumerate: enumerate, opener: opener, static: static, logger: logger}

	r.mux.HandleFunc("/hid//enumerate", r.handleEnumerate).Methods(http.MethodGet)
	r.mux.PathPrefix("/hid/").HandlerFunc(r.handleHID)
	r.mux.PathPrefix("/").Handler(static)

	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

type enumeratedDevice struct {
	InterfaceNumber    int    `json:"interfaceNumber"`
	VendorID           uint16 `json:"vendorId"`
	ProductID          uint16 `json:"productId"`
	UsagePage          uint16 `json:"usagePage"`
	Usage              uint16 `json:"usage"`
	ManufacturerString string `json:"manufacturerString"`
	ProductString      string `json:"productString"`
	VirtualPath        string `json:"virtualPath"`
}

type enumerateResponse struct {
	Devices []enumeratedDevice `json:"devices"`
	Count   int                `json:"count"`
}

func (r *Router) handleEnumerate(w http.ResponseWriter, req *http.Request) {
	vid := parseU16(req.URL.Query().Get("vid"))
	pid := parseU16(req.URL.Query().Get("pid"))

	devices, err := r.enumerate(vid, pid)
	if err != nil {
		r.logger.Printf("enumerate: %v", err)
		http.Error(w, "enumerate failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := enumerateResponse{Devices: make([]enumeratedDevice, 0, len(devices)), Count: len(devices)}
	for _, d := range devices {
		vp := vpath.Path{
			InterfaceNbr: uint16(d.InterfaceNbr),
			VendorID:     d.VendorID,
			ProductID:    d.ProductID,
			UsagePage:    d.UsagePage,
			Usage:        d.Usage,
		}
		resp.Devices = append(resp.Devices, enumeratedDevice{
			InterfaceNumber:    d.InterfaceNbr,
			VendorID:           d.VendorID,
			ProductID:          d.ProductID,
			UsagePage:          d.UsagePage,
			Usage:              d.Usage,
			ManufacturerString: d.MfrStr,
			ProductString:      d.ProductStr,
			VirtualPath:        vp.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		r.logger.Printf("enumerate: encode response: %v", err)
	}
}

func (r *Router) handleHID(w http.ResponseWriter, req *http.Request) {
	p, suffix, ok := vpath.Parse(req.URL.Path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusNotFound)
		return
	}

	res := dispatch.ServeOneShot(r.opener, p, suffix, req.Method, body)
	w.WriteHeader(res.Status)
	if len(res.Body) > 0 {
		_, _ = w.Write(res.Body)
	}
}

func parseU16(s string) uint16 {
	if s == "" {
		return 0
	}
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + uint64(c-'0')
	}
	if v > 0xFFFF {
		return 0
	}
	return uint16(v)
}
