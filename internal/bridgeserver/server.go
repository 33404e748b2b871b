// Package bridgeserver assembles the router, WebSocket endpoint, and
// session dispatcher into one process, and drives its startup/shutdown
// lifecycle.
package bridgeserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/kndysfm/webhidbridge/internal/dispatch"
	"github.com/kndysfm/webhidbridge/internal/hiddev"
	"github.com/kndysfm/webhidbridge/internal/httpapi"
	"github.com/kndysfm/webhidbridge/internal/vpath"
	"github.com/kndysfm/webhidbridge/internal/wsupgrade"
)

// Config collects the CLI-facing knobs that reach the core.
type Config struct {
	Port    int
	DocRoot string
	Logger  *log.Logger
}

// enumOpener implements dispatch.DeviceOpener by re-enumerating and
// matching the requested descriptor fields, then opening that device.
// Every one-shot request and every WebSocket handshake gets a fresh
// handle this way; no handle is ever shared across requests.
type enumOpener struct{}

func (enumOpener) OpenPath(p vpath.Path) (hiddev.Handle, error) {
	devices, err := hiddev.Enumerate(p.VendorID, p.ProductID)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if uint16(d.InterfaceNbr) == p.InterfaceNbr && d.UsagePage == p.UsagePage && d.Usage == p.Usage {
			return d.Open()
		}
	}
	return nil, fmt.Errorf("bridgeserver: no device matches %s", vpath.Sprint(p))
}

// Server is the assembled bridge: HTTP router, WebSocket endpoint, and
// dispatcher sharing one registry.
type Server struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	httpServer *http.Server
}

// New wires a Server. It does not start listening; call Run for that.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	opener := enumOpener{}
	d := dispatch.New(opener, cfg.Logger)
	ws := wsupgrade.New(d, cfg.Logger)

	docRoot := cfg.DocRoot
	if docRoot == "" {
		docRoot = "."
	}
	static := http.FileServer(http.Dir(docRoot))
	router := httpapi.New(hiddev.Enumerate, opener, static, cfg.Logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/hid/") && websocket.IsWebSocketUpgrade(r) {
			ws.ServeHTTP(w, r)
			return
		}
		router.ServeHTTP(w, r)
	})

	return &Server{
		cfg:        cfg,
		dispatcher: d,
		httpServer: &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler},
	}
}

// Run listens and serves until ctx is cancelled or a SIGINT/SIGTERM
// arrives, then drains the registry (destroying every live session)
// before returning. A listen failure is returned as an error wrapping the
// net.Listen error, which the command turns into exit code 1.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bridgeserver: listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.cfg.Logger.Printf("listening on %s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	s.dispatcher.Shutdown()
	return runErr
}
