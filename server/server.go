// Package server exposes the demo over HTTP: the embedded browser UI on "/"
// and one conversation session per WebSocket connection on "/ws".
package server

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/Metantrop-IA/Mnemosynth/core"
	"github.com/Metantrop-IA/Mnemosynth/factories"
	"github.com/Metantrop-IA/Mnemosynth/handlers/turn"
	wstransport "github.com/Metantrop-IA/Mnemosynth/transports/websocket"
)

//go:embed index.html
var indexHTML []byte

// Server serves the UI and spawns one session per WebSocket connection.
// Sessions are independent: each gets its own turn controller over the
// shared service handles.
type Server struct {
	addr       string
	services   *factories.Services
	sessionCfg turn.Config
	logger     *core.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	sessions sync.WaitGroup

	mu      sync.Mutex
	baseCtx context.Context // session lifetime; set by Run
}

// New creates a server. The services must already be initialized.
func New(addr string, services *factories.Services, sessionCfg turn.Config, logger *core.Logger) *Server {
	if logger == nil {
		logger = core.GetLogger()
	}
	s := &Server{
		addr:       addr,
		services:   services,
		sessionCfg: sessionCfg,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The demo serves its own UI; same-host pages are enough.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router := httprouter.New()
	router.GET("/", s.handleIndex)
	router.GET("/ws", s.handleWebsocket)
	s.httpSrv = &http.Server{Addr: addr, Handler: router}
	return s
}

// Run serves until ctx is cancelled, then shuts down and waits for open
// sessions to finish.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.With(map[string]any{"addr": s.addr}).Info("listening")
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := s.httpSrv.Shutdown(context.Background()); err != nil {
		s.logger.With(map[string]any{"error": err}).Warn("shutdown")
	}
	s.sessions.Wait()
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.With(map[string]any{"error": err}).Warn("websocket upgrade failed")
		return
	}

	ctrl := turn.NewController(s.services.Chat, s.services.Synthesis, s.services.Preprocess, s.sessionCfg, s.logger)
	session, err := wstransport.NewSession(conn, ctrl, s.logger)
	if err != nil {
		s.logger.With(map[string]any{"error": err}).Error("failed to create session")
		conn.Close()
		return
	}

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	// The connection is hijacked; blocking here keeps the session alive
	// for as long as the browser stays connected.
	s.logger.With(map[string]any{"session": session.ID}).Info("session started")
	s.sessions.Add(1)
	defer s.sessions.Done()
	session.Run(ctx)
	s.logger.With(map[string]any{"session": session.ID}).Info("session ended")
}

// IsClosed reports whether err is the normal listener-closed error.
func IsClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed)
}
