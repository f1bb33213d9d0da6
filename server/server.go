package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sisu-network/lib/log"
)

// Server serves the confirmer api on one port, over plain http and over websocket.
type Server struct {
	handler       *rpc.Server
	listenAddress string

	lock     *sync.Mutex
	listener net.Listener
	srv      *http.Server
}

func NewServer(handler *rpc.Server, port int) *Server {
	return &Server{
		handler:       handler,
		listenAddress: fmt.Sprintf("0.0.0.0:%d", port),
		lock:          &sync.Mutex{},
	}
}

// Listen binds the listen address. Run calls it if it has not been called.
func (s *Server) Listen() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		return err
	}

	s.listener = listener
	s.srv = &http.Server{Handler: s.route()}
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.listener == nil {
		return s.listenAddress
	}
	return s.listener.Addr().String()
}

func (s *Server) Run() {
	if err := s.Listen(); err != nil {
		panic(err)
	}

	s.lock.Lock()
	srv, listener := s.srv, s.listener
	s.lock.Unlock()

	log.Info("Running server at ", listener.Addr())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server stopped with error: ", err)
	}
}

// Shutdown stops accepting connections and waits for in-flight calls until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lock.Lock()
	srv := s.srv
	s.lock.Unlock()

	if srv == nil {
		return nil
	}

	log.Info("Shutting down server at ", s.Addr())
	s.handler.Stop()
	return srv.Shutdown(ctx)
}

func (s *Server) route() http.Handler {
	ws := s.handler.WebsocketHandler([]string{"*"})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			ws.ServeHTTP(w, r)
			return
		}
		s.handler.ServeHTTP(w, r)
	})
}
