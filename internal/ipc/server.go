package ipc

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/minutes/internal/errors"
)

// Handler answers one request.
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Server accepts connections on a unix socket. Each connection is served by
// its own goroutine and may carry any number of sequential requests.
type Server struct {
	path    string
	handler Handler
	logger  *zap.SugaredLogger
	ln      net.Listener

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Listen binds the socket at path, replacing any stale socket file.
func Listen(path string, handler Handler, logger *zap.SugaredLogger) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	return &Server{
		path:    path,
		handler: handler,
		logger:  logger,
		ln:      ln,
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	s.logger.Infow("ipc server listening", "socket", s.path)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.isClosed() || stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}

		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	log := s.logger.With("conn", ulid.Make().String())
	log.Debug("connection opened")
	defer log.Debug("connection closed")

	for {
		body, err := ReadFrame(conn)
		if err != nil {
			if !stderrors.Is(err, io.EOF) && !s.isClosed() {
				log.Warnw("dropping connection", "error", err)
			}
			return
		}

		var req Request
		var resp Response
		if err := json.Unmarshal(body, &req); err != nil {
			resp = ErrorResponse(errors.NewIPC("malformed request", err))
		} else if err := req.Validate(); err != nil {
			resp = ErrorResponse(err)
		} else {
			log.Debugw("request", "type", string(req.Type))
			resp = s.handler.Handle(ctx, req)
		}

		if err := WriteFrame(conn, resp); err != nil {
			log.Warnw("write response failed", "error", err)
			return
		}
		if req.Type == ReqShutdown && resp.Type != RespError {
			return
		}
	}
}

// track registers conn and counts its goroutine. Both happen under mu so
// Close never waits on a counter that is about to grow.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting, ends open connections after their current
// exchange, waits for their goroutines and unlinks the socket file.
// It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.ln.Close()
	// Unblock idle readers; a response being written still goes out.
	for c := range s.conns {
		_ = c.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	s.wg.Wait()
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
