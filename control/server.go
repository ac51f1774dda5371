package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Listen when another host owns the socket.
var ErrAlreadyRunning = errors.New("phasorviz is already running")

// Server listens on a unix socket and routes requests to a Router.
type Server struct {
	router   Router
	listener net.Listener
	sockPath string
	log      *zap.Logger
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Listen binds sockPath. A socket left behind by a dead host is replaced; a
// live one yields ErrAlreadyRunning.
func Listen(sockPath string, router Router, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if conn, err := net.Dial("unix", sockPath); err == nil {
		conn.Close()
		return nil, ErrAlreadyRunning
	}

	// Remove stale socket file.
	_ = os.Remove(sockPath)

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", sockPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		router:   router,
		listener: listener,
		sockPath: sockPath,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.sockPath }

// Serve accepts connections and handles them. Blocks until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Close shuts down the server: closes the listener, abandons pending
// confirmations, waits for connections and removes the socket.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.wg.Wait()
	_ = os.Remove(s.sockPath)
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner when the server closes.
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4*1024), 64*1024)

	for scanner.Scan() {
		resp := s.handleRequest(scanner.Bytes())

		data, err := json.Marshal(resp)
		if err != nil {
			data, _ = json.Marshal(Response{Type: TypeError, Code: -1, Message: err.Error()})
		}
		data = append(data, '\n')

		if _, err := conn.Write(data); err != nil {
			return
		}
	}
}

func (s *Server) handleRequest(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{Type: TypeError, Code: -32700, Message: "parse error: " + err.Error()}
	}

	switch req.Type {
	case TypePing:
		return Response{Type: TypeOK}

	case TypeHandoff:
		outcome, err := s.router.Handoff(s.ctx, req.Ref)
		if err != nil {
			return errorResponse(err)
		}
		return Response{Type: TypeOK, Message: outcome}

	case TypeMenuAction:
		if err := s.router.MenuAction(s.ctx, req.Action); err != nil {
			return errorResponse(err)
		}
		return Response{Type: TypeOK}

	case TypeLoad:
		if err := s.router.Load(s.ctx, req.Path, req.Size); err != nil {
			return errorResponse(err)
		}
		return Response{Type: TypeOK}

	default:
		s.log.Warn("unknown control request", zap.String("type", req.Type))
		return Response{Type: TypeError, Code: -32601, Message: "unknown request type: " + req.Type}
	}
}

func errorResponse(err error) Response {
	return Response{Type: TypeError, Code: -32603, Message: err.Error()}
}
