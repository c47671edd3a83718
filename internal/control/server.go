package control

import (
	"io"
	"net"
	"os"
	"sync"

	"github.com/dkvbridge/dkvbridge/internal/logging"
)

// HandleFunc processes one control-plane request and returns its response.
type HandleFunc func(req Message) Message

// Server listens on a unix-domain socket for control-plane connections,
// grounded on the teacher's rpc/transport/unix.serverConnector (socket
// setup: remove stale file, net.Listen("unix", ...)) and
// rpc/transport/base's per-connection accept loop, stripped of the
// per-connection worker pool and timeout machinery base uses for
// high-throughput sharded RPC — the control plane handles Launch/Terminate
// at process-lifecycle cadence, not per-query traffic.
type Server struct {
	socketPath string
	handler    HandleFunc
	listener   net.Listener
	log        *logging.Logger
}

// NewServer constructs a control-plane server for socketPath. RegisterHandler
// must be called before Listen.
func NewServer(socketPath string) *Server {
	return &Server{socketPath: socketPath, log: logging.Get("manager")}
}

// RegisterHandler sets the function invoked for every incoming request.
func (s *Server) RegisterHandler(h HandleFunc) { s.handler = h }

// Listen removes any stale socket file, binds, and serves connections until
// the listener is closed.
func (s *Server) Listen() error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return err
	}
	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = l

	s.log.Infof("control: listening on %s", s.socketPath)
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	var writeMu sync.Mutex
	for {
		requestID, req, err := readFrame(conn)
		if err == io.EOF {
			return
		}
		if err != nil {
			s.log.WithFields("request_id", requestID).Warningf("control: readFrame: %v", err)
			return
		}
		resp := s.handler(req)
		writeMu.Lock()
		err = writeFrame(conn, requestID, resp)
		writeMu.Unlock()
		if err != nil {
			s.log.WithFields("request_id", requestID).Warningf("control: writeFrame: %v", err)
			return
		}
	}
}
