// Package server implements the acceptor loop of spec §4.E: one goroutine
// accepts connections, clones the engine handle, and hands the request to
// the worker pool so the accept loop itself never blocks on I/O.
package server

import (
	"bufio"
	"errors"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/allen1211/kvsd/internal/engine"
	"github.com/allen1211/kvsd/internal/pool"
	"github.com/allen1211/kvsd/internal/protocol"
)

// Server owns a listener, a shared engine handle, and a worker pool. Listen
// returns once the listener is bound; Accept loops until Shutdown closes
// the listener.
type Server struct {
	addr   string
	engine engine.Engine
	pool   pool.ThreadPool
	logger *log.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New builds a Server bound to no socket yet; call Listen to bind and
// Accept to begin serving.
func New(addr string, eng engine.Engine, p pool.ThreadPool, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Server{addr: addr, engine: eng, pool: p, logger: logger}
}

// Listen binds the configured address. It must succeed before Accept is
// called.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr reports the bound address, useful when the configured port was 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Accept runs the acceptor loop. It returns nil once Shutdown has closed
// the listener, and any other error otherwise.
func (s *Server) Accept() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		handle := s.engine.Clone()
		s.pool.Spawn(func() {
			serveConn(conn, handle, s.logger)
		})
	}
}

// Shutdown stops accepting new connections. In-flight jobs already handed
// to the pool are not interrupted; callers should Shutdown the pool
// afterward to wait for them to drain.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// serveConn implements the per-connection job body of spec §4.E: read one
// request, dispatch to the engine, write one response, close. handle is
// this job's own clone of the engine and is closed here, not shared.
func serveConn(conn net.Conn, handle engine.Engine, logger *log.Logger) {
	defer conn.Close()
	defer handle.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	req, err := protocol.ReadRequest(r)
	if err != nil {
		logger.Debugf("%s: framing error, closing without reply: %v", conn.RemoteAddr(), err)
		return
	}

	resp := dispatch(handle, req)

	if err := protocol.WriteResponse(w, resp); err != nil {
		logger.Debugf("%s: failed to write response: %v", conn.RemoteAddr(), err)
		return
	}
	if err := w.Flush(); err != nil {
		logger.Debugf("%s: failed to flush response: %v", conn.RemoteAddr(), err)
	}
}

func dispatch(handle engine.Engine, req protocol.Request) protocol.Response {
	switch req.Kind {
	case protocol.KindGet:
		value, found, err := handle.Get(req.Key)
		if err != nil {
			return protocol.Err(err.Error())
		}
		if !found {
			return protocol.NotFound()
		}
		return protocol.Found(value)

	case protocol.KindSet:
		if err := handle.Set(req.Key, req.Value); err != nil {
			return protocol.Err(err.Error())
		}
		return protocol.OK()

	case protocol.KindRemove:
		err := handle.Remove(req.Key)
		if err == nil {
			return protocol.OK()
		}
		if errors.Is(err, engine.ErrKeyNotFound) {
			return protocol.Err("Key not found")
		}
		return protocol.Err(err.Error())

	case protocol.KindStats:
		stats, err := handle.Stats()
		if err != nil {
			return protocol.Err(err.Error())
		}
		return protocol.StatsOk(protocol.StatsPayload{
			Engine:      string(stats.Engine),
			Keys:        int64(stats.Keys),
			Uncompacted: stats.Uncompacted,
			Generations: int64(stats.Generations),
		})

	default:
		return protocol.Err("unknown request kind")
	}
}
