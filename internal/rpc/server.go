package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/agentmemory/memd/internal/audit"
	"github.com/agentmemory/memd/internal/classifier"
	"github.com/agentmemory/memd/internal/eventstore"
	"github.com/agentmemory/memd/internal/indexlexical"
	"github.com/agentmemory/memd/internal/indexvector"
	"github.com/agentmemory/memd/internal/metrics"
	"github.com/agentmemory/memd/internal/retrieval"
	"github.com/agentmemory/memd/internal/scheduler"
	"github.com/agentmemory/memd/internal/storage"
	"github.com/agentmemory/memd/internal/tier"
	"github.com/agentmemory/memd/internal/topics"
	"github.com/agentmemory/memd/internal/toc"
	"github.com/agentmemory/memd/internal/types"
	"github.com/agentmemory/memd/internal/usage"
)

// serverSignals are the signals that trigger an orderly Stop when the
// daemon runs in the foreground (the `start` CLI command).
var serverSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Dependencies wires every domain component the server dispatches
// requests into. Lexical, Vector, and VectorEmbedder may be nil when
// that layer is disabled or unhealthy; handlers degrade to Unavailable.
type Dependencies struct {
	Engine         storage.Engine
	Events         *eventstore.Store
	TOC            *toc.Store
	Topics         *topics.Store
	Classifier     *classifier.Classifier
	Tier           *tier.Detector
	Executor       *retrieval.Executor
	Usage          *usage.Tracker
	Scheduler      *scheduler.Scheduler
	Lexical        *indexlexical.Indexer
	Vector         *indexvector.Indexer
	VectorEmbedder indexvector.Embedder
	Audit          *audit.Log
	DefaultStop    types.StopConditions
	Version        string
	DBPath         string

	// Metrics is optional; a nil Recorder makes every RecordRequest call
	// a no-op.
	Metrics *metrics.Recorder
}

// Server accepts connections on a Unix domain socket and dispatches each
// newline-delimited Request to the matching handler.
type Server struct {
	socketPath     string
	deps           Dependencies
	requestTimeout time.Duration
	maxConns       int

	log *slog.Logger

	mu       sync.RWMutex
	listener net.Listener
	shutdown bool

	connSemaphore chan struct{}
	activeConns   int32

	readyChan    chan struct{}
	shutdownChan chan struct{}
	doneChan     chan struct{}
	stopOnce     sync.Once

	pendingShutdown atomic.Bool
	startedMs       int64
}

// NewServer builds a Server listening at socketPath once Start is called.
func NewServer(socketPath string, deps Dependencies, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	const maxConns = 64
	return &Server{
		socketPath:     socketPath,
		deps:           deps,
		requestTimeout: 30 * time.Second,
		maxConns:       maxConns,
		log:            log,
		connSemaphore:  make(chan struct{}, maxConns),
		readyChan:      make(chan struct{}),
		shutdownChan:   make(chan struct{}),
		doneChan:       make(chan struct{}),
	}
}

// Start opens the listener and accepts connections until Stop is called
// or the listener fails. It blocks; callers typically run it in its own
// goroutine and wait on WaitReady.
func (s *Server) Start(_ context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("rpc: ensure socket dir: %w", err)
	}
	if err := s.removeStaleSocket(); err != nil {
		return fmt.Errorf("rpc: remove stale socket: %w", err)
	}

	listener, err := listenRPC(s.socketPath)
	if err != nil {
		return fmt.Errorf("rpc: listen: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("rpc: chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.startedMs = types.NowMs()

	close(s.readyChan)
	go s.handleSignals()
	defer close(s.doneChan)

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.RLock()
			shutdown := s.shutdown
			s.mu.RUnlock()
			if shutdown {
				return nil
			}
			return fmt.Errorf("rpc: accept: %w", err)
		}

		select {
		case s.connSemaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-s.connSemaphore }()
				atomic.AddInt32(&s.activeConns, 1)
				defer atomic.AddInt32(&s.activeConns, -1)
				s.handleConnection(c)
			}(conn)
		default:
			_ = conn.Close()
		}
	}
}

// WaitReady returns a channel closed once the listener is accepting.
func (s *Server) WaitReady() <-chan struct{} { return s.readyChan }

// Stop closes the listener and waits (with a timeout) for Start to
// return.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.shutdown = true
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()

		close(s.shutdownChan)
		if listener != nil {
			if closeErr := listener.Close(); closeErr != nil {
				err = fmt.Errorf("rpc: close listener: %w", closeErr)
			}
		}
		if removeErr := s.removeStaleSocket(); removeErr != nil && err == nil {
			err = fmt.Errorf("rpc: remove socket: %w", removeErr)
		}
	})

	select {
	case <-s.doneChan:
	case <-time.After(5 * time.Second):
	}
	return err
}

func (s *Server) removeStaleSocket() error {
	if _, statErr := os.Stat(s.socketPath); statErr != nil {
		return nil
	}
	conn, dialErr := dialRPC(s.socketPath, 200*time.Millisecond)
	if dialErr == nil {
		_ = conn.Close()
		return fmt.Errorf("socket %s is in use by another daemon", s.socketPath)
	}
	if rmErr := os.Remove(s.socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return rmErr
	}
	return nil
}

func (s *Server) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, serverSignals...)
	select {
	case <-sigChan:
		if err := s.Stop(); err != nil {
			s.log.Error("rpc: shutdown on signal failed", "error", err)
		}
	case <-s.shutdownChan:
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.requestTimeout)); err != nil {
			return
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if writeErr := s.writeResponse(writer, Response{Success: false, Error: fmt.Sprintf("invalid request: %v", err)}); writeErr != nil {
				return
			}
			continue
		}

		if err := conn.SetWriteDeadline(time.Now().Add(s.requestTimeout)); err != nil {
			return
		}
		callStart := time.Now()
		resp := s.dispatch(&req)
		if s.deps.Metrics != nil {
			errCode := ""
			if !resp.Success {
				errCode = "error"
			}
			s.deps.Metrics.RecordRequest(context.Background(), req.Operation, time.Since(callStart), errCode)
		}
		if err := s.writeResponse(writer, resp); err != nil {
			return
		}
		if s.pendingShutdown.Load() {
			go func() {
				if err := s.Stop(); err != nil {
					s.log.Error("rpc: shutdown failed", "error", err)
				}
			}()
			return
		}
	}
}

func (s *Server) writeResponse(writer *bufio.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("rpc: marshal response: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return err
	}
	if err := writer.WriteByte('\n'); err != nil {
		return err
	}
	return writer.Flush()
}
