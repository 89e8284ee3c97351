package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/soloist/internal/framing"
	"github.com/rbright/soloist/internal/fsm"
)

const (
	defaultWriteTimeout = 5 * time.Second
	staleProbeTimeout   = 200 * time.Millisecond
	acceptRetryDelay    = 50 * time.Millisecond
	readChunkSize       = 4096
)

// Handler receives each completed argument list. The returned bytes, if any,
// are written back to the secondary before the connection is closed.
type Handler interface {
	OnNewInstanceArgs(ctx context.Context, args []string) []byte
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, []string) []byte

func (f HandlerFunc) OnNewInstanceArgs(ctx context.Context, args []string) []byte {
	return f(ctx, args)
}

// Observer is told about slot activity that is not a failure.
type Observer interface {
	Dispatched(argc int)
	Superseded(state fsm.State)
}

// ServerOptions tunes a Server. Zero values select defaults.
type ServerOptions struct {
	Reporter      Reporter
	Observer      Observer
	Logger        *slog.Logger
	MaxFrameBytes int
	WriteTimeout  time.Duration
}

type eventKind int

const (
	eventAccepted eventKind = iota
	eventData
	eventReadError
	eventResponded
)

type event struct {
	kind eventKind
	gen  uint64
	conn net.Conn
	data []byte
	err  error
}

// slot is the one tracked connection. Only the Serve goroutine touches it.
type slot struct {
	gen        uint64
	conn       net.Conn
	dec        *framing.Decoder
	dispatched bool
}

// Server is the primary instance's end of the local channel.
//
// Serve runs an event loop that owns the tracked connection; accept, read,
// and response-write goroutines only post events to it. A new connection
// always replaces the tracked one.
type Server struct {
	endpoint     string
	handler      Handler
	reporter     Reporter
	observer     Observer
	logger       *slog.Logger
	maxFrame     int
	writeTimeout time.Duration

	listener  net.Listener
	events    chan event
	done      chan struct{}
	closeOnce sync.Once
	serving   atomic.Bool

	stateMu  sync.Mutex
	state    fsm.State
	observed atomic.Value
	current  *slot
	gen      uint64
}

// NewServer prepares a server for endpoint; call Start to bind it.
func NewServer(endpoint string, handler Handler, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	s := &Server{
		endpoint:     endpoint,
		handler:      handler,
		reporter:     opts.Reporter,
		observer:     opts.Observer,
		logger:       logger,
		maxFrame:     opts.MaxFrameBytes,
		writeTimeout: writeTimeout,
		events:       make(chan event),
		done:         make(chan struct{}),
		state:        fsm.StateIdle,
	}
	s.observed.Store(fsm.StateIdle)
	return s
}

// Endpoint returns the resolved endpoint this server binds.
func (s *Server) Endpoint() string {
	return s.endpoint
}

// State returns the last published state of the connection slot.
func (s *Server) State() fsm.State {
	return s.observed.Load().(fsm.State)
}

// Start binds the endpoint. When the address is in use it makes exactly one
// recovery attempt: a stale endpoint is removed and the bind retried once.
// An endpoint that still accepts connections is never removed.
func (s *Server) Start(ctx context.Context) error {
	if s.listener != nil {
		return nil
	}

	unlock, err := lockEndpoint(s.endpoint)
	if err != nil {
		return s.bindFailed(fmt.Errorf("lock endpoint %s: %w", s.endpoint, err))
	}
	defer unlock()

	listener, err := listen(s.endpoint)
	if err != nil {
		if !isAddrInUse(err) {
			return s.bindFailed(fmt.Errorf("listen %s: %w", s.endpoint, err))
		}

		s.logger.Info("endpoint in use; attempting stale cleanup", "endpoint", s.endpoint)
		state, probeErr := Probe(ctx, s.endpoint, staleProbeTimeout)
		if probeErr != nil {
			return s.bindFailed(fmt.Errorf("endpoint %s in use and not recoverable: %w", s.endpoint, probeErr))
		}
		if state == EndpointLive {
			return s.bindFailed(fmt.Errorf("endpoint %s is owned by a running instance: %w", s.endpoint, err))
		}
		if removeErr := removeStale(s.endpoint); removeErr != nil {
			return s.bindFailed(fmt.Errorf("remove stale endpoint %s: %w", s.endpoint, removeErr))
		}

		listener, err = listen(s.endpoint)
		if err != nil {
			return s.bindFailed(fmt.Errorf("listen %s after stale cleanup: %w", s.endpoint, err))
		}
	}

	s.listener = listener
	s.advance(fsm.EventListen)
	s.logger.Info("ipc server listening", "endpoint", s.endpoint)
	return nil
}

func (s *Server) bindFailed(cause error) error {
	err := newError(KindBindFailed, cause)
	report(s.reporter, err)
	return err
}

// Serve runs the event loop until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("ipc server not started")
	}
	if !s.serving.CompareAndSwap(false, true) {
		return errors.New("ipc server already serving")
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	go s.acceptLoop()

	for {
		select {
		case <-s.done:
			s.shutdown()
			return nil
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

// Close stops accepting, drops the tracked connection, and releases the endpoint.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			err = s.listener.Close()
		}
		if !s.serving.Load() {
			s.advance(fsm.EventShutdown)
		}
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept ipc connection failed", "error", err.Error())
			time.Sleep(acceptRetryDelay)
			continue
		}

		if !s.post(event{kind: eventAccepted, conn: conn}) {
			_ = conn.Close()
			return
		}
	}
}

func (s *Server) readLoop(gen uint64, conn net.Conn) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if !s.post(event{kind: eventData, gen: gen, data: chunk}) {
				return
			}
		}
		if err != nil {
			s.post(event{kind: eventReadError, gen: gen, err: err})
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventAccepted:
		s.accept(ev.conn)
	case eventData:
		if cur := s.tracked(ev.gen); cur != nil {
			s.consume(ctx, cur, ev.data)
		}
	case eventReadError:
		if cur := s.tracked(ev.gen); cur != nil {
			s.readFailed(cur, ev.err)
		}
	case eventResponded:
		s.responded(ev.gen, ev.err)
	}
}

// tracked returns the current slot when gen still owns it and has not dispatched.
func (s *Server) tracked(gen uint64) *slot {
	if s.current == nil || s.current.gen != gen || s.current.dispatched {
		return nil
	}
	return s.current
}

func (s *Server) accept(conn net.Conn) {
	if s.current != nil {
		s.logger.Debug("superseding tracked ipc connection",
			"generation", s.current.gen,
			"buffered_bytes", s.current.dec.Buffered(),
			"state", s.currentState(),
		)
		if s.observer != nil {
			s.observer.Superseded(s.currentState())
		}
		s.drop(s.current)
	}

	s.gen++
	s.current = &slot{gen: s.gen, conn: conn, dec: framing.NewDecoder(s.maxFrame)}
	s.advance(fsm.EventAccept)
	go s.readLoop(s.gen, conn)
}

func (s *Server) consume(ctx context.Context, cur *slot, chunk []byte) {
	s.advance(fsm.EventRead)

	_, complete, err := cur.dec.Feed(chunk)
	if err != nil {
		s.fail(cur, newError(KindReadFailed, err))
		return
	}
	if !complete {
		return
	}

	s.advance(fsm.EventTerminate)
	cur.dispatched = true
	args := cur.dec.Args()
	s.logger.Info("ipc arguments received", "generation", cur.gen, "argc", len(args))
	if s.observer != nil {
		s.observer.Dispatched(len(args))
	}

	var response []byte
	if s.handler != nil {
		response = s.handler.OnNewInstanceArgs(ctx, args)
	}

	s.advance(fsm.EventRespond)
	go s.respond(cur.gen, cur.conn, response)
}

func (s *Server) respond(gen uint64, conn net.Conn, response []byte) {
	var err error
	if len(response) > 0 {
		if err = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err == nil {
			_, err = conn.Write(response)
		}
	}
	_ = conn.Close()
	s.post(event{kind: eventResponded, gen: gen, err: err})
}

func (s *Server) responded(gen uint64, err error) {
	if err != nil {
		report(s.reporter, newError(KindSendResponseFailed, err))
	}
	if s.current == nil || s.current.gen != gen {
		return
	}
	s.current.dec.Reset()
	s.current = nil
	s.advance(fsm.EventClose)
}

func (s *Server) readFailed(cur *slot, err error) {
	if errors.Is(err, io.EOF) || isReset(err) {
		s.fail(cur, newError(KindPeerDisconnectedPrematurely, err))
		return
	}
	s.fail(cur, newError(KindReadFailed, err))
}

func (s *Server) fail(cur *slot, err *Error) {
	report(s.reporter, err)
	s.drop(cur)
	s.advance(fsm.EventFail)
}

// drop closes the slot's connection without a graceful shutdown and forgets it.
func (s *Server) drop(cur *slot) {
	_ = cur.conn.Close()
	cur.dec.Reset()
	if s.current == cur {
		s.current = nil
	}
}

func (s *Server) shutdown() {
	if state := s.currentState(); fsm.Occupied(state) {
		s.logger.Info("dropping in-flight ipc connection", "state", state)
	}
	if s.current != nil {
		s.drop(s.current)
	}
	s.advance(fsm.EventShutdown)
	s.logger.Info("ipc server stopped", "endpoint", s.endpoint)
}

// currentState reads the slot state. Close may advance it from another
// goroutine before Serve takes over.
func (s *Server) currentState() fsm.State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Server) advance(ev fsm.Event) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	next, err := fsm.Transition(s.state, ev)
	if err != nil {
		s.logger.Debug("ipc slot transition rejected", "error", err.Error())
		return
	}
	s.state = next
	s.observed.Store(next)
}
