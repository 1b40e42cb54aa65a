package modbus

import (
	"fmt"
	"time"
)

/*
Atomic allows locked access to the server's internal holding-register cache.
implementation in serverCache.go. An Atomic instance is created by calling the StartAtomic() (or
TryStartAtomic()) function on the Server.

Do not Complete an atomic unless you started it. It's normal to `defer a.Complete()` immediately after starting it

	atomic := server.StartAtomic()
	defer atomic.Complete()

	// do stuff using the atomic...

*/
type Atomic interface {
	// Complete indicates that all operations in the atomic set are queued. It returns when all operations have completed.
	Complete()

	execute(func())
}

// RequestHandler decodes a request PDU body and encodes the matching response, or returns an
// error (typically an *Error built from one of the ErrorF constructors) to have it reported
// back to the caller as a Modbus exception.
type RequestHandler func(Modbus, *Reader, *Builder) error

// Server represents a system that can handle an incoming request from a remote client.
//
// Unlike a general-purpose Modbus server, this Server exposes only the holding-register memory
// model: this system never uses coils, discretes, inputs, or files, so there's nothing to
// generalize there. Callers supply their own function-code handlers via SetRequestHandler; the
// address semantics (which windows exist, what's illegal, when to report busy) are entirely up
// to the handler, the Server only owns the concurrency-safe holding register cache beneath it.
type Server interface {
	// Diagnostics returns the current diagnostic counts of the server instance
	Diagnostics() ServerDiagnostics

	// Busy will return true if a command is actively being handled
	Busy() bool

	// StartAtomic requests that access to the internal holding register cache is granted. Only
	// 1 transaction is active at a time, and is active until it is Completed.
	StartAtomic() Atomic

	// TryStartAtomic is the same as StartAtomic but gives up after timeout elapses, returning
	// ok=false. Use this on the path serving a remote read so a stalled updater degrades to a
	// busy response instead of stalling the whole bus.
	TryStartAtomic(timeout time.Duration) (atomic Atomic, ok bool)

	// RegisterHoldings indicates how many holding registers to make available in the cache
	RegisterHoldings(count int)
	// ReadHoldings performs a holding register read operation as part of an existing atomic operation from the cache
	ReadHoldings(atomic Atomic, address int, count int) ([]int, error)
	// ReadHoldingsAtomic performs an atomic ReadHoldings
	ReadHoldingsAtomic(address int, count int) ([]int, error)
	// WriteHoldings performs a holding register write operation as part of an existing atomic operation to the cache
	WriteHoldings(atomic Atomic, address int, values []int) error
	// WriteHoldingsAtomic performs an atomic WriteHoldings
	WriteHoldingsAtomic(address int, values []int) error

	// SetRequestHandler installs the handler invoked for the given Modbus function code.
	// minSize is the smallest legal request body, checked before handler is invoked.
	SetRequestHandler(function byte, minSize int, handler RequestHandler)

	// request is called from the modbus layer and instructs the server to handle a request.
	request(bus Modbus, unit byte, function byte, data []byte) ([]byte, error)
}

type requestHandlerMeta struct {
	function byte
	minSize  int
	handler  RequestHandler
}

type server struct {
	id         []byte
	deviceInfo []string
	rhandlers  map[byte]requestHandlerMeta
	holdings   []int
	atomics    chan Atomic
	diag       *serverDiagnosticManager
}

// NewServer creates a Server instance that can be bound to a Modbus instance using modbus.SetServer(...).
func NewServer(id []byte, deviceInfo []string) (Server, error) {
	if len(deviceInfo) < 3 {
		return nil, fmt.Errorf("DeviceInfo is required to have at least 3 members, not %v", deviceInfo)
	}
	s := &server{}
	s.id = make([]byte, len(id))
	copy(s.id, id)
	s.deviceInfo = make([]string, len(deviceInfo))
	copy(s.deviceInfo, deviceInfo)
	s.rhandlers = make(map[byte]requestHandlerMeta)
	s.diag = newServerDiagnosticManager()
	s.atomics = make(chan Atomic, 0)

	go s.manageCache()

	return s, nil
}

func (s *server) SetRequestHandler(function byte, minsize int, handler RequestHandler) {
	s.rhandlers[function] = requestHandlerMeta{function, minsize, handler}
}

func (s *server) Diagnostics() ServerDiagnostics {
	return s.diag.getDiagnostics()
}

func (s *server) Busy() bool {
	return s.diag.busy()
}

func (s *server) RegisterHoldings(count int) {
	atomic := s.StartAtomic()
	defer atomic.Complete()
	s.ensureHoldings(atomic, count)
}

func (s *server) request(mb Modbus, unit byte, function byte, request []byte) ([]byte, error) {
	h, ok := s.rhandlers[function]
	if !ok {
		return nil, fmt.Errorf("Function code 0x%02x not implemented", function)
	}

	s.diag.message()
	s.diag.eventQueued()
	defer s.diag.eventComplete()

	req := getReader(request)
	res := Builder{}

	err := req.CanRead(h.minSize)
	if err != nil {
		return nil, err
	}

	err = h.handler(mb, &req, &res)
	if err != nil {
		return nil, err
	}

	err = req.Remaining()
	if err != nil {
		return nil, err
	}

	// a successful recorded event increments the successful event counter
	s.diag.eventCounter()

	return res.Payload(), nil
}
