/*
Package modbus provides a Modbus RTU transport, scoped to the one operation this bus ever
carries: function code 3, Read Holding Registers.

You need an RS-485 half-duplex communication channel before anything else. Establishing one is:

    mb, _ := modbus.NewRTU("/dev/ttyUSB0", 19200, modbus.ParityNone, modbus.StopBitsOne, 0, false)

Once a Modbus instance exists, a slave-side process installs a Server on it:

	server, _ := modbus.NewServer(unitID, deviceInfo)
	server.SetRequestHandler(0x03, 4, myReadHoldingHandler)
	mb.SetServer(5, server)

and a gateway-side process gets a Client per remote unit:

    client := mb.GetClient(5)
    reply, err := client.ReadHoldings(0, 8, 2*time.Second)

Special note about Client instances: the Modbus documentation indicates that a "client" can talk
to any of the servers on the bus, but this code requires a unique Client instance per remote
server.

The Modbus protocol relies heavily on 8-bit byte and 16-bit word values to communicate data. This
library abstracts all the type conversion and relies on basic Go `int` values instead. Where
converting to the valid Modbus type is not possible due to out-of-range values, a panic will be
generated. The trade off for code complexity is significant. The public interface for all modbus
operations is thus completely int based.
*/
package modbus

import (
	"errors"
	"fmt"
)

type rtuFrame []byte

// pdu is the function and data sent on the Modbus.
type pdu struct {
	function byte
	data     rtuFrame
}

// adu is the data packet used to move Modbus data from a client to a specific server, and the response it gives.
type adu struct {
	request bool
	txid    uint16
	unit    byte
	pdu     pdu
}

type busErrorFunc func() int

/*
Modbus is a half duplex (or possibly full duplex) mechanism for talking to remote units.

In order to create a Modbus instance you need to initialize it using the `modbus.NewRTU` constructor, the only
transport this package provides.

The Modbus instance can be used to get clients, add servers, or close the communication channel. In addition
you can get the current diagnostic state of the channel.
*/
type Modbus interface {
	//GetClient creates a control instance for communicating with a specific server on the remote side of the Modbus
	GetClient(unitID int) Client
	// SetServer establishes a server instance on the given unitId
	SetServer(unitID int, server Server)
	// Close closes the communication channel under the Modbus protocol
	Close() error
	// Diagnostics returns the current diagnostic counters for the Modbus channel
	Diagnostics() BusDiagnostics

	getEventLog() []int
	clearDiagnostics()
	clearOverrunCounter()
}

type modbus struct {
	tx      chan adu
	rx      chan adu
	clients map[byte]*client
	servers map[byte]Server
	pending map[uint16]bool
	closer  func() error
	txid    uint16
	diag    *busDiagnosticManager
}

func newModbus(tx chan adu, rx chan adu, closer func() error, diag *busDiagnosticManager) Modbus {
	mytx := make(chan adu, 0)
	m := &modbus{mytx, rx, make(map[byte]*client), make(map[byte]Server), make(map[uint16]bool), closer, 0, diag}
	go m.demuxRX()
	go m.associate(tx)
	return m
}

func (m *modbus) Close() error {
	return m.closer()
}

func (m *modbus) Diagnostics() BusDiagnostics {
	return m.diag.getDiagnostics()
}

func (m *modbus) getEventLog() []int {
	return m.diag.getEventLog()
}

func (m *modbus) clearDiagnostics() {
	m.diag.clear()
}

func (m *modbus) clearOverrunCounter() {
	m.diag.clearOverrun()
}

// GetClient estabishes a client that talks to a remote unit.
func (m *modbus) GetClient(unitID int) Client {
	unit := bytePanic(unitID)
	c := m.clients[unit]
	if c != nil {
		return c
	}
	// make a new one.
	c = &client{unit, m, make(chan pdu, 5)}
	m.clients[unit] = c
	return c
}

// SetServer sets a handler for when remote units talk to us.
func (m *modbus) SetServer(unit int, server Server) {
	m.servers[bytePanic(unit)] = server
}

func (m *modbus) associate(to chan adu) {
	for a := range m.tx {
		if a.request {
			m.pending[a.txid] = true
		}
		to <- a
	}
}

func (m *modbus) demuxRX() {
	for adu := range m.rx {
		if m.pending[adu.txid] {
			delete(m.pending, adu.txid)
			m.clients[adu.unit].rx <- adu.pdu
		} else if m.servers[adu.unit] != nil || m.servers[0xff] != nil {
			go m.handleServer(adu)
		} else if m.clients[adu.unit] != nil {
			fmt.Printf("Received packet for %v but that client is not expecting a response.\n", adu.unit)
		} else {
			fmt.Printf("Received packet for %v but there is nothing serving that address.\n", adu.unit)
		}
	}
}

func (m *modbus) handleServer(req adu) {
	server := m.servers[req.unit]
	if server == nil {
		server = m.servers[0xff]
	}
	data, err := server.request(m, req.unit, req.pdu.function, req.pdu.data)
	if err != nil {
		var mError *Error
		if !errors.As(err, &mError) {
			mError = ServerFailureErrorF("%v", err)
		}
		fmt.Printf("Request failed unit 0x%02x function 0x%02x: %v\n", req.unit, req.pdu.function, mError)
		p := mError.asPDU(req.pdu.function)
		rep := adu{false, req.txid, req.unit, p}
		m.tx <- rep
	} else {
		fmt.Printf("Handled unit 0x%02x function 0x%02x\n", req.unit, req.pdu.function)
		p := pdu{req.pdu.function, data}
		rep := adu{false, req.txid, req.unit, p}
		m.tx <- rep
	}
}
