// Package slave assembles a node's sample pipeline and exposes it over Modbus: a fixed
// eight-register self-description block at [0..7] and a publication window at
// [10..10+W-1]. The window is served from the server's holding-register cache; the descriptor
// block is encoded afresh on every request.
package slave

import (
	"time"

	"github.com/fieldmon/monitor/internal/descriptor"
	"github.com/fieldmon/monitor/modbus"
)

// DescriptorBase is the fixed register address of the self-description block.
const DescriptorBase = 0

// WindowBase is the fixed register address of the RMS publication window.
const WindowBase = 10

// BusyTimeout bounds how long the FC3 handler will wait to acquire the register cache before
// falling back to SERVER_DEVICE_BUSY, per the 100ms budget.
const BusyTimeout = 100 * time.Millisecond

// NewReadHoldingsHandler builds the RequestHandler registered for function code 3 against a
// server whose holdings cache has been sized to at least WindowBase+windowSize, the window being
// windowSize registers starting at WindowBase. descriptorRegs is re-read on every request so a
// process that mutates its own identity takes effect without restarting the handler.
func NewReadHoldingsHandler(server modbus.Server, windowSize int, descriptorRegs func() [descriptor.RegisterCount]uint16) modbus.RequestHandler {
	return func(mb modbus.Modbus, req *modbus.Reader, res *modbus.Builder) error {
		addr, err := req.Word()
		if err != nil {
			return err
		}
		qty, err := req.Word()
		if err != nil {
			return err
		}

		switch {
		case addr == DescriptorBase && qty == descriptor.RegisterCount:
			regs := descriptorRegs()
			res.Byte(descriptor.RegisterCount * 2)
			for _, r := range regs {
				res.Word(int(r))
			}
			return nil

		case addr >= WindowBase && addr+qty <= WindowBase+windowSize:
			atomic, ok := server.TryStartAtomic(BusyTimeout)
			if !ok {
				return modbus.ServerBusyErrorF("register window locked, try again")
			}
			defer atomic.Complete()
			values, err := server.ReadHoldings(atomic, addr, qty)
			if err != nil {
				return err
			}
			res.Byte(qty * 2)
			res.Words(values...)
			return nil

		default:
			return modbus.IllegalAddressErrorF("address %d/qty %d is outside the descriptor block and the %d-register window", addr, qty, windowSize)
		}
	}
}
