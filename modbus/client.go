package modbus

import (
	"fmt"
	"time"
)

type client struct {
	unit  byte
	trans *modbus
	rx    chan pdu
}

// Client is able to drive a single modbus server (Send functions and get responses).
//
// This system only ever issues Read Holding Registers (function code 3) requests, to either the
// 8-register self-description block or a sensor's data window, so that is the only operation
// exposed here.
type Client interface {
	// UnitID retrieves the remote unitID we are communicating with
	UnitID() int

	// ReadHoldings reads multiple holding register values from a remote unit
	ReadHoldings(from int, count int, tout time.Duration) (*X03xReadHolding, error)
}

func (c *client) UnitID() int {
	return int(c.unit)
}

type readDecoder func(*Reader) error

// query is a reuable function that all client-operations uses to coordinate the communication
// with the remote server.
func (c *client) query(tout time.Duration, tx pdu, callback readDecoder) <-chan error {
	errc := make(chan error, 0)
	go func() {
		ticker := time.NewTimer(tout)
		c.trans.txid++
		a := adu{true, c.trans.txid, byte(c.unit), tx}
		select {
		case <-ticker.C:
			errc <- fmt.Errorf("Timeout exceeded waiting to send: %v", tout)
			return
		case c.trans.tx <- a:
			// great, sent the data.....
		}
		select {
		case <-ticker.C:
			errc <- fmt.Errorf("Timeout exceeded waiting to receive: %v", tout)
			return
		case rx := <-c.rx:
			// great, received the data.....
			var err error
			if rx.function >= 128 {
				// error condition
				ec := byte(0)
				if len(rx.data) > 0 {
					ec = rx.data[0]
				}
				switch ec {
				case 1:
					err = IllegalFunctionErrorF("Modbus Illegal Function")
				case 2:
					err = IllegalAddressErrorF("Modbus Illegal Data Address")
				case 3:
					err = IllegalValueErrorF("Modbus Illegal Data Value")
				case 4:
					err = ServerFailureErrorF("Modbus Server Device Failure")
				case 5:
					err = ServerFailureErrorF("Modbus ACK Only")
				case 6:
					err = ServerBusyErrorF("Modbus Server Busy")
				default:
					err = ServerFailureErrorF("Modbus Unknown error code: %v", ec)
				}
			} else {
				reader := getReader(rx.data)
				err = callback(&reader)
				if err == nil {
					err = reader.Remaining()
				}
			}
			errc <- err
			close(errc)
		}
	}()
	return errc
}
