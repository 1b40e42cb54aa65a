package slave

import (
	"errors"
	"testing"

	"github.com/fieldmon/monitor/modbus"
)

// requestBody builds the two-word FC3 request body (address, quantity) a real bus frame would
// carry, so handler tests exercise the same decode path production traffic does.
func requestBody(t *testing.T, addr, qty int) []byte {
	t.Helper()
	var b modbus.Builder
	b.Word(addr)
	b.Word(qty)
	return b.Payload()
}

func newReaderForTest(body []byte) *modbus.Reader {
	r := modbus.NewReader(body)
	return &r
}

func asModbusError(err error, target **modbus.Error) bool {
	return errors.As(err, target)
}
