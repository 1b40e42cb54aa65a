package modbus

import (
	"fmt"
	"strings"
	"time"
)

// X03xReadHolding server response to a Read Multiple Holding Registers request
type X03xReadHolding struct {
	Address int
	Values  []int
}

func (s X03xReadHolding) String() string {
	cnt := len(s.Values)
	txt := make([]string, cnt)
	for i, v := range s.Values {
		txt[i] = fmt.Sprintf("    0x%04x:   0x%04x  % 6d\n", s.Address+i, v, v)
	}
	return fmt.Sprintf("X03xReadHolding %05d -> %05d (count %v)\n", s.Address, s.Address+cnt-1, cnt) + strings.Join(txt, "")
}

func (c client) ReadHoldings(from int, count int, tout time.Duration) (*X03xReadHolding, error) {
	p := Builder{}
	p.Word(from)
	p.Word(count)
	ret := &X03xReadHolding{}
	tx := pdu{0x03, p.Payload()}
	decode := func(r *Reader) error {
		l, err := r.Byte()
		if err != nil {
			return err
		}
		if l != count*2 {
			return fmt.Errorf("Expect Read Holding Registers response to have correct count of values, %v not %v", count, l/2)
		}
		v, err := r.Words(count)
		if err != nil {
			return err
		}
		ret.Address = from
		ret.Values = v
		return nil
	}
	err := <-c.query(tout, tx, decode)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

