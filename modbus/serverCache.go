package modbus

import "time"

type atomic struct {
	todo chan func()
	done chan bool
}

func (a *atomic) execute(fn func()) {
	a.todo <- fn
}

func (a *atomic) Complete() {
	close(a.todo)
	<-a.done
}

func (s *server) StartAtomic() Atomic {
	atomic := <-s.atomics
	return atomic
}

// TryStartAtomic acquires the cache for exclusive access, but gives up after timeout rather than
// blocking indefinitely. A caller serving a remote read should treat ok=false as "busy".
func (s *server) TryStartAtomic(timeout time.Duration) (Atomic, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case atomic := <-s.atomics:
		return atomic, true
	case <-t.C:
		return nil, false
	}
}

// manageCache is run as a go-routine, it's the only one that accesses the holdings cache
func (s *server) manageCache() {
	for {
		// seed the channel with a new atomic operation.
		// the chan supports a buffer of 5 functions to run... we don't expect to ever have more than 1, but whatever
		a := &atomic{make(chan func(), 5), make(chan bool)}
		s.atomics <- a

		// while there are atomic operations, handle them.
		for fn := range a.todo {
			fn()
		}
		close(a.done)
		// the channel was closed, no more atomics, get ready to set up another seed.
	}
}

func (s *server) ensureHoldings(atomic Atomic, count int) {
	done := make(chan bool)
	atomic.execute(func() {
		defer close(done)
		if len(s.holdings) < count {
			s.holdings = append(s.holdings, make([]int, count-len(s.holdings))...)
		}
	})
	<-done
}

func (s *server) ReadHoldings(atomic Atomic, address, count int) ([]int, error) {
	cret := make(chan []int)
	cerr := make(chan error)
	atomic.execute(func() {
		defer close(cret)
		defer close(cerr)
		err := serverCheckAddress("Holding", address, count, len(s.holdings))
		if err != nil {
			cerr <- err
		} else {
			cret <- append(make([]int, 0), s.holdings[address:address+count]...)
		}
	})
	if ret, ok := <-cret; ok {
		return ret, nil
	}
	err := <-cerr
	return nil, err
}

func (s *server) ReadHoldingsAtomic(address int, count int) ([]int, error) {
	atomic := s.StartAtomic()
	defer atomic.Complete()
	return s.ReadHoldings(atomic, address, count)
}

func (s *server) WriteHoldings(atomic Atomic, address int, values []int) error {
	count := len(values)
	cerr := make(chan error)
	atomic.execute(func() {
		defer close(cerr)
		err := serverCheckAddress("Holding", address, count, len(s.holdings))
		if err != nil {
			cerr <- err
		} else {
			copy(s.holdings[address:address+count], values)
		}
	})
	err := <-cerr
	return err
}

func (s *server) WriteHoldingsAtomic(address int, values []int) error {
	atomic := s.StartAtomic()
	defer atomic.Complete()
	return s.WriteHoldings(atomic, address, values)
}
