// Package radio defines the collaborator contract for the LoRaWAN transmit driver (out of scope
// as a concrete LMIC-class stack) and a bounded consumer loop that drains the uplink queue
// against it, honoring the driver's duty-cycle busy flag and TX-complete semaphore.
package radio

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldmon/monitor/internal/uplink"
)

// Driver is the contract a concrete LoRaWAN stack (LMIC-class) must satisfy. Send returns once
// the driver has accepted the frame for transmission, not once it's on air; completion is
// signaled separately via the driver's internal semaphore, observed here through WaitComplete.
type Driver interface {
	// Busy reports whether the driver is mid-transmission or inside its duty-cycle hold-off.
	Busy() bool
	// Send queues bytes for transmission on the given port. confirmed requests a LoRaWAN ack.
	Send(port byte, payload []byte, confirmed bool) error
	// WaitComplete blocks until the most recent Send reaches EV_TXCOMPLETE, or the deadline
	// elapses first.
	WaitComplete(deadline time.Duration) bool
}

// Port is the LoRaWAN application port used for uplink frames.
const Port = 1

// Uplinker drains a Queue against a Driver, one frame at a time, never starting a new
// transmission while the driver reports Busy.
type Uplinker struct {
	queue  *uplink.Queue
	driver Driver
	log    *logrus.Logger
}

// NewUplinker builds an uplinker over the given queue and driver.
func NewUplinker(queue *uplink.Queue, driver Driver, log *logrus.Logger) *Uplinker {
	return &Uplinker{queue: queue, driver: driver, log: log}
}

// Run blocks, transmitting frames as they become available, until stop is closed.
func (u *Uplinker) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			u.drainOnce()
		}
	}
}

func (u *Uplinker) drainOnce() {
	if u.driver.Busy() {
		return
	}
	frame, ok := u.queue.Dequeue()
	if !ok {
		return
	}
	if err := u.driver.Send(Port, frame, false); err != nil {
		u.log.WithError(err).Warn("radio: send failed")
		return
	}
	if !u.driver.WaitComplete(5 * time.Second) {
		u.log.Warn("radio: tx completion semaphore timed out")
	}
}
