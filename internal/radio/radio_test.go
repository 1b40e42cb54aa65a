package radio

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldmon/monitor/internal/uplink"
)

type fakeDriver struct {
	busy bool
	sent [][]byte
}

func (f *fakeDriver) Busy() bool { return f.busy }
func (f *fakeDriver) Send(port byte, payload []byte, confirmed bool) error {
	f.sent = append(f.sent, payload)
	return nil
}
func (f *fakeDriver) WaitComplete(deadline time.Duration) bool { return true }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestUplinkerSendsQueuedFrame(t *testing.T) {
	q := uplink.NewQueue(4)
	q.Enqueue([]byte{1, 2, 3})
	driver := &fakeDriver{}
	u := NewUplinker(q, driver, quietLogger())

	u.drainOnce()

	if len(driver.sent) != 1 {
		t.Fatalf("expected one frame sent, got %d", len(driver.sent))
	}
}

func TestUplinkerHonorsBusy(t *testing.T) {
	q := uplink.NewQueue(4)
	q.Enqueue([]byte{1})
	driver := &fakeDriver{busy: true}
	u := NewUplinker(q, driver, quietLogger())

	u.drainOnce()

	if len(driver.sent) != 0 {
		t.Fatalf("busy driver should not receive a send")
	}
	if q.Len() != 1 {
		t.Fatalf("frame should remain queued while driver is busy")
	}
}
