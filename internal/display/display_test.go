package display

import (
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

type fakeToken struct{ err error }

func (f *fakeToken) Wait() bool                     { return true }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (f *fakeToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (f *fakeToken) Error() error                   { return f.err }

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.published = append(f.published, topic)
	return &fakeToken{}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestSinkPublishesOfferedSummary(t *testing.T) {
	pub := &fakePublisher{}
	s := NewSink(pub, "node/display", 4, quietLogger())
	s.Offer(Summary{IDMsg: 1, FrameLen: 10})
	s.publish(<-s.ch)

	if len(pub.published) != 1 || pub.published[0] != "node/display" {
		t.Fatalf("expected one publish to node/display, got %v", pub.published)
	}
}

func TestSinkDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	s := NewSink(pub, "node/display", 1, quietLogger())
	s.Offer(Summary{IDMsg: 1})
	s.Offer(Summary{IDMsg: 2}) // queue is full, dropped

	if len(s.ch) != 1 {
		t.Fatalf("expected exactly one queued summary, got %d", len(s.ch))
	}
}
