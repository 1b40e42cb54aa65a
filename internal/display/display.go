// Package display implements the OLED summary sink as a best-effort MQTT publisher: each uplink
// produces one summary record, offered to a bounded queue that the publisher goroutine drains,
// dropping records if the queue is full rather than blocking the aggregator.
package display

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Summary is the per-uplink record shown on the node's local display.
type Summary struct {
	IDMsg     byte      `json:"id_msg"`
	Timestamp time.Time `json:"timestamp"`
	FrameLen  int       `json:"frame_len"`
	Sensors   []int     `json:"sensors"`
}

// Publisher is the slice of mqtt.Client this sink depends on, narrowed for testability.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Sink is a bounded queue of summaries; Offer drops the newest record when full instead of
// blocking the caller.
type Sink struct {
	ch     chan Summary
	client Publisher
	topic  string
	logger *logrus.Logger
}

// NewSink wires a display sink to an already-connected MQTT client, publishing under topic.
// capacity bounds how many summaries can be pending before new ones are dropped.
func NewSink(client Publisher, topic string, capacity int, logger *logrus.Logger) *Sink {
	return &Sink{
		ch:     make(chan Summary, capacity),
		client: client,
		topic:  topic,
		logger: logger,
	}
}

// Offer enqueues a summary, dropping it if the queue is full.
func (s *Sink) Offer(sum Summary) {
	select {
	case s.ch <- sum:
	default:
		s.logger.Warn("display: summary queue full, dropping record")
	}
}

// Run drains summaries and publishes each as retained JSON until stop is closed.
func (s *Sink) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case sum := <-s.ch:
			s.publish(sum)
		}
	}
}

func (s *Sink) publish(sum Summary) {
	body, err := json.Marshal(sum)
	if err != nil {
		s.logger.WithError(err).Warn("display: failed to encode summary")
		return
	}
	token := s.client.Publish(s.topic, 0, true, body)
	const publishTimeout = 2 * time.Second
	if !token.WaitTimeout(publishTimeout) {
		s.logger.Warn("display: publish timed out")
		return
	}
	if token.Error() != nil {
		s.logger.WithError(token.Error()).Warn(fmt.Sprintf("display: publish to %s failed", s.topic))
	}
}
