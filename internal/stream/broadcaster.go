package stream

import (
	"context"
	"log"
	"time"
)

const (
	appendTimeout   = 5 * time.Second
	appendQueueSize = 256
)

// EventLog is an optional append-only sink for published events, keyed by
// channel name. Appends happen off the delivery path.
type EventLog interface {
	Append(ctx context.Context, channel string, evt Event) error
}

type appendRequest struct {
	channel string
	evt     Event
}

// Broadcaster fans one event out to every session currently subscribed to a
// channel. Delivery is best-effort per subscriber: a failed or slow send drops
// that subscriber's copy and never blocks the publishing job or the remaining
// subscribers. Events from a single producer are delivered in publish order.
type Broadcaster struct {
	registry *Registry
	eventLog EventLog
	appends  chan appendRequest
}

// NewBroadcaster wires a broadcaster to the registry. eventLog may be nil, in
// which case events are delivered to live subscribers only. With a log, a
// single worker drains a bounded queue so the persisted tail keeps publish
// order while persistence stays off the delivery path; when the queue is full
// the append is dropped rather than blocking the publisher.
func NewBroadcaster(registry *Registry, eventLog EventLog) *Broadcaster {
	b := &Broadcaster{registry: registry, eventLog: eventLog}
	if eventLog != nil {
		b.appends = make(chan appendRequest, appendQueueSize)
		go b.appendLoop()
	}
	return b
}

// Publish delivers the event to every subscriber of the channel and, when an
// event log is configured, enqueues it for appending.
func (b *Broadcaster) Publish(channel string, evt Event) {
	msg := OutboundMessage{
		Type:      "broadcast",
		Channel:   channel,
		Data:      &evt,
		Timestamp: time.Now().UTC(),
	}
	for _, sender := range b.registry.SubscribersOf(channel) {
		if err := sender.Send(msg); err != nil {
			log.Printf("broadcast to %s subscriber dropped: %v", channel, err)
		}
	}
	b.appendAsync(channel, evt)
}

// PublishAll delivers the event to every connected session, ignoring
// subscription filters. Used for administrative announcements.
func (b *Broadcaster) PublishAll(evt Event) {
	msg := OutboundMessage{
		Type:      "broadcast",
		Data:      &evt,
		Timestamp: time.Now().UTC(),
	}
	for _, sender := range b.registry.AllSenders() {
		if err := sender.Send(msg); err != nil {
			log.Printf("broadcast to session dropped: %v", err)
		}
	}
}

func (b *Broadcaster) appendAsync(channel string, evt Event) {
	if b.appends == nil {
		return
	}
	select {
	case b.appends <- appendRequest{channel: channel, evt: evt}:
	default:
		log.Printf("event log append for %s dropped: queue full", channel)
	}
}

// appendLoop is the only writer into the event log, so replayed events come
// back in the order they were published on each channel.
func (b *Broadcaster) appendLoop() {
	for req := range b.appends {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := b.eventLog.Append(ctx, req.channel, req.evt); err != nil {
			log.Printf("event log append for %s failed: %v", req.channel, err)
		}
		cancel()
	}
}
