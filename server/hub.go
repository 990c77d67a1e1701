package server

import (
	"sync"

	"github.com/FrenchMajesty/chat-widget/chat_widget"
	"github.com/FrenchMajesty/chat-widget/utils/logger"
)

const defaultSubscriberBuffer = 64

// EventHub fans the widget's single event channel out to any number of event stream clients.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[string]chan *chat_widget.Event
	closed      bool
	done        chan struct{}

	metrics *Metrics
	logger  logger.Logger
}

func NewEventHub(metrics *Metrics, l logger.Logger) *EventHub {
	return &EventHub{
		subscribers: make(map[string]chan *chat_widget.Event),
		done:        make(chan struct{}),
		metrics:     metrics,
		logger:      logger.OrNoop(l),
	}
}

// Run consumes events until the channel is closed, then closes every subscriber.
func (h *EventHub) Run(events <-chan *chat_widget.Event) {
	defer close(h.done)

	for event := range events {
		if h.metrics != nil {
			h.metrics.ObserveEvent(event)
		}
		h.broadcast(event)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	h.updateSubscriberGauge()
}

// Done is closed once Run has returned.
func (h *EventHub) Done() <-chan struct{} {
	return h.done
}

func (h *EventHub) broadcast(event *chat_widget.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Printf("[server] dropping %s event for slow subscriber %s", event.Type, id)
		}
	}
}

// Subscribe registers a client. The returned channel is closed by unsubscribe or when the hub stops.
func (h *EventHub) Subscribe(id string) (<-chan *chat_widget.Event, func()) {
	ch := make(chan *chat_widget.Event, defaultSubscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if previous, ok := h.subscribers[id]; ok {
		close(previous)
	}
	h.subscribers[id] = ch
	h.updateSubscriberGauge()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if current, ok := h.subscribers[id]; ok && current == ch {
				close(ch)
				delete(h.subscribers, id)
				h.updateSubscriberGauge()
			}
		})
	}
	return ch, unsubscribe
}

func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// updateSubscriberGauge must be called with mu held.
func (h *EventHub) updateSubscriberGauge() {
	if h.metrics != nil {
		h.metrics.SSESubscribers.Set(float64(len(h.subscribers)))
	}
}
