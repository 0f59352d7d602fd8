package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// HandlerFunc consumes one decoded event
type HandlerFunc func(ctx context.Context, event *Event) error

// Router dispatches events from a subscriber to typed handlers
type Router struct {
	router     *message.Router
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewRouter(subscriber message.Subscriber, logger *slog.Logger) (*Router, error) {
	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create event router: %w", err)
	}
	r.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			Logger:          watermill.NewSlogLogger(logger),
		}.Middleware,
	)
	return &Router{router: r, subscriber: subscriber, logger: logger}, nil
}

// Handle registers fn for events of type t
func (r *Router) Handle(name string, t EventType, fn HandlerFunc) {
	r.router.AddNoPublisherHandler(name, string(t), r.subscriber, func(msg *message.Message) error {
		var event Event
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			// poison message: ack and drop
			r.logger.Error("Dropping undecodable event", "handler", name, "message_id", msg.UUID, "error", err)
			return nil
		}
		return fn(msg.Context(), &event)
	})
}

// Run blocks until ctx is cancelled or the router is closed
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running is closed once handlers are subscribed
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

func (r *Router) Close() error {
	return r.router.Close()
}
