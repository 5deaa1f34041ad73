package event_bus

import (
	"encoding/json"
	"fmt"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// DashboardEventBus is a typed facade over the process-wide event bus.
// Payloads cross the bus as JSON so subscribers stay decoupled from the
// publisher's concrete types.
type DashboardEventBus[InputType any, OutputType any] interface {
	Subscribe(topic string, handler func(input InputType) error, transactional bool) (Subscription, error)
	Publish(topic string, arg OutputType) error
	WaitAsync()
}

// Subscription identifies one handler's attachment to a topic. Unsubscribe
// detaches exactly that handler; other subscribers on the topic are
// unaffected.
type Subscription interface {
	Unsubscribe() error
}

type DashboardEventBusImpl[InputType any, OutputType any] struct {
	eventBus EventBus.Bus
	logger   *zap.Logger
}

func NewDashboardEventBus[InputType any, OutputType any](
	eventBus EventBus.Bus,
	logger *zap.Logger,
) DashboardEventBus[InputType, OutputType] {
	return &DashboardEventBusImpl[InputType, OutputType]{
		eventBus: eventBus,
		logger:   logger,
	}
}

func (ev *DashboardEventBusImpl[InputType, OutputType]) Subscribe(
	topic string,
	handler func(input InputType) error,
	transactional bool,
) (Subscription, error) {
	wrapped := func(arg string) {
		var input InputType
		err := json.Unmarshal([]byte(arg), &input)
		if err != nil {
			ev.logger.Error("Failed to unmarshal input during subscription of topic",
				zap.String("topic", topic),
				zap.Error(err),
			)
			return
		}
		err = handler(input)
		if err != nil {
			ev.logger.Error("Failed to handle input during subscription of topic",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}
	err := ev.eventBus.SubscribeAsync(topic, wrapped, transactional)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	return &busSubscription{eventBus: ev.eventBus, topic: topic, handler: wrapped}, nil
}

func (ev *DashboardEventBusImpl[InputType, OutputType]) Publish(
	topic string,
	arg OutputType,
) error {
	argBytes, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("failed to marshal output during publishing of topic %s: %w", topic, err)
	}
	ev.eventBus.Publish(topic, string(argBytes))
	return nil
}

// WaitAsync blocks until every in-flight asynchronous handler has returned.
// Used on shutdown and in tests.
func (ev *DashboardEventBusImpl[InputType, OutputType]) WaitAsync() {
	ev.eventBus.WaitAsync()
}

type busSubscription struct {
	eventBus EventBus.Bus
	topic    string
	handler  func(arg string)
}

func (bs *busSubscription) Unsubscribe() error {
	if err := bs.eventBus.Unsubscribe(bs.topic, bs.handler); err != nil {
		return fmt.Errorf("failed to unsubscribe from topic %s: %w", bs.topic, err)
	}
	return nil
}
