package event_bus

import (
	"testing"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type busPayload struct {
	TraceID string `json:"trace_id"`
	Steps   int    `json:"steps"`
}

func TestDashboardEventBus(t *testing.T) {
	t.Run("Delivers published payloads to subscribers as typed values", func(t *testing.T) {
		bus := NewDashboardEventBus[busPayload, busPayload](EventBus.New(), zap.NewNop())
		received := make(chan busPayload, 1)

		_, err := bus.Subscribe("updates", func(input busPayload) error {
			received <- input
			return nil
		}, false)
		require.Nil(t, err)

		require.Nil(t, bus.Publish("updates", busPayload{TraceID: "t1", Steps: 3}))
		bus.WaitAsync()

		require.Equal(t, 1, len(received))
		assert.Equal(t, busPayload{TraceID: "t1", Steps: 3}, <-received)
	})

	t.Run("An unsubscribed handler receives nothing further", func(t *testing.T) {
		bus := NewDashboardEventBus[busPayload, busPayload](EventBus.New(), zap.NewNop())
		received := make(chan busPayload, 2)

		subscription, err := bus.Subscribe("updates", func(input busPayload) error {
			received <- input
			return nil
		}, false)
		require.Nil(t, err)

		require.Nil(t, bus.Publish("updates", busPayload{TraceID: "t1", Steps: 1}))
		bus.WaitAsync()
		require.Nil(t, subscription.Unsubscribe())

		require.Nil(t, bus.Publish("updates", busPayload{TraceID: "t1", Steps: 2}))
		bus.WaitAsync()
		assert.Equal(t, 1, len(received))
	})
}
