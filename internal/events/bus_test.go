package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishAndUnsubscribe(t *testing.T) {
	bus := NewBus()

	var got []string
	unsubscribe := bus.Subscribe(func(e CheckoutCompleted) {
		got = append(got, e.CheckoutID)
	})

	bus.Publish(CheckoutCompleted{CheckoutID: "chk-1"})
	unsubscribe()
	bus.Publish(CheckoutCompleted{CheckoutID: "chk-2"})

	assert.Equal(t, []string{"chk-1"}, got)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	assert.NotPanics(t, func() {
		NewBus().Publish(CheckoutCompleted{CheckoutID: "chk-1"})
	})
}
