package events

import "github.com/kelindar/event"

// SubscribeToChannel adapts a callback subscription into channel sends so
// SSE handlers can select over bus traffic. Sends never block; when the
// consumer falls behind, events for it are dropped.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
