/*
Package events provides an in-memory event broker for control-plane pub/sub
messaging.

The Broker broadcasts Events (job admission, quota application, violations,
bottleneck lifecycle, plan generation/execution, component health) to any
number of Subscribers over buffered channels. Publish never blocks on a slow
subscriber: a full subscriber buffer simply drops the event rather than
stalling the broadcast loop, so the broker favors liveness over delivery
guarantees.

Every Event carries a V field stamped with CurrentVersion by Publish, so a
subscriber decoding Data can reject or adapt to payload shapes it predates.

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&events.Event{
		Type: events.EventViolationDetected,
		Data: map[string]any{"container_id": id, "dimension": "memory"},
	})
*/
package events
