/*
Package event provides the pub/sub event system for the agent runtime.

Components that change sessions publish events here, and consumers such as
the HTTP event stream and the CLI's run command subscribe without depending on
the publisher.

# Event Types

Session lifecycle:
  - session.created: session registered
  - session.started, session.paused, session.suspended, session.ended: state transitions
  - session.removed: session detached from the registry
  - session.model: backend model configured

Inference:
  - session.input: user turn recorded
  - session.token: one streamed token
  - session.idle: token stream drained

# Basic Usage

	unsubscribe := event.Subscribe(event.SessionToken, func(e event.Event) {
		data := e.Data.(event.SessionTokenData)
		fmt.Print(data.Token)
	})
	defer unsubscribe()

	event.PublishSync(event.Event{
		Type: event.SessionToken,
		Data: event.SessionTokenData{SessionID: id, Token: "hi"},
	})

Publish calls each subscriber in its own goroutine. PublishSync calls them in
the publisher's goroutine, which keeps token events in order. Subscribers used
with PublishSync must return quickly and must not publish themselves.

# Watermill

Every event is also encoded as JSON and published on Topic through a
watermill GoChannel. Messages returns a subscription to that topic; consumers
must Ack each message.

	msgs, err := bus.Messages(ctx)
	for msg := range msgs {
		forward(msg.Payload)
		msg.Ack()
	}

# Testing

Use NewBus for isolated instances and Reset to clear the global bus.
*/
package event
