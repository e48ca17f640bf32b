/*
Package events provides an in-memory event broker for kvdeck's client
components.

The session guard, the navigation gate and the key-space browser publish
events when something a user would notice happens: a login, a redirect to
the login route, a cluster selection, a key write. Components depend on the
Publisher interface and default to Discard, so nothing is published unless
the embedding program wires a Broker in. The CLI does so with --verbose and
logs every event it receives.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  Publisher → Event Channel (buffer: 100)                  │
	│       ↓                                                    │
	│  Broadcast Loop (started by Start)                        │
	│       ↓                                                    │
	│  Subscriber Channels (buffer: 50 each)                    │
	│                                                            │
	│  Event Types:                                             │
	│    session.authenticated  session.anonymous               │
	│    session.logged_out     session.lost                    │
	│    navigation.redirected  cluster.selected                │
	│    keyspace.listed  keyspace.put  keyspace.deleted        │
	└────────────────────────────────────────────────────────┘

Publish never blocks. When the queue or a subscriber's buffer is full the
event is dropped for that subscriber; events are notifications, not a
source of truth.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("%s: %s\n", event.Type, event.Message)
		}
	}()

	guard := session.NewGuard(auth, session.Options{Events: broker})
*/
package events
