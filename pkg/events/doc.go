/*
Package events provides the in-memory audit event broker for pcsd.

Handlers publish an Event whenever they change state or act on the cluster:
issuing a token, creating the bootstrap user, registering or removing a
cluster, authenticating to a peer, or running or forwarding a remote command.
The broker fans each event out to every subscriber. LogEvents attaches the
subscriber that writes events to the log under the "audit" component.
Short-lived CLI commands skip the broker and call Audit directly.

# Architecture

	Publish ──▶ event channel (100) ──▶ broadcast loop ──▶ subscriber channels (50 each)

Publishing never blocks a request. An event is dropped, with a warning, when
the event channel is full, and a subscriber whose buffer is full misses the
event. Events are not persisted; the audit trail is the log.

# Event Types

	token.issued         a password login produced a token
	auth.failed          a password login was rejected
	user.created         the bootstrap credential was (re)written
	peer.authenticated   a token for another node was stored
	cluster.added        a cluster was registered or replaced
	cluster.removed      a cluster was removed from the registry
	command.succeeded    a local remote command exited 0
	command.failed       a local remote command exited non-zero
	command.forwarded    a remote command was relayed to another node

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	stop := events.LogEvents(broker)
	defer stop()

	broker.Publish(&events.Event{
		Type:     events.EventClusterAdded,
		Message:  "cluster registered",
		Metadata: map[string]string{"cluster": "dwarf8"},
	})
*/
package events
