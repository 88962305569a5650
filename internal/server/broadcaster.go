// Package server fans outbound chat text out to every registered connection
// while isolating per-recipient failures.
package server

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Delivery summarizes one broadcast pass.
type Delivery struct {
	// Recipients is the size of the snapshot the message was sent to.
	Recipients int
	// Failed lists the recipients whose send failed.
	Failed []*Connection
}

// Delivered returns how many recipients accepted the message.
func (d Delivery) Delivered() int {
	return d.Recipients - len(d.Failed)
}

// Broadcaster delivers messages to a snapshot of the Registry. It never
// mutates the Registry; failed recipients are closed by Connection.Send and
// removed by their own sessions.
type Broadcaster struct {
	registry *Registry
	logger   logrus.FieldLogger
}

// NewBroadcaster creates a Broadcaster reading from registry.
func NewBroadcaster(registry *Registry, logger logrus.FieldLogger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// Broadcast sends message to every connection registered at the time of the
// call. Sends run concurrently, each bounded by its connection's write
// timeout, so one stalled recipient cannot hold up the others. An empty
// message is not sent.
func (b *Broadcaster) Broadcast(message string) Delivery {
	if message == "" {
		return Delivery{}
	}

	clients := b.registry.Snapshot()
	delivery := Delivery{Recipients: len(clients)}
	if len(clients) == 0 {
		return delivery
	}

	b.logger.WithField("recipients", len(clients)).Debug("Broadcasting message")

	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
	)
	wg.Add(len(clients))
	for _, client := range clients {
		go func(client *Connection) {
			defer wg.Done()
			if err := client.Send(message); err != nil {
				b.logFailure(client, err)
				failMu.Lock()
				delivery.Failed = append(delivery.Failed, client)
				failMu.Unlock()
			}
		}(client)
	}
	wg.Wait()

	return delivery
}

func (b *Broadcaster) logFailure(client *Connection, err error) {
	entry := b.logger.WithFields(logrus.Fields{
		"conn":    client.Addr(),
		"session": client.ID(),
	}).WithError(err)

	if isExpectedCloseError(err) {
		entry.Info("Could not send message to a closed client")
		return
	}
	entry.Warn("Could not send message to a client")
}
