package realtime

import (
	"candidnotes/internal/common"

	"github.com/sirupsen/logrus"
)

// Broadcaster delivers events to snapshots taken from the registry.
// Delivery is best-effort and at-most-once: a failed send to one client is
// logged as a DeliveryFailure and never reaches the caller.
type Broadcaster struct {
	registry *Registry
	log      *logrus.Entry
}

func NewBroadcaster(registry *Registry, logger *logrus.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		log:      logger.WithField("component", "broadcaster"),
	}
}

// ToCandidate sends to every connection in the candidate's room and
// returns how many sends succeeded.
func (b *Broadcaster) ToCandidate(candidateID, event string, payload interface{}) int {
	return b.deliver(b.registry.ConnectionsForCandidate(candidateID), "", event, payload)
}

// ToCandidateExcept is ToCandidate without the originating connection.
func (b *Broadcaster) ToCandidateExcept(candidateID, senderConnID, event string, payload interface{}) int {
	return b.deliver(b.registry.ConnectionsForCandidate(candidateID), senderConnID, event, payload)
}

// ToUser sends on the user's personal channel, every device they have open.
func (b *Broadcaster) ToUser(userID, event string, payload interface{}) int {
	return b.deliver(b.registry.ConnectionsForUser(userID), "", event, payload)
}

// ToAllExcept sends to every live connection not owned by userID.
func (b *Broadcaster) ToAllExcept(userID, event string, payload interface{}) int {
	sent := 0
	for _, c := range b.registry.AllConnections() {
		if c.UserID() == userID {
			continue
		}
		if b.send(c, event, payload) {
			sent++
		}
	}
	return sent
}

func (b *Broadcaster) deliver(clients []Client, skipConnID, event string, payload interface{}) int {
	sent := 0
	for _, c := range clients {
		if c.ID() == skipConnID {
			continue
		}
		if b.send(c, event, payload) {
			sent++
		}
	}
	return sent
}

func (b *Broadcaster) send(c Client, event string, payload interface{}) bool {
	if err := c.Send(event, payload); err != nil {
		failure := common.DeliveryFailure(err, "failed to deliver %s", event)
		b.log.WithFields(logrus.Fields{
			"conn_id": c.ID(),
			"user_id": c.UserID(),
			"event":   event,
		}).WithError(failure).Warn("delivery failed")
		return false
	}
	return true
}
