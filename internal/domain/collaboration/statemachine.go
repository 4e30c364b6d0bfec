package collaboration

import "estatecollab/internal/domain/notification"

var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusRejected},
	StatusAccepted: {StatusActive},
	StatusActive:   {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseStatus rejects unknown values with ErrInvalidTransition.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", newError(CodeInvalidTransition, "unknown status %q", raw)
	}
	return s, nil
}

func checkTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	if from.Terminal() {
		return newError(CodeInvalidTransition, "collaboration is already %s", from)
	}
	return newError(CodeInvalidTransition, "cannot move a %s collaboration to %s", from, to)
}

// transitionEvent is the notification raised when a collaboration enters to.
func transitionEvent(to Status) (notification.Type, string) {
	switch to {
	case StatusAccepted:
		return notification.TypeProposalAccepted, "Proposal accepted"
	case StatusRejected:
		return notification.TypeProposalRejected, "Proposal declined"
	case StatusActive:
		return notification.TypeActivated, "Collaboration activated"
	case StatusCompleted:
		return notification.TypeCompleted, "Collaboration completed"
	case StatusCancelled:
		return notification.TypeCancelled, "Collaboration cancelled"
	}
	return notification.TypeProposalReceived, "New collaboration proposal"
}
