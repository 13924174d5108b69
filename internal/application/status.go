package application

// Status is the scheduling state of an event, derived from its fields.
type Status string

const (
	// StatusAwaitingAvailability means not every member has submitted, or
	// suggestions have not been computed yet.
	StatusAwaitingAvailability Status = "awaiting_availability"
	// StatusSuggested means ranked suggestions are available.
	StatusSuggested Status = "suggested"
	// StatusUnresolved means every member submitted but no slot fits.
	StatusUnresolved Status = "unresolved"
	// StatusScheduled means a slot has been committed.
	StatusScheduled Status = "scheduled"
)

// DeriveStatus computes the status of an event.
func DeriveStatus(event Event, allSubmitted bool, suggestionCount int) Status {
	switch {
	case event.Scheduled():
		return StatusScheduled
	case suggestionCount > 0:
		return StatusSuggested
	case allSubmitted && event.SuggestionsComputedAt != nil:
		return StatusUnresolved
	default:
		return StatusAwaitingAvailability
	}
}
