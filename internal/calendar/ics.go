// Package calendar renders finalized events as iCalendar documents.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/availability-scheduler/internal/application"
)

// DefaultProductID identifies documents produced by this service.
const DefaultProductID = "-//availability-scheduler//EN"

// ErrNotScheduled is returned when the event has no committed slot.
var ErrNotScheduled = errors.New("calendar: event is not scheduled")

type exportOptions struct {
	productID string
	domain    string
	summary   string
	now       func() time.Time
}

// Option customises an export.
type Option func(*exportOptions)

// WithProductID overrides the PRODID of the calendar.
func WithProductID(id string) Option {
	return func(o *exportOptions) { o.productID = id }
}

// WithUIDDomain sets the host part of the VEVENT UID.
func WithUIDDomain(domain string) Option {
	return func(o *exportOptions) { o.domain = domain }
}

// WithSummary sets the SUMMARY line of the event.
func WithSummary(summary string) Option {
	return func(o *exportOptions) { o.summary = summary }
}

// WithClock sets the source of DTSTAMP.
func WithClock(now func() time.Time) Option {
	return func(o *exportOptions) { o.now = now }
}

// Export renders a single VEVENT for a scheduled event. All instants are
// written in UTC.
func Export(event application.Event, opts ...Option) ([]byte, error) {
	if !event.Scheduled() || event.EndDate == nil {
		return nil, ErrNotScheduled
	}

	o := exportOptions{
		productID: DefaultProductID,
		domain:    "availability-scheduler",
		summary:   "Group event",
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(o.productID)

	ev := cal.AddEvent(fmt.Sprintf("%s@%s", event.ID, o.domain))
	ev.SetDtStampTime(o.now().UTC())
	ev.SetCreatedTime(event.CreatedAt.UTC())
	ev.SetModifiedAt(event.UpdatedAt.UTC())
	ev.SetStartAt(event.StartDate.UTC())
	ev.SetEndAt(event.EndDate.UTC())
	ev.SetSummary(o.summary)
	ev.SetDescription(fmt.Sprintf("Group %s, %d minutes", event.GroupID, event.DurationMinutes))

	var b strings.Builder
	if err := cal.SerializeTo(&b); err != nil {
		return nil, fmt.Errorf("calendar: serialize: %w", err)
	}
	return []byte(b.String()), nil
}
