// Package feed assembles event feed snapshots and pushes them to live subscribers.
package feed

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/internal/roster"
)

const refreshTimeout = 5 * time.Second

// EventGetter loads an event.
type EventGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// ApplicationLister lists an event's applications, newest first.
type ApplicationLister interface {
	ListApplicationsByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.Application, error)
}

// Broadcaster delivers feeds to subscribers on this and other instances.
type Broadcaster interface {
	BroadcastAndPublish(eventID uuid.UUID, feed *models.EventFeed)
	EventDeleted(eventID uuid.UUID)
}

// Limits bounds the lists carried in a snapshot.
type Limits struct {
	Participants int
	Applications int
}

// Loader reads the current state of an event into a models.EventFeed.
type Loader struct {
	events       EventGetter
	roster       roster.Reader
	applications ApplicationLister
	limits       Limits
	now          func() time.Time
}

// NewLoader creates a feed loader.
func NewLoader(events EventGetter, rosterReader roster.Reader, applications ApplicationLister, limits Limits) *Loader {
	if limits.Participants <= 0 {
		limits.Participants = 500
	}
	if limits.Applications <= 0 {
		limits.Applications = 200
	}
	return &Loader{events: events, roster: rosterReader, applications: applications, limits: limits, now: time.Now}
}

// Load returns participants by join time, the waitlist in FIFO order and applications newest first.
func (l *Loader) Load(ctx context.Context, eventID uuid.UUID) (*models.EventFeed, error) {
	ev, err := l.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	participants, err := l.roster.ListParticipants(ctx, eventID, l.limits.Participants)
	if err != nil {
		return nil, err
	}
	waitlist, err := l.roster.ListWaitlist(ctx, eventID)
	if err != nil {
		return nil, err
	}
	applications, err := l.applications.ListApplicationsByEvent(ctx, eventID, l.limits.Applications)
	if err != nil {
		return nil, err
	}
	f := &models.EventFeed{
		Event:        *ev,
		Participants: participants,
		Waitlist:     waitlist,
		Applications: applications,
		At:           l.now().UTC(),
	}
	if f.Participants == nil {
		f.Participants = []models.Participant{}
	}
	if f.Waitlist == nil {
		f.Waitlist = []models.WaitlistEntry{}
	}
	if f.Applications == nil {
		f.Applications = []models.Application{}
	}
	return f, nil
}

// Publisher reloads and broadcasts an event's feed after a committed change. It satisfies the
// notifier interfaces of the events, roster and waitlist packages.
type Publisher struct {
	loader *Loader
	out    Broadcaster
	logger *zap.Logger
}

// NewPublisher creates a feed publisher.
func NewPublisher(loader *Loader, out Broadcaster, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{loader: loader, out: out, logger: logger}
}

// Refresh pushes the event's current feed. Failures are logged; the change that triggered the
// refresh has already committed. The caller's cancellation does not cut the refresh short.
func (p *Publisher) Refresh(ctx context.Context, eventID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	defer cancel()
	f, err := p.loader.Load(ctx, eventID)
	if err != nil {
		if models.IsNotFound(err) {
			p.out.EventDeleted(eventID)
			return
		}
		p.logger.Warn("feed refresh failed", zap.Error(err), zap.String("event_id", eventID.String()))
		return
	}
	p.out.BroadcastAndPublish(eventID, f)
}

// Deleted tells subscribers the event is gone.
func (p *Publisher) Deleted(eventID uuid.UUID) {
	p.out.EventDeleted(eventID)
}
