// Package memstore is an in-memory implementation of the roster, application and profile stores.
// Each event has its own mutex; a failed transaction restores the event's records.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/internal/roster"
)

type record[T any] struct {
	val T
	seq int64
}

type bucket struct {
	event        models.Event
	participants map[uuid.UUID]record[models.Participant]
	applications map[uuid.UUID]record[models.Application]
	waitlist     map[uuid.UUID]record[models.WaitlistEntry]
	myEvents     map[uuid.UUID]time.Time
}

func (b *bucket) clone() *bucket {
	c := &bucket{
		event:        b.event,
		participants: make(map[uuid.UUID]record[models.Participant], len(b.participants)),
		applications: make(map[uuid.UUID]record[models.Application], len(b.applications)),
		waitlist:     make(map[uuid.UUID]record[models.WaitlistEntry], len(b.waitlist)),
		myEvents:     make(map[uuid.UUID]time.Time, len(b.myEvents)),
	}
	for k, v := range b.participants {
		c.participants[k] = v
	}
	for k, v := range b.applications {
		c.applications[k] = v
	}
	for k, v := range b.waitlist {
		c.waitlist[k] = v
	}
	for k, v := range b.myEvents {
		c.myEvents[k] = v
	}
	return c
}

// Store holds events with their rosters, plus profiles.
type Store struct {
	mu       sync.Mutex
	seq      int64
	buckets  map[uuid.UUID]*bucket
	locks    map[uuid.UUID]*sync.Mutex
	profiles map[uuid.UUID]models.Profile
}

// New creates an empty store.
func New() *Store {
	return &Store{
		buckets:  make(map[uuid.UUID]*bucket),
		locks:    make(map[uuid.UUID]*sync.Mutex),
		profiles: make(map[uuid.UUID]models.Profile),
	}
}

var _ roster.Store = (*Store)(nil)

func (s *Store) lock(eventID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[eventID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[eventID] = l
	}
	return l
}

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

// PutEvent stores an event, assigning an ID when it has none, and returns the stored copy.
func (s *Store) PutEvent(e models.Event) models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if b, ok := s.buckets[e.ID]; ok {
		b.event = e
		return e
	}
	s.buckets[e.ID] = &bucket{
		event:        e,
		participants: make(map[uuid.UUID]record[models.Participant]),
		applications: make(map[uuid.UUID]record[models.Application]),
		waitlist:     make(map[uuid.UUID]record[models.WaitlistEntry]),
		myEvents:     make(map[uuid.UUID]time.Time),
	}
	return e
}

// DeleteEvent removes an event and everything attached to it.
func (s *Store) DeleteEvent(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, id)
}

// SetCount overwrites participants_count without touching participants, simulating drift.
func (s *Store) SetCount(eventID uuid.UUID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[eventID]; ok {
		b.event.ParticipantsCount = n
	}
}

// GetByID returns a copy of the event or models.ErrNotFound.
func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, models.ErrNotFound)
	}
	e := b.event
	return &e, nil
}

// ListIDs returns every event ID, oldest event first.
func (s *Store) ListIDs(context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]models.Event, 0, len(s.buckets))
	for _, b := range s.buckets {
		events = append(events, b.event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids, nil
}

// PutProfile stores a profile.
func (s *Store) PutProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UID] = p
}

// GetProfile implements roster.ProfileLookup.
func (s *Store) GetProfile(_ context.Context, uid uuid.UUID) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", uid, models.ErrNotFound)
	}
	return &p, nil
}

// MyEvents returns the event IDs in the user's index.
func (s *Store) MyEvents(userID uuid.UUID) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, b := range s.buckets {
		if _, ok := b.myEvents[userID]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// InEventTx implements roster.Store.
func (s *Store) InEventTx(ctx context.Context, eventID uuid.UUID, fn func(ctx context.Context, tx roster.Tx) error) error {
	l := s.lock(eventID)
	l.Lock()
	defer l.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	var backup *bucket
	if b, ok := s.buckets[eventID]; ok {
		backup = b.clone()
	}
	s.mu.Unlock()

	if err := fn(ctx, &memTx{s: s, eventID: eventID}); err != nil {
		if backup != nil {
			s.mu.Lock()
			if _, ok := s.buckets[eventID]; ok {
				s.buckets[eventID] = backup
			}
			s.mu.Unlock()
		}
		return err
	}
	return nil
}

// GetParticipant implements roster.Reader.
func (s *Store) GetParticipant(_ context.Context, eventID, userID uuid.UUID) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[eventID]
	if !ok {
		return nil, nil
	}
	if r, ok := b.participants[userID]; ok {
		p := r.val
		return &p, nil
	}
	return nil, nil
}

// ListParticipants implements roster.Reader.
func (s *Store) ListParticipants(_ context.Context, eventID uuid.UUID, limit int) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[eventID]
	if !ok {
		return nil, nil
	}
	list := sorted(b.participants, func(a, b record[models.Participant]) bool {
		if !a.val.JoinedAt.Equal(b.val.JoinedAt) {
			return a.val.JoinedAt.Before(b.val.JoinedAt)
		}
		return a.seq < b.seq
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// GetWaitlistEntry implements roster.Reader.
func (s *Store) GetWaitlistEntry(_ context.Context, eventID, userID uuid.UUID) (*models.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[eventID]
	if !ok {
		return nil, nil
	}
	if r, ok := b.waitlist[userID]; ok {
		w := r.val
		return &w, nil
	}
	return nil, nil
}

// ListWaitlist implements roster.Reader.
func (s *Store) ListWaitlist(_ context.Context, eventID uuid.UUID) ([]models.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[eventID]
	if !ok {
		return nil, nil
	}
	return sorted(b.waitlist, func(a, b record[models.WaitlistEntry]) bool {
		if !a.val.CreatedAt.Equal(b.val.CreatedAt) {
			return a.val.CreatedAt.Before(b.val.CreatedAt)
		}
		return a.seq < b.seq
	}), nil
}

// InsertApplication stores a new application; models.ErrDuplicateApplication if one exists.
func (s *Store) InsertApplication(ctx context.Context, a *models.Application) error {
	l := s.lock(a.EventID)
	l.Lock()
	defer l.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[a.EventID]
	if !ok {
		return fmt.Errorf("event %s: %w", a.EventID, models.ErrNotFound)
	}
	if _, exists := b.applications[a.UserID]; exists {
		return models.ErrDuplicateApplication
	}
	b.applications[a.UserID] = record[models.Application]{val: *a, seq: s.next()}
	return nil
}

// GetApplication returns an application or models.ErrNotFound.
func (s *Store) GetApplication(_ context.Context, eventID, userID uuid.UUID) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[eventID]; ok {
		if r, ok := b.applications[userID]; ok {
			a := r.val
			return &a, nil
		}
	}
	return nil, fmt.Errorf("application: %w", models.ErrNotFound)
}

// ListApplicationsByEvent returns an event's applications, newest first.
func (s *Store) ListApplicationsByEvent(_ context.Context, eventID uuid.UUID, limit int) ([]models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[eventID]
	if !ok {
		return nil, nil
	}
	list := sorted(b.applications, newestApplication)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// ListApplicationsByUser returns a user's applications across events, newest first.
func (s *Store) ListApplicationsByUser(_ context.Context, userID uuid.UUID) ([]models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make(map[uuid.UUID]record[models.Application])
	for id, b := range s.buckets {
		if r, ok := b.applications[userID]; ok {
			all[id] = r
		}
	}
	return sorted(all, newestApplication), nil
}

// UpdateApplicationStatus moves an application to status to after allow accepts its current status.
func (s *Store) UpdateApplicationStatus(_ context.Context, eventID, userID uuid.UUID, to models.ApplicationStatus,
	allow func(from models.ApplicationStatus) error) (*models.Application, error) {
	l := s.lock(eventID)
	l.Lock()
	defer l.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[eventID]
	if !ok {
		return nil, fmt.Errorf("application: %w", models.ErrNotFound)
	}
	r, ok := b.applications[userID]
	if !ok {
		return nil, fmt.Errorf("application: %w", models.ErrNotFound)
	}
	if allow != nil {
		if err := allow(r.val.Status); err != nil {
			return nil, err
		}
	}
	r.val.Status = to
	r.val.UpdatedAt = time.Now().UTC()
	b.applications[userID] = r
	a := r.val
	return &a, nil
}

// DeleteApplication removes an application or returns models.ErrNotFound.
func (s *Store) DeleteApplication(_ context.Context, eventID, userID uuid.UUID) error {
	l := s.lock(eventID)
	l.Lock()
	defer l.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[eventID]; ok {
		if _, ok := b.applications[userID]; ok {
			delete(b.applications, userID)
			return nil
		}
	}
	return fmt.Errorf("application: %w", models.ErrNotFound)
}

func newestApplication(a, b record[models.Application]) bool {
	if !a.val.CreatedAt.Equal(b.val.CreatedAt) {
		return a.val.CreatedAt.After(b.val.CreatedAt)
	}
	return a.seq > b.seq
}

func sorted[T any](m map[uuid.UUID]record[T], less func(a, b record[T]) bool) []T {
	recs := make([]record[T], 0, len(m))
	for _, r := range m {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return less(recs[i], recs[j]) })
	out := make([]T, len(recs))
	for i, r := range recs {
		out[i] = r.val
	}
	return out
}

// memTx runs with the event mutex held; s.mu guards each map access.
type memTx struct {
	s       *Store
	eventID uuid.UUID
}

func (t *memTx) bucket() (*bucket, error) {
	b, ok := t.s.buckets[t.eventID]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", t.eventID, models.ErrNotFound)
	}
	return b, nil
}

func (t *memTx) Event(context.Context) (*models.Event, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return nil, err
	}
	e := b.event
	return &e, nil
}

func (t *memTx) SetParticipantsCount(_ context.Context, n int) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return err
	}
	b.event.ParticipantsCount = n
	return nil
}

func (t *memTx) GetParticipant(_ context.Context, userID uuid.UUID) (*models.Participant, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return nil, err
	}
	if r, ok := b.participants[userID]; ok {
		p := r.val
		return &p, nil
	}
	return nil, nil
}

func (t *memTx) InsertParticipant(_ context.Context, p *models.Participant) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return err
	}
	if _, ok := b.participants[p.UserID]; ok {
		return fmt.Errorf("participant %s already exists", p.UserID)
	}
	v := *p
	v.EventID = t.eventID
	b.participants[p.UserID] = record[models.Participant]{val: v, seq: t.s.next()}
	return nil
}

func (t *memTx) DeleteParticipant(_ context.Context, userID uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return err
	}
	delete(b.participants, userID)
	return nil
}

func (t *memTx) CountParticipants(context.Context) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return 0, err
	}
	return len(b.participants), nil
}

func (t *memTx) GetApplication(_ context.Context, userID uuid.UUID) (*models.Application, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return nil, err
	}
	if r, ok := b.applications[userID]; ok {
		a := r.val
		return &a, nil
	}
	return nil, nil
}

func (t *memTx) PutApplication(_ context.Context, a *models.Application) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return err
	}
	if r, ok := b.applications[a.UserID]; ok {
		r.val.Status = a.Status
		r.val.UpdatedAt = a.UpdatedAt
		b.applications[a.UserID] = r
		return nil
	}
	v := *a
	v.EventID = t.eventID
	b.applications[a.UserID] = record[models.Application]{val: v, seq: t.s.next()}
	return nil
}

func (t *memTx) PendingApplications(context.Context) ([]models.Application, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return nil, err
	}
	pending := make(map[uuid.UUID]record[models.Application])
	for k, r := range b.applications {
		if r.val.Status == models.ApplicationPending {
			pending[k] = r
		}
	}
	return sorted(pending, func(a, b record[models.Application]) bool {
		if !a.val.CreatedAt.Equal(b.val.CreatedAt) {
			return a.val.CreatedAt.Before(b.val.CreatedAt)
		}
		return a.seq < b.seq
	}), nil
}

func (t *memTx) GetWaitlistEntry(_ context.Context, userID uuid.UUID) (*models.WaitlistEntry, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return nil, err
	}
	if r, ok := b.waitlist[userID]; ok {
		w := r.val
		return &w, nil
	}
	return nil, nil
}

func (t *memTx) InsertWaitlistEntry(_ context.Context, w *models.WaitlistEntry) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return err
	}
	if _, ok := b.waitlist[w.UserID]; ok {
		return nil
	}
	v := *w
	v.EventID = t.eventID
	b.waitlist[w.UserID] = record[models.WaitlistEntry]{val: v, seq: t.s.next()}
	return nil
}

func (t *memTx) DeleteWaitlistEntry(_ context.Context, userID uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return err
	}
	delete(b.waitlist, userID)
	return nil
}

func (t *memTx) RememberEvent(_ context.Context, userID uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return err
	}
	if _, ok := b.myEvents[userID]; !ok {
		b.myEvents[userID] = time.Now().UTC()
	}
	return nil
}

func (t *memTx) ForgetEvent(_ context.Context, userID uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, err := t.bucket()
	if err != nil {
		return err
	}
	delete(b.myEvents, userID)
	return nil
}
