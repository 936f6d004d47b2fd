package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/cocagne-tracker/internal/db"
	"github.com/ukydev/cocagne-tracker/internal/models"
	"github.com/ukydev/cocagne-tracker/internal/route"
	"github.com/ukydev/cocagne-tracker/internal/tracker"
)

var (
	ErrNotFound         = errors.New("tour not found")
	ErrInvalidTour      = errors.New("invalid tour")
	ErrAlreadyDelivered = errors.New("tour already delivered")
	ErrBadLookup        = errors.New("a tour id or a city is required")
	ErrDeviceRequired   = errors.New("device id is required")
	ErrSessionNotFound  = errors.New("session not found")
	ErrTourInProgress   = errors.New("tour is tracked by another device")
)

// TourSource loads tour records.
type TourSource interface {
	FindTourByID(ctx context.Context, id string) (*models.Tour, error)
	FindTourByCity(ctx context.Context, city string) (*models.Tour, error)
}

// Lookup identifies the tour to load. TourID wins over City.
type Lookup struct {
	TourID string
	City   string
}

// Options tunes the sessions built by a Manager. A zero Cooldown disables
// scan debouncing.
type Options struct {
	Cooldown     time.Duration
	RouteTimeout time.Duration
	Clock        func() time.Time
}

// Manager owns the live sessions, at most one per device and one per tour.
type Manager struct {
	tours    TourSource
	resolver route.Resolver
	notifier Notifier
	opts     Options

	mu       sync.RWMutex
	sessions map[string]*Session
	byDevice map[string]string
	byTour   map[string]string
}

// NewManager creates a session manager. resolver may be nil, in which case
// sessions never get a drawn route.
func NewManager(tours TourSource, resolver route.Resolver, notifier Notifier, opts Options) *Manager {
	if opts.RouteTimeout <= 0 {
		opts.RouteTimeout = 15 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		tours:    tours,
		resolver: resolver,
		notifier: notifier,
		opts:     opts,
		sessions: make(map[string]*Session),
		byDevice: make(map[string]string),
		byTour:   make(map[string]string),
	}
}

// Load fetches the tour and turns it into tracker stops.
func (m *Manager) Load(ctx context.Context, lookup Lookup) (*models.Tour, []tracker.Stop, error) {
	var (
		tour *models.Tour
		err  error
	)
	switch {
	case strings.TrimSpace(lookup.TourID) != "":
		tour, err = m.tours.FindTourByID(ctx, strings.TrimSpace(lookup.TourID))
	case strings.TrimSpace(lookup.City) != "":
		tour, err = m.tours.FindTourByCity(ctx, strings.TrimSpace(lookup.City))
	default:
		return nil, nil, ErrBadLookup
	}
	if errors.Is(err, db.ErrTourNotFound) {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load tour: %w", err)
	}
	if tour.IsDelivered() {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyDelivered, tour.ID.Hex())
	}
	stops, err := tracker.StopsFromTour(tour)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidTour, err)
	}
	return tour, stops, nil
}

// Start loads a tour and opens a session for deviceID, closing the previous
// session of that device. A tour tracked by another device is refused with
// ErrTourInProgress. Route resolution starts in the background.
func (m *Manager) Start(ctx context.Context, deviceID string, lookup Lookup) (*Session, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, ErrDeviceRequired
	}
	tour, stops, err := m.Load(ctx, lookup)
	if err != nil {
		return nil, err
	}

	tourID := tour.ID.Hex()
	tr, err := tracker.New(tourID, stops, tracker.WithCooldown(m.opts.Cooldown), tracker.WithClock(m.opts.Clock))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTour, err)
	}
	s := &Session{
		id:        uuid.NewString(),
		deviceID:  deviceID,
		tourID:    tourID,
		city:      tour.City,
		day:       tour.Day,
		startedAt: m.opts.Clock(),
		tracker:   tr,
		notifier:  m.notifier,
		routeSt:   RoutePending,
		ready:     make(chan struct{}),
	}
	if m.resolver == nil {
		s.routeSt = RouteUnavailable
		s.routeErr = fmt.Errorf("%w: no directions provider configured", route.ErrUnavailable)
		close(s.ready)
	}

	m.mu.Lock()
	if holder, ok := m.byTour[tourID]; ok {
		if other := m.sessions[holder]; other != nil && other.deviceID != deviceID {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrTourInProgress, tourID)
		}
	}
	if prev, ok := m.byDevice[deviceID]; ok {
		m.removeLocked(prev)
	}
	m.sessions[s.id] = s
	m.byDevice[deviceID] = s.id
	m.byTour[tourID] = s.id
	m.mu.Unlock()

	log.WithFields(log.Fields{
		"session_id": s.id,
		"device_id":  deviceID,
		"tour_id":    tourID,
		"city":       tour.City,
		"stops":      len(stops),
	}).Info("Tracking session started")

	if m.resolver != nil {
		go s.resolveRoute(m.resolver, tour.Path(), m.opts.RouteTimeout)
	}
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close discards a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.removeLocked(id) {
		return ErrSessionNotFound
	}
	log.WithField("session_id", id).Info("Tracking session closed")
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll discards every session, e.g. on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.Close()
		delete(m.sessions, id)
	}
	m.byDevice = make(map[string]string)
	m.byTour = make(map[string]string)
}

// removeLocked closes a session and drops it from every index. m.mu must be held.
func (m *Manager) removeLocked(id string) bool {
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.Close()
	delete(m.sessions, id)
	if m.byDevice[s.deviceID] == id {
		delete(m.byDevice, s.deviceID)
	}
	if m.byTour[s.tourID] == id {
		delete(m.byTour, s.tourID)
	}
	return true
}
