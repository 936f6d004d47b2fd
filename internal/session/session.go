package session

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/cocagne-tracker/internal/db"
	"github.com/ukydev/cocagne-tracker/internal/models"
	"github.com/ukydev/cocagne-tracker/internal/notify"
	"github.com/ukydev/cocagne-tracker/internal/route"
	"github.com/ukydev/cocagne-tracker/internal/tracker"
)

// ErrClosed is returned for operations on a session that was closed.
var ErrClosed = errors.New("session closed")

// RouteStatus tells whether the itinerary of a session can be drawn.
type RouteStatus string

const (
	RoutePending     RouteStatus = "pending"
	RouteReady       RouteStatus = "ready"
	RouteUnavailable RouteStatus = "unavailable"
)

// Notifier carries out the completion intents of the tracker.
type Notifier interface {
	Persist(ctx context.Context, tourID string) error
	Announce(ctx context.Context, d notify.Delivery) error
}

// RouteView is the itinerary part of a session view.
type RouteView struct {
	Status RouteStatus `json:"status"`
	route.Geometry
	Error string `json:"error,omitempty"`
}

// View is what the driver screen renders for a session.
type View struct {
	tracker.View
	SessionID string    `json:"session_id"`
	DeviceID  string    `json:"device_id"`
	City      string    `json:"city"`
	Day       string    `json:"day"`
	Route     RouteView `json:"route"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// ScanResult is the outcome of a scan posted to a session.
type ScanResult struct {
	Accepted bool     `json:"accepted"`
	Signal   string   `json:"signal,omitempty"`
	View     View     `json:"view"`
	Warnings []string `json:"warnings,omitempty"`
}

// Session is the tracking session of one device on one tour. Its methods are
// safe for concurrent use; events are applied one at a time in arrival order.
type Session struct {
	id        string
	deviceID  string
	tourID    string
	city      string
	day       string
	startedAt time.Time

	mu       sync.Mutex
	tracker  *tracker.Tracker
	notifier Notifier
	route    route.Geometry
	routeSt  RouteStatus
	routeErr error
	ready    chan struct{}
	warnings []string
	closed   bool
}

func (s *Session) ID() string           { return s.id }
func (s *Session) DeviceID() string     { return s.deviceID }
func (s *Session) TourID() string       { return s.tourID }
func (s *Session) StartedAt() time.Time { return s.startedAt }

// RouteReady is closed once route resolution has finished, whatever its outcome.
func (s *Session) RouteReady() <-chan struct{} { return s.ready }

// HandleScan feeds one scanned payload to the tracker and carries out the
// resulting intents. Persistence and notification failures are reported as
// warnings; the scan itself is still accepted.
func (s *Session) HandleScan(ctx context.Context, payload string) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ScanResult{}, ErrClosed
	}

	res := s.tracker.HandleScan(payload)
	out := ScanResult{Accepted: res.Accepted}
	if res.Event != nil {
		out.Signal = res.Event.Kind.String()
	}
	if len(res.Intents) > 0 {
		out.Warnings = s.runIntents(context.WithoutCancel(ctx), res.Intents)
		s.warnings = append(s.warnings, out.Warnings...)
	}

	fields := log.Fields{"session_id": s.id, "tour_id": s.tourID, "accepted": res.Accepted}
	if res.Event != nil {
		fields["signal"] = out.Signal
		fields["stop"] = res.Event.StopAddress
	}
	log.WithFields(fields).Debug("Scan handled")

	out.View = s.viewLocked()
	return out, nil
}

func (s *Session) runIntents(ctx context.Context, intents []tracker.Intent) []string {
	if s.notifier == nil {
		return nil
	}
	var (
		warnings         []string
		alreadyDelivered bool
	)
	for _, in := range intents {
		var err error
		switch in.Kind {
		case tracker.IntentPersistStatus:
			err = s.notifier.Persist(ctx, in.TourID)
			alreadyDelivered = errors.Is(err, db.ErrAlreadyDelivered)
		case tracker.IntentNotify:
			if alreadyDelivered {
				continue
			}
			err = s.notifier.Announce(ctx, notify.Delivery{TourID: in.TourID, City: s.city, Day: s.day})
		}
		if err != nil {
			warnings = append(warnings, err.Error())
		}
	}
	log.WithFields(log.Fields{
		"session_id": s.id,
		"tour_id":    s.tourID,
		"warnings":   len(warnings),
	}).Info("Tour completed")
	return warnings
}

// CurrentView returns the rendering projection of the session.
func (s *Session) CurrentView() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, ErrClosed
	}
	return s.viewLocked(), nil
}

func (s *Session) viewLocked() View {
	rv := RouteView{Status: s.routeSt, Geometry: s.route}
	if s.routeErr != nil {
		rv.Error = s.routeErr.Error()
	}
	var warnings []string
	if len(s.warnings) > 0 {
		warnings = append(warnings, s.warnings...)
	}
	return View{
		View:      s.tracker.View(),
		SessionID: s.id,
		DeviceID:  s.deviceID,
		City:      s.city,
		Day:       s.day,
		Route:     rv,
		Warnings:  warnings,
	}
}

// CurrentStop returns the stop the driver is working on. A closed session
// has none.
func (s *Session) CurrentStop() (tracker.Stop, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tracker.Stop{}, false
	}
	return s.tracker.State().Queue.Current()
}

func (s *Session) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.IsComplete()
}

// Close discards the session state. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// resolveRoute runs once per session. The result is dropped if the session
// was closed in the meantime; the request itself is not cancelled.
func (s *Session) resolveRoute(resolver route.Resolver, waypoints []models.Location, timeout time.Duration) {
	defer close(s.ready)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	geo, err := resolver.Resolve(ctx, waypoints)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.WithField("session_id", s.id).Debug("Discarding route of closed session")
		return
	}
	if err != nil {
		log.WithError(err).WithField("tour_id", s.tourID).Warn("Route unavailable, tracking without a drawn path")
		s.routeSt = RouteUnavailable
		s.routeErr = err
		return
	}
	s.route = geo
	s.routeSt = RouteReady
}
