package tracker

import (
	"time"

	"github.com/ukydev/cocagne-tracker/internal/models"
)

// Result is the outcome of one scan.
type Result struct {
	Accepted bool       `json:"accepted"`
	Event    *ScanEvent `json:"event,omitempty"`
	Intents  []Intent   `json:"-"`
}

// StopView is the rendering projection of one stop.
type StopView struct {
	Address     string          `json:"address"`
	Coordinates models.Location `json:"coordinates"`
	Required    int             `json:"required"`
	Scanned     int             `json:"scanned"`
	Current     bool            `json:"current"`
}

// View is what the driver screen renders.
type View struct {
	TourID         string         `json:"tour_id"`
	Phase          string         `json:"phase"`
	StopIndex      int            `json:"stop_index"`
	TotalStops     int            `json:"total_stops"`
	RemainingStops []StopView     `json:"remaining_stops"`
	Progress       map[string]int `json:"progress"`
	Completed      bool           `json:"completed"`
}

// Tracker owns the state of one tour and its classifier. It is not safe for
// concurrent use; callers serialize events.
type Tracker struct {
	state      State
	classifier *Classifier
	now        func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithCooldown sets the debounce window.
func WithCooldown(d time.Duration) Option {
	return func(t *Tracker) { t.classifier = NewClassifier(d) }
}

// New builds a tracker awaiting the depot scan of the first stop.
func New(tourID string, stops []Stop, opts ...Option) (*Tracker, error) {
	st, err := NewState(tourID, stops)
	if err != nil {
		return nil, err
	}
	t := &Tracker{
		state:      st,
		classifier: NewClassifier(DefaultCooldown),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// HandleScan classifies payload and applies it. Debounced scans and scans
// after completion are reported as not accepted.
func (t *Tracker) HandleScan(payload string) Result {
	ev, ok := t.classifier.Classify(t.state, payload, t.now())
	if !ok {
		return Result{}
	}
	next, intents := Apply(t.state, ev)
	t.state = next
	return Result{Accepted: true, Event: &ev, Intents: intents}
}

// State returns the current state value.
func (t *Tracker) State() State { return t.state }

func (t *Tracker) IsComplete() bool { return t.state.IsComplete() }

// View projects the state for rendering.
func (t *Tracker) View() View {
	st := t.state
	remaining := st.Queue.Stops()
	views := make([]StopView, 0, len(remaining))
	for i, s := range remaining {
		views = append(views, StopView{
			Address:     s.Address,
			Coordinates: s.Coordinates,
			Required:    s.RequiredCount,
			Scanned:     st.Progress[s.Address],
			Current:     i == 0,
		})
	}
	progress := make(map[string]int, len(st.Progress))
	for k, v := range st.Progress {
		progress[k] = v
	}
	return View{
		TourID:         st.TourID,
		Phase:          st.Phase.String(),
		StopIndex:      st.StopIndex,
		TotalStops:     st.Total,
		RemainingStops: views,
		Progress:       progress,
		Completed:      st.IsComplete(),
	}
}
