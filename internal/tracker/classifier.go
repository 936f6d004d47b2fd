package tracker

import "time"

// DefaultCooldown is the minimum delay between two scans counted as distinct.
const DefaultCooldown = 2 * time.Second

// ScanKind tells what a scan confirmed.
type ScanKind int

const (
	DepotConfirmed ScanKind = iota + 1
	BasketConfirmed
)

func (k ScanKind) String() string {
	switch k {
	case DepotConfirmed:
		return "depot_confirmed"
	case BasketConfirmed:
		return "basket_confirmed"
	default:
		return "unknown"
	}
}

// ScanEvent is a classified scan. StopAddress is the current stop at the
// time of classification; the machine ignores the event if that stop has
// since been popped.
type ScanEvent struct {
	Kind        ScanKind  `json:"kind"`
	StopAddress string    `json:"stop_address"`
	Payload     string    `json:"payload"`
	At          time.Time `json:"at"`
}

// Classifier turns raw scanner payloads into scan events according to the
// current phase, dropping scans that fall inside the cool-down window of the
// last accepted scan.
type Classifier struct {
	cooldown time.Duration
	last     time.Time
	accepted bool
}

// NewClassifier creates a classifier. A non-positive cooldown disables debouncing.
func NewClassifier(cooldown time.Duration) *Classifier {
	return &Classifier{cooldown: cooldown}
}

// Classify returns the event for payload, or false if the scan is debounced
// or the tour is already completed.
func (c *Classifier) Classify(s State, payload string, at time.Time) (ScanEvent, bool) {
	if s.Phase == PhaseCompleted {
		return ScanEvent{}, false
	}
	if c.inCooldown(at) {
		return ScanEvent{}, false
	}
	stop, ok := s.Queue.Current()
	if !ok {
		return ScanEvent{}, false
	}

	ev := ScanEvent{StopAddress: stop.Address, Payload: payload, At: at}
	switch s.Phase {
	case PhaseAwaitingDepotScan:
		ev.Kind = DepotConfirmed
	case PhaseAwaitingBasketScan:
		ev.Kind = BasketConfirmed
	default:
		return ScanEvent{}, false
	}

	c.last = at
	c.accepted = true
	return ev, true
}

func (c *Classifier) inCooldown(at time.Time) bool {
	if !c.accepted || c.cooldown <= 0 {
		return false
	}
	return at.Sub(c.last) < c.cooldown
}
