package tracker

import (
	"fmt"
	"maps"
)

// Phase is the kind of scan the tracker currently expects.
type Phase int

const (
	PhaseAwaitingDepotScan Phase = iota
	PhaseAwaitingBasketScan
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingDepotScan:
		return "awaiting_depot_scan"
	case PhaseAwaitingBasketScan:
		return "awaiting_basket_scan"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// IntentKind is a side effect the session has to carry out after a transition.
type IntentKind int

const (
	IntentPersistStatus IntentKind = iota + 1
	IntentNotify
)

func (k IntentKind) String() string {
	switch k {
	case IntentPersistStatus:
		return "persist_status"
	case IntentNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// Intent asks the owner of the state to perform I/O on behalf of the machine.
type Intent struct {
	Kind   IntentKind
	TourID string
}

// State is the whole progress of one tour. It is a value: Apply never
// mutates the state it receives.
type State struct {
	TourID    string
	Queue     StopQueue
	Progress  map[string]int
	Phase     Phase
	StopIndex int
	Total     int
}

// NewState builds the initial state, awaiting the depot scan of the first stop.
func NewState(tourID string, stops []Stop) (State, error) {
	if len(stops) == 0 {
		return State{}, ErrNoStops
	}
	seen := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		if s.RequiredCount <= 0 {
			return State{}, fmt.Errorf("%w: %q requires %d baskets", ErrInvalidStop, s.Address, s.RequiredCount)
		}
		if _, ok := seen[s.Address]; ok {
			return State{}, fmt.Errorf("%w: duplicate address %q", ErrInvalidStop, s.Address)
		}
		seen[s.Address] = struct{}{}
	}
	return State{
		TourID:   tourID,
		Queue:    NewStopQueue(stops),
		Progress: make(map[string]int, len(stops)),
		Phase:    PhaseAwaitingDepotScan,
		Total:    len(stops),
	}, nil
}

// IsComplete reports whether every stop has been delivered.
func (s State) IsComplete() bool {
	return s.Phase == PhaseCompleted
}

// Scanned returns the baskets scanned so far at address.
func (s State) Scanned(address string) int {
	return s.Progress[address]
}

// Apply feeds one classified event to the machine and returns the next
// state plus the side effects to run. Events that do not match the current
// phase or stop leave the state unchanged.
func Apply(s State, ev ScanEvent) (State, []Intent) {
	if s.Phase == PhaseCompleted {
		return s, nil
	}
	cur, ok := s.Queue.Current()
	if !ok || cur.Address != ev.StopAddress {
		return s, nil
	}

	switch {
	case ev.Kind == DepotConfirmed && s.Phase == PhaseAwaitingDepotScan:
		s.Phase = PhaseAwaitingBasketScan
		return s, nil

	case ev.Kind == BasketConfirmed && s.Phase == PhaseAwaitingBasketScan:
		next := s.Progress[cur.Address] + 1
		s.Progress = maps.Clone(s.Progress)
		s.Progress[cur.Address] = next
		if next < cur.RequiredCount {
			return s, nil
		}
		return popStop(s)
	}
	return s, nil
}

func popStop(s State) (State, []Intent) {
	if _, err := s.Queue.Advance(); err != nil {
		// unreachable: Apply checked Current above
		panic(err)
	}
	s.StopIndex++
	if !s.Queue.IsEmpty() {
		s.Phase = PhaseAwaitingDepotScan
		return s, nil
	}
	s.Phase = PhaseCompleted
	return s, []Intent{
		{Kind: IntentPersistStatus, TourID: s.TourID},
		{Kind: IntentNotify, TourID: s.TourID},
	}
}
