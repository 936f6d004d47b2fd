package tracker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ukydev/cocagne-tracker/internal/models"
)

var (
	// ErrEmptyQueue is returned when advancing a queue that has no stop left.
	ErrEmptyQueue  = errors.New("stop queue is empty")
	ErrNoStops     = errors.New("tour has no stops")
	ErrInvalidStop = errors.New("invalid stop")
)

// Stop is one delivery point with the number of baskets to drop there.
type Stop struct {
	Address       string          `json:"address"`
	Coordinates   models.Location `json:"coordinates"`
	RequiredCount int             `json:"required_count"`
}

// NewStop validates and builds a Stop.
func NewStop(address string, coords models.Location, required int) (Stop, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Stop{}, fmt.Errorf("%w: empty address", ErrInvalidStop)
	}
	if required <= 0 {
		return Stop{}, fmt.Errorf("%w: %q requires %d baskets", ErrInvalidStop, address, required)
	}
	if err := coords.Validate(); err != nil {
		return Stop{}, fmt.Errorf("%w: %q: %v", ErrInvalidStop, address, err)
	}
	return Stop{Address: address, Coordinates: coords, RequiredCount: required}, nil
}

// StopsFromTour converts a validated tour record into tracker stops, keeping depot order.
func StopsFromTour(t *models.Tour) ([]Stop, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	stops := make([]Stop, 0, len(t.Depots))
	for _, d := range t.Depots {
		s, err := NewStop(d.Address, d.Coordinates, d.BasketCount())
		if err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, nil
}

// StopQueue is the ordered list of stops not yet completed.
// Popping only reslices, so copies of a queue never observe each other's pops.
type StopQueue struct {
	stops []Stop
}

// NewStopQueue copies stops into a new queue.
func NewStopQueue(stops []Stop) StopQueue {
	cp := make([]Stop, len(stops))
	copy(cp, stops)
	return StopQueue{stops: cp}
}

// Current returns the first unconsumed stop.
func (q StopQueue) Current() (Stop, bool) {
	if len(q.stops) == 0 {
		return Stop{}, false
	}
	return q.stops[0], true
}

// Advance removes the current stop.
func (q *StopQueue) Advance() (Stop, error) {
	if len(q.stops) == 0 {
		return Stop{}, ErrEmptyQueue
	}
	head := q.stops[0]
	q.stops = q.stops[1:]
	return head, nil
}

func (q StopQueue) IsEmpty() bool { return len(q.stops) == 0 }

func (q StopQueue) Len() int { return len(q.stops) }

// Stops returns a copy of the remaining stops.
func (q StopQueue) Stops() []Stop {
	out := make([]Stop, len(q.stops))
	copy(out, q.stops)
	return out
}
