package roadmap

import (
	"strings"

	"github.com/lanehq/lanehq/internal/config"
	"github.com/lanehq/lanehq/internal/db/models"
)

// Lane is one roadmap column.
type Lane struct {
	Status models.FeedbackStatus `json:"status"`
	Label  string                `json:"label"`
	Color  string                `json:"color"`
	Done   bool                  `json:"done"`
	// Index is the zero-based column position, left to right.
	Index int `json:"index"`
}

// Lanes is the ordered, immutable lane configuration of a roadmap.
type Lanes struct {
	order    []Lane
	byStatus map[models.FeedbackStatus]int
}

// NewLanes validates the configured lanes. Every lane must name a declared roadmap
// status (archived is not a lane) and appear once.
func NewLanes(cfg []config.LaneConfig) (*Lanes, error) {
	if len(cfg) == 0 {
		return nil, ErrNoLanes
	}

	declared := make(map[models.FeedbackStatus]bool)
	for _, s := range models.RoadmapStatuses() {
		declared[s] = true
	}

	l := &Lanes{
		order:    make([]Lane, 0, len(cfg)),
		byStatus: make(map[models.FeedbackStatus]int, len(cfg)),
	}
	for i, c := range cfg {
		status := models.FeedbackStatus(c.Status)
		if !declared[status] {
			return nil, &ConfigurationError{Status: c.Status, Reason: "not a roadmap status"}
		}
		if _, dup := l.byStatus[status]; dup {
			return nil, &ConfigurationError{Status: c.Status, Reason: "configured more than once"}
		}
		label := c.Label
		if label == "" {
			label = defaultLabel(status)
		}
		l.byStatus[status] = i
		l.order = append(l.order, Lane{Status: status, Label: label, Color: c.Color, Done: c.Done, Index: i})
	}
	return l, nil
}

// MustDefaultLanes returns the built-in four lane layout.
func MustDefaultLanes() *Lanes {
	l, err := NewLanes(config.DefaultLanes())
	if err != nil {
		panic(err)
	}
	return l
}

func defaultLabel(s models.FeedbackStatus) string {
	words := strings.Split(string(s), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// All returns the lanes in column order.
func (l *Lanes) All() []Lane {
	out := make([]Lane, len(l.order))
	copy(out, l.order)
	return out
}

// Len returns the number of lanes.
func (l *Lanes) Len() int {
	return len(l.order)
}

// Lookup returns the lane for status.
func (l *Lanes) Lookup(status models.FeedbackStatus) (Lane, bool) {
	i, ok := l.byStatus[status]
	if !ok {
		return Lane{}, false
	}
	return l.order[i], true
}

// First returns the leftmost lane, where new feedback lands.
func (l *Lanes) First() Lane {
	return l.order[0]
}

// Classify returns the lane an item with the given status belongs to, or a
// *ConfigurationError when no lane is configured for it.
func Classify(status models.FeedbackStatus, lanes *Lanes) (Lane, error) {
	lane, ok := lanes.Lookup(status)
	if !ok {
		return Lane{}, &ConfigurationError{Status: string(status)}
	}
	return lane, nil
}
