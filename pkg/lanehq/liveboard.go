package lanehq

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// positionStep matches the spacing the server leaves between items.
const positionStep = 1024

// ErrNoSnapshot is returned by Move before the first snapshot has arrived.
var ErrNoSnapshot = errors.New("lanehq: board not loaded yet")

// ErrUnknownItem is returned by Move for an item that is not on the board.
var ErrUnknownItem = errors.New("lanehq: item not on board")

// ItemState is the reconciliation state of one item.
type ItemState int

const (
	// StateClean means the view shows the server's placement.
	StateClean ItemState = iota
	// StatePending means a move was applied locally and has not been acknowledged.
	StatePending
	// StateReconciled means the move was acknowledged and the view waits for a
	// snapshot that contains it.
	StateReconciled
)

func (s ItemState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReconciled:
		return "reconciled"
	default:
		return "clean"
	}
}

// Notice reports a move the server rejected. The move has been rolled back.
type Notice struct {
	ItemID string
	Drop   Drop
	Err    error
}

// BoardAPI is what a LiveBoard needs from the server. Implemented by *Client.
type BoardAPI interface {
	Move(ctx context.Context, board string, drop Drop) (*MoveAck, error)
	WatchRoadmap(ctx context.Context, board string, fn func(*Board) error) error
}

type overlay struct {
	drop  Drop
	state ItemState
	ack   int64
	seq   uint64
}

// LiveBoard is a roadmap kept current from its snapshot stream with optimistic
// moves layered on top. It is safe for concurrent use.
type LiveBoard struct {
	api   BoardAPI
	board string

	mu       sync.Mutex
	base     *Board
	overlays map[string]*overlay
	seq      uint64

	notices  chan Notice
	onChange func(*Board)

	minBackoff time.Duration
	maxBackoff time.Duration
}

// LiveBoardOption configures a LiveBoard.
type LiveBoardOption func(*LiveBoard)

// OnChange registers fn to receive the merged view after every change. fn is
// called without the board's lock held and must not block for long.
func OnChange(fn func(*Board)) LiveBoardOption {
	return func(l *LiveBoard) { l.onChange = fn }
}

// WithReconnectBackoff bounds the wait between stream reconnects.
func WithReconnectBackoff(min, max time.Duration) LiveBoardOption {
	return func(l *LiveBoard) { l.minBackoff, l.maxBackoff = min, max }
}

// NewLiveBoard creates a live view of board. Call Run to start following it.
func NewLiveBoard(api BoardAPI, board string, opts ...LiveBoardOption) *LiveBoard {
	l := &LiveBoard{
		api:        api,
		board:      board,
		overlays:   make(map[string]*overlay),
		notices:    make(chan Notice, 16),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Notices delivers rejected moves. Notices are dropped when nobody reads them.
func (l *LiveBoard) Notices() <-chan Notice { return l.notices }

// Run follows the roadmap stream until ctx is cancelled, reconnecting with
// backoff when the connection drops. Not-found and authorization failures end
// the loop with that error.
func (l *LiveBoard) Run(ctx context.Context) error {
	backoff := l.minBackoff
	for {
		received := false
		err := l.api.WatchRoadmap(ctx, l.board, func(b *Board) error {
			received = true
			l.Apply(b)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
			return err
		}
		if received {
			backoff = l.minBackoff
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		if backoff *= 2; backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

// Apply replaces the authoritative state with snap and clears every overlay the
// snapshot has caught up with.
func (l *LiveBoard) Apply(snap *Board) {
	if snap == nil {
		return
	}
	l.mu.Lock()
	l.base = snap.clone()
	for id, ov := range l.overlays {
		switch {
		case ov.state == StateReconciled && snap.Revision >= ov.ack:
			delete(l.overlays, id)
		case placedAt(snap, ov.drop):
			delete(l.overlays, id)
		default:
			if _, _, ok := snap.Locate(id); !ok {
				delete(l.overlays, id)
			}
		}
	}
	l.mu.Unlock()
	l.changed()
}

// Move applies drop to the view at once and submits it. On failure the move is
// rolled back and a Notice is sent; the error is returned too. The request is
// not cancelled by a later move of the same item; the later move wins.
func (l *LiveBoard) Move(ctx context.Context, drop Drop) (*MoveAck, error) {
	l.mu.Lock()
	if l.base == nil {
		l.mu.Unlock()
		return nil, ErrNoSnapshot
	}
	view := l.viewLocked()
	lane, _, ok := view.Locate(drop.ItemID)
	if !ok {
		l.mu.Unlock()
		return nil, ErrUnknownItem
	}
	if drop.SourceLane == "" {
		drop.SourceLane = lane
	}
	l.seq++
	seq := l.seq
	l.overlays[drop.ItemID] = &overlay{drop: drop, state: StatePending, seq: seq}
	l.mu.Unlock()
	l.changed()

	ack, err := l.api.Move(ctx, l.board, drop)

	l.mu.Lock()
	ov, ok := l.overlays[drop.ItemID]
	superseded := ok && ov.seq != seq
	if err != nil {
		if ok && !superseded {
			delete(l.overlays, drop.ItemID)
		}
		l.mu.Unlock()
		if !superseded {
			// Sent even when a snapshot already cleared the overlay.
			l.notify(Notice{ItemID: drop.ItemID, Drop: drop, Err: err})
			l.changed()
		}
		return nil, err
	}
	if !ok || superseded {
		// Cleared by a snapshot or superseded by a newer move.
		l.mu.Unlock()
		return ack, nil
	}
	if ack.NoOp || l.base.Revision >= ack.Revision {
		delete(l.overlays, drop.ItemID)
	} else {
		ov.state = StateReconciled
		ov.ack = ack.Revision
	}
	l.mu.Unlock()
	l.changed()
	return ack, nil
}

// State reports the reconciliation state of itemID.
func (l *LiveBoard) State(itemID string) ItemState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ov, ok := l.overlays[itemID]; ok {
		return ov.state
	}
	return StateClean
}

// Revision is the revision of the last applied snapshot, or 0.
func (l *LiveBoard) Revision() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.base == nil {
		return 0
	}
	return l.base.Revision
}

// View returns the merged view: the last snapshot with outstanding moves
// applied. Nil before the first snapshot.
func (l *LiveBoard) View() *Board {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.viewLocked()
}

func (l *LiveBoard) viewLocked() *Board {
	if l.base == nil {
		return nil
	}
	view := l.base.clone()
	pending := make([]*overlay, 0, len(l.overlays))
	for _, ov := range l.overlays {
		pending = append(pending, ov)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	for _, ov := range pending {
		applyDrop(view, ov.drop)
	}
	return view
}

func (l *LiveBoard) notify(n Notice) {
	select {
	case l.notices <- n:
	default:
	}
}

func (l *LiveBoard) changed() {
	if l.onChange == nil {
		return
	}
	if v := l.View(); v != nil {
		l.onChange(v)
	}
}

// applyDrop moves the item inside b. Drops onto a lane the view does not show
// leave the item where it is.
func applyDrop(b *Board, d Drop) {
	target := b.Column(d.TargetLane)
	if target == nil {
		return
	}
	var moved *Item
	for ci := range b.Columns {
		col := &b.Columns[ci]
		for i, it := range col.Items {
			if it.ID == d.ItemID {
				moved = it
				col.Items = append(col.Items[:i:i], col.Items[i+1:]...)
				break
			}
		}
		if moved != nil {
			break
		}
	}
	if moved == nil {
		return
	}
	idx := clampIndex(d.TargetIndex, len(target.Items))

	// Snapshot items are shared between views; the moved one is copied.
	cp := *moved
	cp.Status = d.TargetLane
	cp.Position = estimatePosition(target.Items, idx)

	items := make([]*Item, 0, len(target.Items)+1)
	items = append(items, target.Items[:idx]...)
	items = append(items, &cp)
	items = append(items, target.Items[idx:]...)
	target.Items = items
}

// estimatePosition guesses the position the server will assign when an item is
// inserted at idx of items. The next snapshot carries the real value.
func estimatePosition(items []*Item, idx int) float64 {
	switch {
	case len(items) == 0:
		return positionStep
	case idx == 0:
		return items[0].Position - positionStep
	case idx == len(items):
		return items[idx-1].Position + positionStep
	default:
		return items[idx-1].Position + (items[idx].Position-items[idx-1].Position)/2
	}
}

// placedAt reports whether snap already shows the item where d puts it.
func placedAt(snap *Board, d Drop) bool {
	lane, idx, ok := snap.Locate(d.ItemID)
	if !ok || lane != d.TargetLane {
		return false
	}
	return idx == clampIndex(d.TargetIndex, len(snap.Column(lane).Items)-1)
}

func clampIndex(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}
