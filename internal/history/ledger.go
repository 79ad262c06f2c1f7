package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"reqflow/internal/refdata"
	"reqflow/internal/store"
)

// Kind tags a timeline item.
type Kind string

const (
	KindMovement      Kind = "movement"
	KindNeedCreated   Kind = "need_created"
	KindNeedCompleted Kind = "need_completed"
)

// Item is one moment in a request's timeline. Department and status fields
// hold reference keys; From fields are empty for the creation entry. Need
// items carry the departments and statuses of the movement the need caused.
type Item struct {
	Kind         Kind      `json:"kind"`
	At           time.Time `json:"at"`
	RequestID    int64     `json:"request_id"`
	EntryID      int64     `json:"entry_id,omitempty"`
	NeedID       int64     `json:"need_id,omitempty"`
	FromDept     string    `json:"from_department,omitempty"`
	ToDept       string    `json:"to_department,omitempty"`
	FromStatus   string    `json:"from_status,omitempty"`
	ToStatus     string    `json:"to_status,omitempty"`
	AnalysisType string    `json:"analysis_type,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	Actor        string    `json:"actor,omitempty"`
}

// Order selects timeline direction.
type Order int

const (
	Chronological Order = iota
	Reverse
)

// Ledger reads movement history.
type Ledger struct {
	store   *store.Store
	catalog *refdata.Catalog
}

// NewLedger returns a ledger resolving ids through catalog.
func NewLedger(st *store.Store, catalog *refdata.Catalog) *Ledger {
	return &Ledger{store: st, catalog: catalog}
}

// Entries returns the raw movement entries of a request in append order.
func (l *Ledger) Entries(ctx context.Context, requestID int64) ([]*store.HistoryEntry, error) {
	if _, err := l.store.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return l.store.History(ctx, requestID)
}

// Timeline merges movements with need creation and completion moments.
// Items sharing a timestamp keep need moments ahead of the movement they
// caused.
func (l *Ledger) Timeline(ctx context.Context, requestID int64, order Order) ([]Item, error) {
	entries, err := l.Entries(ctx, requestID)
	if err != nil {
		return nil, err
	}
	needs, err := l.store.ListNeeds(ctx, store.NeedFilter{RequestID: requestID})
	if err != nil {
		return nil, err
	}

	// A need's first movement is the one its creation caused. For a
	// completed need the latest movement is the completion: only reopening
	// moves the request on a need's behalf afterwards, and it clears the
	// completion.
	first := make(map[int64]*store.HistoryEntry)
	last := make(map[int64]*store.HistoryEntry)

	items := make([]Item, 0, len(entries)+2*len(needs))
	for _, e := range entries {
		if e.NeedID != 0 {
			if _, ok := first[e.NeedID]; !ok {
				first[e.NeedID] = e
			}
			last[e.NeedID] = e
		}
		items = append(items, l.movementItem(KindMovement, e))
	}
	for _, n := range needs {
		created := Item{Kind: KindNeedCreated, At: n.CreatedAt, Actor: n.CreatedBy}
		if e, ok := first[n.ID]; ok {
			created = l.movementItem(KindNeedCreated, e)
			created.At = n.CreatedAt
		}
		created.RequestID = n.RequestID
		created.NeedID = n.ID
		created.EntryID = 0
		created.AnalysisType = n.AnalysisType
		created.Comment = "Need created: " + n.Description
		items = append(items, created)

		if !n.Completed || n.CompletedAt == nil {
			continue
		}
		completed := Item{Kind: KindNeedCompleted}
		if e, ok := last[n.ID]; ok {
			completed = l.movementItem(KindNeedCompleted, e)
		}
		completed.At = *n.CompletedAt
		completed.RequestID = n.RequestID
		completed.NeedID = n.ID
		completed.EntryID = 0
		completed.AnalysisType = n.AnalysisType
		completed.Comment = "Need completed: " + n.Description
		if n.CompletedBy != "" {
			completed.Actor = n.CompletedBy
		}
		items = append(items, completed)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].At.Equal(items[j].At) {
			return items[i].At.Before(items[j].At)
		}
		return rank(items[i].Kind) < rank(items[j].Kind)
	})
	if order == Reverse {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	return items, nil
}

func (l *Ledger) movementItem(kind Kind, e *store.HistoryEntry) Item {
	return Item{
		Kind:       kind,
		At:         e.CreatedAt,
		RequestID:  e.RequestID,
		EntryID:    e.ID,
		NeedID:     e.NeedID,
		FromDept:   l.catalog.DeptKey(e.FromDeptID),
		ToDept:     l.catalog.DeptKey(e.ToDeptID),
		FromStatus: l.catalog.StatusKey(e.FromStatusID),
		ToStatus:   l.catalog.StatusKey(e.ToStatusID),
		Comment:    e.Comment,
		Actor:      e.Actor,
	}
}

func rank(k Kind) int {
	if k == KindMovement {
		return 1
	}
	return 0
}

// Position is where a request sits.
type Position struct {
	DeptID   int64
	StatusID int64
}

// ErrBrokenChain reports a ledger whose entries do not link up.
var ErrBrokenChain = errors.New("history chain broken")

// Replay folds entries in order and returns the final position. Every entry
// after the first must start where the previous one ended.
func Replay(entries []*store.HistoryEntry) (Position, error) {
	if len(entries) == 0 {
		return Position{}, fmt.Errorf("%w: no entries", ErrBrokenChain)
	}
	var pos Position
	for i, e := range entries {
		if i > 0 && (e.FromDeptID != pos.DeptID || e.FromStatusID != pos.StatusID) {
			return pos, fmt.Errorf("%w: entry %d starts at %d/%d, previous ended at %d/%d",
				ErrBrokenChain, e.ID, e.FromDeptID, e.FromStatusID, pos.DeptID, pos.StatusID)
		}
		pos = Position{DeptID: e.ToDeptID, StatusID: e.ToStatusID}
	}
	return pos, nil
}

// Verify replays the ledger of a request and checks it against the stored
// request row.
func (l *Ledger) Verify(ctx context.Context, requestID int64) error {
	req, err := l.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	entries, err := l.store.History(ctx, requestID)
	if err != nil {
		return err
	}
	pos, err := Replay(entries)
	if err != nil {
		return err
	}
	if pos.DeptID != req.CurrentDeptID || pos.StatusID != req.StatusID {
		return fmt.Errorf("%w: ledger ends at %d/%d, request %s is at %d/%d",
			ErrBrokenChain, pos.DeptID, pos.StatusID, req.Number, req.CurrentDeptID, req.StatusID)
	}
	return nil
}
