package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// MemoryStore keeps everything in process memory. Reads return copies, so a
// caller always sees a consistent snapshot.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	slas    map[string]*domain.SLAState
	records map[string][]domain.TransitionRecord
	seq     int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]domain.Ticket),
		slas:    make(map[string]*domain.SLAState),
		records: make(map[string][]domain.TransitionRecord),
	}
}

func (s *MemoryStore) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) GetSLAState(ctx context.Context, ticketID string) (*domain.SLAState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.slas[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

func (s *MemoryStore) ListTrackedTicketIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.slas))
	for id, st := range s.slas {
		if !st.Stopped {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) ListRecords(ctx context.Context, ticketID string, after Cursor, limit int) ([]domain.TransitionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.TransitionRecord
	for _, r := range s.records[ticketID] {
		if !after.After(r) {
			continue
		}
		out = append(out, copyRecord(r))
	}
	sortRecords(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Commit validates every guard before touching any state.
func (s *MemoryStore) Commit(ctx context.Context, m Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.NewTicket != nil {
		if _, exists := s.tickets[m.NewTicket.ID]; exists {
			return ErrDuplicate
		}
	}
	if m.NewStatus != "" {
		t, ok := s.tickets[m.TicketID]
		if !ok && m.NewTicket == nil {
			return ErrNotFound
		}
		if ok && t.Status != m.ExpectedStatus {
			return ErrConflict
		}
	}
	if m.Classification != nil && m.NewTicket == nil {
		if _, ok := s.tickets[m.TicketID]; !ok {
			return ErrNotFound
		}
	}
	if m.SLA != nil {
		cur, exists := s.slas[m.TicketID]
		_, ticketExists := s.tickets[m.TicketID]
		switch {
		case m.CreateSLA && !ticketExists && m.NewTicket == nil:
			return ErrNotFound
		case m.CreateSLA && exists:
			return ErrDuplicate
		case !m.CreateSLA && !exists:
			return ErrNotFound
		case !m.CreateSLA && cur.Version != m.SLA.Version:
			return ErrConflict
		}
	}

	if m.NewTicket != nil {
		s.tickets[m.NewTicket.ID] = *m.NewTicket
	}
	if m.NewStatus != "" {
		t := s.tickets[m.TicketID]
		t.Status = m.NewStatus
		t.UpdatedAt = m.At
		s.tickets[m.TicketID] = t
	}
	if m.Classification != nil {
		t := s.tickets[m.TicketID]
		t.Classification = m.Classification.Classification
		t.Priority = m.Classification.Priority
		t.UpdatedAt = m.At
		s.tickets[m.TicketID] = t
	}
	if m.SLA != nil {
		if m.CreateSLA {
			m.SLA.Version = 1
		} else {
			m.SLA.Version++
		}
		m.SLA.UpdatedAt = m.At
		s.slas[m.TicketID] = m.SLA.Clone()
	}
	for _, r := range m.Records {
		if r.TicketID == "" {
			r.TicketID = m.TicketID
		}
		s.seq++
		r.Seq = s.seq
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		s.records[r.TicketID] = append(s.records[r.TicketID], copyRecord(*r))
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func copyRecord(r domain.TransitionRecord) domain.TransitionRecord {
	if r.Details != nil {
		details := make(map[string]any, len(r.Details))
		for k, v := range r.Details {
			details[k] = v
		}
		r.Details = details
	}
	return r
}

func sortRecords(rs []domain.TransitionRecord) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].OccurredAt.Equal(rs[j].OccurredAt) {
			return rs[i].OccurredAt.Before(rs[j].OccurredAt)
		}
		return rs[i].Seq < rs[j].Seq
	})
}
