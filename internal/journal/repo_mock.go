package journal

import (
	"context"
	"sort"
	"sync"
)

// RepoMock is an in-memory entries store used in tests.
type RepoMock struct {
	mu            sync.Mutex
	LiftEntries   map[string]LiftEntry
	CardioEntries map[string]CardioEntry
	RunEntries    map[string]RunEntry

	AddErr  error
	ListErr error
}

func NewRepoMock() *RepoMock {
	return &RepoMock{
		LiftEntries:   map[string]LiftEntry{},
		CardioEntries: map[string]CardioEntry{},
		RunEntries:    map[string]RunEntry{},
	}
}

func (r *RepoMock) AddLiftEntry(_ context.Context, entry LiftEntry) error {
	if r.AddErr != nil {
		return r.AddErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LiftEntries[entry.ID] = entry
	return nil
}

func (r *RepoMock) ListLiftEntries(_ context.Context, lift string) ([]LiftEntry, error) {
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]LiftEntry, 0)
	for _, e := range r.LiftEntries {
		if e.Lift == lift {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DateISO < entries[j].DateISO })
	return entries, nil
}

func (r *RepoMock) GetLiftEntry(_ context.Context, id string) (*LiftEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.LiftEntries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &entry, nil
}

func (r *RepoMock) DeleteLiftEntry(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.LiftEntries[id]; !ok {
		return ErrEntryNotFound
	}
	delete(r.LiftEntries, id)
	return nil
}

func (r *RepoMock) AddCardioEntry(_ context.Context, entry CardioEntry) error {
	if r.AddErr != nil {
		return r.AddErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CardioEntries[entry.ID] = entry
	return nil
}

func (r *RepoMock) ListCardioEntries(_ context.Context, machine string) ([]CardioEntry, error) {
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]CardioEntry, 0)
	for _, e := range r.CardioEntries {
		if machine == "" || e.Machine == machine {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DateISO < entries[j].DateISO })
	return entries, nil
}

func (r *RepoMock) AddRunEntry(_ context.Context, entry RunEntry) error {
	if r.AddErr != nil {
		return r.AddErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RunEntries[entry.ID] = entry
	return nil
}

func (r *RepoMock) ListRunEntries(_ context.Context) ([]RunEntry, error) {
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]RunEntry, 0)
	for _, e := range r.RunEntries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DateISO < entries[j].DateISO })
	return entries, nil
}
