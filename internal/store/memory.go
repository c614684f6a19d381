package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// MemoryStore keeps everything in process memory. Instances are stored as
// encoded documents, so callers never share references with the store.
type MemoryStore struct {
	codec *Codec

	mu          sync.RWMutex
	definitions map[string]*schema.WorkflowType
	instances   map[string][]byte
	events      map[string][]*Event
	nextEventID int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. A nil codec uses NewCodec(nil).
func NewMemoryStore(codec *Codec) *MemoryStore {
	if codec == nil {
		codec = NewCodec(nil)
	}
	return &MemoryStore{
		codec:       codec,
		definitions: make(map[string]*schema.WorkflowType),
		instances:   make(map[string][]byte),
		events:      make(map[string][]*Event),
	}
}

func (s *MemoryStore) Close() error { return nil }

// --- Definitions ---

func (s *MemoryStore) GetDefinition(_ context.Context, id string) (*schema.WorkflowType, error) {
	s.mu.RLock()
	def, ok := s.definitions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("definition", id)
	}
	return cloneDefinition(def)
}

func (s *MemoryStore) SaveDefinition(_ context.Context, def *schema.WorkflowType) error {
	if def.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "definition id is required")
	}
	cp, err := cloneDefinition(def)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.definitions[def.ID] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListDefinitions(_ context.Context) ([]*schema.WorkflowType, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.definitions))
	for id := range s.definitions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]*schema.WorkflowType, 0, len(ids))
	for _, id := range ids {
		s.mu.RLock()
		def, ok := s.definitions[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		cp, err := cloneDefinition(def)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *MemoryStore) DeleteDefinition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.definitions[id]; !ok {
		return notFound("definition", id)
	}
	delete(s.definitions, id)
	return nil
}

// --- Instances ---

func (s *MemoryStore) LoadInstance(_ context.Context, id string) (*schema.WorkflowInstance, error) {
	s.mu.RLock()
	doc, ok := s.instances[id]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("instance", id)
	}
	return s.codec.Unmarshal(doc)
}

func (s *MemoryStore) SaveInstance(_ context.Context, inst *schema.WorkflowInstance) error {
	if inst.CorrelationID == "" {
		return schema.NewError(schema.ErrCodeValidation, "instance correlation id is required")
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}
	inst.UpdatedAt = time.Now().UTC()

	doc, err := s.codec.Marshal(inst)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.instances[inst.CorrelationID] = doc
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteInstance(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[id]; !ok {
		return notFound("instance", id)
	}
	delete(s.instances, id)
	delete(s.events, id)
	return nil
}

func (s *MemoryStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*schema.WorkflowInstance, error) {
	s.mu.RLock()
	docs := make(map[string][]byte, len(s.instances))
	for id, doc := range s.instances {
		docs[id] = doc
	}
	s.mu.RUnlock()

	var out []*schema.WorkflowInstance
	for id, doc := range docs {
		inst, err := s.codec.Unmarshal(doc)
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable instance", "instance", id, "error", err)
			continue
		}
		if filter.matches(inst) {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CorrelationID < out[j].CorrelationID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- Events ---

func (s *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEventID++
	event.ID = s.nextEventID
	event.Sequence = int64(len(s.events[event.InstanceID]) + 1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	cp := *event
	s.events[event.InstanceID] = append(s.events[event.InstanceID], &cp)
	return nil
}

func (s *MemoryStore) GetEvents(_ context.Context, instanceID string, since int64) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Event
	for _, e := range s.events[instanceID] {
		if e.Sequence > since {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
