package mirror

import (
	"sort"

	"github.com/pliu/socialsync/internal/models"
)

// Snapshot is a frozen view of the mirror. Records it returns are shared
// with the mirror and must be treated as read-only.
type Snapshot struct {
	collections map[models.Collection]map[string]models.Record
	version     uint64
}

// NewSnapshot builds a snapshot directly from records, for derivations that
// do not need a live mirror.
func NewSnapshot(records ...models.Record) *Snapshot {
	s := &Snapshot{collections: make(map[models.Collection]map[string]models.Record)}
	for _, r := range records {
		c := r.Collection()
		if s.collections[c] == nil {
			s.collections[c] = make(map[string]models.Record)
		}
		s.collections[c][r.RecordID()] = r
	}
	return s
}

func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) Len(c models.Collection) int { return len(s.collections[c]) }

func (s *Snapshot) Get(c models.Collection, id string) (models.Record, bool) {
	r, ok := s.collections[c][id]
	return r, ok
}

// Records returns a collection in ID order.
func (s *Snapshot) Records(c models.Collection) []models.Record {
	ids := make([]string, 0, len(s.collections[c]))
	for id := range s.collections[c] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.collections[c][id])
	}
	return out
}

func (s *Snapshot) Users() []*models.User {
	return collect[*models.User](s, models.CollectionUsers)
}

func (s *Snapshot) Posts() []*models.Post {
	return collect[*models.Post](s, models.CollectionPosts)
}

func (s *Snapshot) Comments() []*models.Comment {
	return collect[*models.Comment](s, models.CollectionComments)
}

func (s *Snapshot) Messages() []*models.Message {
	return collect[*models.Message](s, models.CollectionMessages)
}

func (s *Snapshot) Servers() []*models.Server {
	return collect[*models.Server](s, models.CollectionServers)
}

func (s *Snapshot) ServerMessages() []*models.ServerMessage {
	return collect[*models.ServerMessage](s, models.CollectionServerMessages)
}

func (s *Snapshot) User(id string) (*models.User, bool) {
	return lookup[*models.User](s, models.CollectionUsers, id)
}

func (s *Snapshot) Post(id string) (*models.Post, bool) {
	return lookup[*models.Post](s, models.CollectionPosts, id)
}

func (s *Snapshot) Message(id string) (*models.Message, bool) {
	return lookup[*models.Message](s, models.CollectionMessages, id)
}

func (s *Snapshot) Server(id string) (*models.Server, bool) {
	return lookup[*models.Server](s, models.CollectionServers, id)
}

func collect[T models.Record](s *Snapshot, c models.Collection) []T {
	records := s.Records(c)
	out := make([]T, 0, len(records))
	for _, r := range records {
		if v, ok := r.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func lookup[T models.Record](s *Snapshot, c models.Collection, id string) (T, bool) {
	var zero T
	r, ok := s.collections[c][id]
	if !ok {
		return zero, false
	}
	v, ok := r.(T)
	return v, ok
}
