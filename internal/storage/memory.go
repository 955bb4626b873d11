package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/omnidesk/internal/models"
)

// MemoryStorage keeps everything in process. It backs local runs and
// tests; the conditional-write semantics match the Postgres store.
type MemoryStorage struct {
	mu            sync.RWMutex
	conversations map[int64]*models.Conversation
	handoffs      map[string]*models.Handoff
	teams         map[int64]*models.Team
	users         map[int64]*models.User
	nextConvID    int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[int64]*models.Conversation),
		handoffs:      make(map[string]*models.Handoff),
		teams:         make(map[int64]*models.Team),
		users:         make(map[int64]*models.User),
		nextConvID:    1,
	}
}

// AddTeam and AddUser seed the directory; the memory store has no
// migration path so callers populate it directly.
func (s *MemoryStorage) AddTeam(team *models.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *team
	s.teams[team.ID] = &copied
}

func (s *MemoryStorage) AddUser(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *user
	s.users[user.ID] = &copied
}

func (s *MemoryStorage) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (s *MemoryStorage) CreateConversation(ctx context.Context, contactID int64, detectedTeam string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv := &models.Conversation{
		ID:               s.nextConvID,
		ContactID:        contactID,
		Status:           models.StatusOpen,
		AssignmentMethod: models.MethodManual,
		DetectedTeam:     detectedTeam,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.nextConvID++
	s.conversations[conv.ID] = conv

	copied := *conv
	return &copied, nil
}

func (s *MemoryStorage) LatestConversationByContact(ctx context.Context, contactID int64) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Conversation
	for _, conv := range s.conversations {
		if conv.ContactID != contactID {
			continue
		}
		if latest == nil || conv.CreatedAt.After(latest.CreatedAt) {
			latest = conv
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *MemoryStorage) UpdateConversationStatus(ctx context.Context, id int64, from, to models.ConversationStatus) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, ErrNotFound
	}
	if conv.Status != from {
		return nil, ErrConflict
	}

	conv.Status = to
	conv.UpdatedAt = time.Now()
	copied := *conv
	return &copied, nil
}

func (s *MemoryStorage) SetConversationAssignment(ctx context.Context, id int64, teamID, userID *int64, method models.AssignmentMethod) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, ErrNotFound
	}

	conv.AssignedTeamID = copyID(teamID)
	conv.AssignedUserID = copyID(userID)
	conv.AssignmentMethod = method
	conv.UpdatedAt = time.Now()
	copied := *conv
	return &copied, nil
}

func (s *MemoryStorage) SetDetectedTeam(ctx context.Context, id int64, hint string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, ErrNotFound
	}

	conv.DetectedTeam = hint
	conv.UpdatedAt = time.Now()
	copied := *conv
	return &copied, nil
}

func (s *MemoryStorage) CreateHandoff(ctx context.Context, h *models.Handoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *h
	s.handoffs[h.ID] = &copied
	return nil
}

func (s *MemoryStorage) GetHandoff(ctx context.Context, id string) (*models.Handoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.handoffs[id]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *h
	return &copied, nil
}

func (s *MemoryStorage) UpdateHandoffStatus(ctx context.Context, id string, from, to models.HandoffStatus, update HandoffUpdate) (*models.Handoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.handoffs[id]
	if !exists {
		return nil, ErrNotFound
	}
	if h.Status != from {
		return nil, ErrConflict
	}

	h.Status = to
	if update.RejectReason != nil {
		h.RejectReason = *update.RejectReason
	}
	if update.AcceptedByID != nil {
		h.AcceptedByID = copyID(update.AcceptedByID)
	}
	h.UpdatedAt = time.Now()
	copied := *h
	return &copied, nil
}

func (s *MemoryStorage) ListHandoffs(ctx context.Context, status models.HandoffStatus) ([]*models.Handoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Handoff
	for _, h := range s.handoffs {
		if status != "" && h.Status != status {
			continue
		}
		copied := *h
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStorage) HandoffStats(ctx context.Context) (*models.HandoffStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.HandoffStats{
		ByStatus:   make(map[string]int),
		ByType:     make(map[string]int),
		ByPriority: make(map[string]int),
	}
	for _, h := range s.handoffs {
		stats.Total++
		stats.ByStatus[string(h.Status)]++
		stats.ByType[string(h.Type)]++
		stats.ByPriority[string(h.Priority)]++
	}
	return stats, nil
}

func (s *MemoryStorage) GetTeam(ctx context.Context, id int64) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	team, exists := s.teams[id]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *team
	return &copied, nil
}

func (s *MemoryStorage) ListTeams(ctx context.Context, activeOnly bool) ([]*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Team
	for _, team := range s.teams {
		if activeOnly && !team.Active {
			continue
		}
		copied := *team
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryStorage) ListUsers(ctx context.Context, activeOnly bool) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.User
	for _, user := range s.users {
		if activeOnly && !user.Active {
			continue
		}
		copied := *user
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStorage) TeamMembers(ctx context.Context, teamID int64, activeOnly bool) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.teams[teamID]; !exists {
		return nil, ErrNotFound
	}

	var result []*models.User
	for _, user := range s.users {
		if user.TeamID == nil || *user.TeamID != teamID {
			continue
		}
		if activeOnly && !user.Active {
			continue
		}
		copied := *user
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
