package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xaenox/omnidesk/internal/actions"
	"github.com/xaenox/omnidesk/internal/models"
	"github.com/xaenox/omnidesk/internal/routing"
	"github.com/xaenox/omnidesk/internal/storage"
)

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError surfaces the taxonomy kind so operators can branch on
// why, not on string matching.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := routing.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case routing.KindNotFound:
		status = http.StatusNotFound
	case routing.KindInvalidRequest:
		status = http.StatusBadRequest
	case routing.KindInvalidTransition, routing.KindAlreadyResolved, routing.KindActionBusy:
		status = http.StatusConflict
	case routing.KindUserNotInTeam:
		status = http.StatusUnprocessableEntity
	case routing.KindPersistenceTimeout:
		status = http.StatusGatewayTimeout
	case routing.KindAssignmentPersistence, routing.KindHandoffApplyFailed:
		status = http.StatusBadGateway
	}

	var body errorBody
	body.Error.Kind = string(kind)
	if body.Error.Kind == "" {
		body.Error.Kind = "internal"
	}
	body.Error.Message = err.Error()
	s.writeJSON(w, status, body)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, routing.NewError(routing.KindInvalidRequest, "invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) conversationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	if err != nil {
		s.writeError(w, routing.NewError(routing.KindInvalidRequest, "invalid conversation id"))
		return 0, false
	}
	return id, true
}

func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}
	conv, err := s.loadConversation(r, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

// loadConversation maps the store's sentinels onto the taxonomy so a
// missing row reads differently from a slow store.
func (s *Server) loadConversation(r *http.Request, id int64) (*models.Conversation, error) {
	conv, err := s.storage.GetConversation(r.Context(), id)
	switch {
	case err == nil:
		return conv, nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, routing.NewError(routing.KindNotFound, "conversation %d not found", id)
	case errors.Is(err, storage.ErrTimeout):
		return nil, routing.NewError(routing.KindPersistenceTimeout, "loading conversation %d timed out", id)
	default:
		return nil, routing.NewError(routing.KindAssignmentPersistence, "loading conversation %d: %v", id, err)
	}
}

func (s *Server) PatchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}

	var body struct {
		Status models.ConversationStatus `json:"status"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	conv, err := s.status.RequestStatusChange(r.Context(), id, body.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) AssignTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}

	var body struct {
		TeamID *int64                  `json:"team_id"`
		Method models.AssignmentMethod `json:"method"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.Method == "" {
		body.Method = models.MethodManual
	}

	conv, err := s.assignments.AssignTeam(r.Context(), id, body.TeamID, body.Method)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) AssignUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}

	var body struct {
		UserID *int64                  `json:"user_id"`
		Method models.AssignmentMethod `json:"method"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.Method == "" {
		body.Method = models.MethodManual
	}

	conv, err := s.assignments.AssignUser(r.Context(), id, body.UserID, body.Method)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) GetCandidates(w http.ResponseWriter, r *http.Request) {
	var teamID *int64
	if raw := r.URL.Query().Get("team_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, routing.NewError(routing.KindInvalidRequest, "invalid team id"))
			return
		}
		teamID = &id
	}

	candidates, err := s.resolver.ResolveCandidates(r.Context(), teamID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, candidates)
}

func (s *Server) actionContext(w http.ResponseWriter, r *http.Request) (actions.Context, bool) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return actions.Context{}, false
	}
	conv, err := s.loadConversation(r, id)
	if err != nil {
		s.writeError(w, err)
		return actions.Context{}, false
	}
	return actions.Context{
		ConversationID: conv.ID,
		ContactID:      conv.ContactID,
		Status:         conv.Status,
	}, true
}

func (s *Server) ListActions(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.actionContext(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.dispatcher.List(ac))
}

func (s *Server) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.actionContext(w, r)
	if !ok {
		return
	}

	var body struct {
		ActorID          int64 `json:"actor_id"`
		ShowConfirmation bool  `json:"show_confirmation"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	ac.ActorID = body.ActorID

	result, err := s.dispatcher.Execute(r.Context(), chi.URLParam(r, "actionID"), ac, body.ShowConfirmation)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) CreateHandoff(w http.ResponseWriter, r *http.Request) {
	var params routing.CreateHandoffParams
	if !s.decodeBody(w, r, &params) {
		return
	}

	handoff, err := s.handoffs.Create(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, handoff)
}

func (s *Server) AcceptHandoff(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int64 `json:"user_id"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	handoff, err := s.handoffs.Accept(r.Context(), chi.URLParam(r, "handoffID"), body.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, handoff)
}

func (s *Server) RejectHandoff(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	handoff, err := s.handoffs.Reject(r.Context(), chi.URLParam(r, "handoffID"), body.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, handoff)
}

func (s *Server) ListHandoffs(w http.ResponseWriter, r *http.Request) {
	status := models.HandoffStatus(r.URL.Query().Get("status"))
	handoffs, err := s.handoffs.List(r.Context(), status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if handoffs == nil {
		handoffs = []*models.Handoff{}
	}
	s.writeJSON(w, http.StatusOK, handoffs)
}

func (s *Server) HandoffStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.handoffs.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) TeamUsers(w http.ResponseWriter, r *http.Request) {
	teamID, err := strconv.ParseInt(chi.URLParam(r, "teamID"), 10, 64)
	if err != nil {
		s.writeError(w, routing.NewError(routing.KindInvalidRequest, "invalid team id"))
		return
	}

	members, err := s.resolver.MembersOf(r.Context(), teamID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if members == nil {
		members = []*models.User{}
	}
	s.writeJSON(w, http.StatusOK, members)
}

func (s *Server) InboundEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactID int64  `json:"contact_id"`
		Content   string `json:"content"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.ContactID == 0 {
		s.writeError(w, routing.NewError(routing.KindInvalidRequest, "contact_id is required"))
		return
	}

	conv, err := s.inbound.HandleMessage(r.Context(), body.ContactID, body.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}
