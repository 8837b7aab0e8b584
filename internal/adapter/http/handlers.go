package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opsgate/sapguard/internal/domain/capability"
	"github.com/opsgate/sapguard/internal/domain/testplan"
	"github.com/opsgate/sapguard/internal/port/database"
	"github.com/opsgate/sapguard/internal/port/messagequeue"
	"github.com/opsgate/sapguard/internal/service"
)

// HealthChecker reports whether an external dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) (bool, error)
}

// Handlers bundles the services the REST surface exposes.
type Handlers struct {
	Conversations *service.ConversationService
	Plans         *service.PlanService
	Registry      *capability.Registry
	Store         database.Store

	// Health dependencies. Any of these may be nil.
	Queue messagequeue.Queue
	LLM   HealthChecker
}

// --- Conversations ---

type createConversationRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Title       string `json:"title"`
}

func (h *Handlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createConversationRequest](w, r)
	if !ok {
		return
	}

	c, err := h.Conversations.StartConversation(r.Context(), req.WorkspaceID, req.Title)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetConversation(r.Context(), urlParam(r, "id"))
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Store.ListMessages(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[sendMessageRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Content, "content") {
		return
	}

	result, err := h.Conversations.SendMessage(r.Context(), urlParam(r, "id"), req.Content)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil && result == nil {
		writeInternalError(w, err)
		return
	}
	// A partial result with an abnormal ending still carries the trace; the
	// client gets both.
	writeJSON(w, http.StatusOK, result)
}

// --- Plans ---

type submitPlanRequest struct {
	Plan           json.RawMessage `json:"plan"`
	ConversationID string          `json:"conversation_id"`
}

func (h *Handlers) SubmitPlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[submitPlanRequest](w, r)
	if !ok {
		return
	}
	if len(req.Plan) == 0 {
		writeError(w, http.StatusBadRequest, "plan is required")
		return
	}

	outcome, err := h.Plans.Submit(r.Context(), req.Plan, req.ConversationID, "")
	if errors.Is(err, testplan.ErrSafetyViolation) {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := http.StatusOK
	if outcome.Gated {
		status = http.StatusAccepted
	}
	writeJSON(w, status, outcome)
}

// --- Confirmations ---

func (h *Handlers) ConfirmExecution(w http.ResponseWriter, r *http.Request) {
	h.decideConfirmation(w, r, true)
}

func (h *Handlers) CancelExecution(w http.ResponseWriter, r *http.Request) {
	h.decideConfirmation(w, r, false)
}

func (h *Handlers) decideConfirmation(w http.ResponseWriter, r *http.Request, confirm bool) {
	id := urlParam(r, "id")
	if !requireField(w, id, "confirmation id") {
		return
	}

	status, results, err := h.Plans.Decide(r.Context(), id, confirm)
	if errors.Is(err, testplan.ErrSafetyViolation) {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if status == service.ConfirmNotFound {
		writeError(w, http.StatusNotFound, "confirmation not found or already resolved")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"results": results,
	})
}

// --- Capabilities ---

func (h *Handlers) ListCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": h.Registry.List()})
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if h.Queue != nil {
		if h.Queue.IsConnected() {
			checks["nats"] = "ok"
		} else {
			checks["nats"] = "disconnected"
			healthy = false
		}
	}
	if h.LLM != nil {
		if ok, _ := h.LLM.Health(r.Context()); ok {
			checks["litellm"] = "ok"
		} else {
			checks["litellm"] = "unreachable"
			healthy = false
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}
