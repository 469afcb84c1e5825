package rest

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"quizparty-service/internal/app"
	"quizparty-service/internal/domain"
)

const defaultListLimit = 20

// Handler is the JSON surface next to the websocket protocol: hosts mint
// sessions here (player entry stays on the join code), and finished games can
// be listed.
type Handler struct {
	service *app.GameService
}

func NewHandler(service *app.GameService) *Handler {
	return &Handler{service: service}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/sessions", h.createSession)
	mux.HandleFunc("/results/recent", h.recentResults)
	mux.HandleFunc("/results/quiz/", h.resultsByQuiz)
}

type createSessionRequest struct {
	HostID string `json:"hostId"`
	QuizID string `json:"quizId"`
}

// createSessionResponse keeps the embedded quiz snapshot (and its answer key)
// out of the response body.
type createSessionResponse struct {
	SessionID string               `json:"sessionId"`
	JoinCode  string               `json:"joinCode"`
	QuizID    string               `json:"quizId"`
	QuizTitle string               `json:"quizTitle"`
	Status    domain.SessionStatus `json:"status"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.HostID == "" || req.QuizID == "" {
		http.Error(w, "hostId and quizId are required", http.StatusBadRequest)
		return
	}

	session, err := h.service.CreateSession(r.Context(), req.HostID, req.QuizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: session.ID,
		JoinCode:  session.JoinCode,
		QuizID:    session.QuizID,
		QuizTitle: session.Quiz.Title,
		Status:    session.Status,
	})
}

func (h *Handler) recentResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	results, err := h.service.RecentResults(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) resultsByQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	quizID := strings.TrimPrefix(r.URL.Path, "/results/quiz/")
	if quizID == "" || strings.Contains(quizID, "/") {
		http.Error(w, "quiz id missing", http.StatusBadRequest)
		return
	}
	results, err := h.service.ResultsByQuiz(r.Context(), quizID, limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("rest: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeUnauthorized:
		status = http.StatusForbidden
	case domain.CodeInvalidState, domain.CodeGameAlreadyStarted:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{
		"message": err.Error(),
		"code":    code,
	})
}
