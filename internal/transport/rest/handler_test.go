package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quizparty-service/internal/app"
	"quizparty-service/internal/domain"
	"quizparty-service/internal/infra/memory"
	"quizparty-service/internal/transport/rest"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.GameService) {
	t.Helper()
	loader := memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warmup",
			Questions: []domain.Question{
				{ID: "q1", Prompt: "What is 2 + 2?", Choices: []string{"3", "4", "5"}, CorrectAnswer: 1},
			},
		},
	})
	service := app.NewGameService(memory.NewGateway(), memory.NewQuizRepository(loader, time.Minute))
	mux := http.NewServeMux()
	rest.NewHandler(service).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestCreateSessionEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/sessions", map[string]string{
		"hostId": "host-1",
		"quizId": "quiz-1",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created struct {
		SessionID string `json:"sessionId"`
		JoinCode  string `json:"joinCode"`
		QuizTitle string `json:"quizTitle"`
		Status    string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.SessionID == "" {
		t.Fatalf("expected a session id")
	}
	if len(created.JoinCode) != 6 {
		t.Fatalf("expected a 6-character join code, got %q", created.JoinCode)
	}
	if created.Status != string(domain.StatusWaiting) {
		t.Fatalf("expected waiting status, got %q", created.Status)
	}
	if created.QuizTitle != "Warmup" {
		t.Fatalf("unexpected quiz title %q", created.QuizTitle)
	}
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/sessions", map[string]string{"hostId": "host-1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing quizId: expected 400, got %d", resp.StatusCode)
	}

	resp = postJSON(t, server.URL+"/sessions", map[string]string{
		"hostId": "host-1",
		"quizId": "no-such-quiz",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown quiz: expected 404, got %d", resp.StatusCode)
	}

	resp, err := http.Get(server.URL + "/sessions")
	if err != nil {
		t.Fatalf("get sessions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET: expected 405, got %d", resp.StatusCode)
	}
}

func TestResultListingEndpoints(t *testing.T) {
	server, service := newTestServer(t)
	ctx := context.Background()

	session, err := service.CreateSession(ctx, "host-1", "quiz-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, _, err := service.JoinSession(ctx, session.JoinCode, "alice"); err != nil {
		t.Fatalf("join session: %v", err)
	}
	if _, err := service.StartSession(ctx, session.ID, "host-1"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if _, err := service.FinishSession(ctx, session.ID); err != nil {
		t.Fatalf("finish session: %v", err)
	}

	resp, err := http.Get(server.URL + "/results/recent")
	if err != nil {
		t.Fatalf("get recent results: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var recent []domain.GameResult
	if err := json.NewDecoder(resp.Body).Decode(&recent); err != nil {
		t.Fatalf("decode recent results: %v", err)
	}
	if len(recent) != 1 || recent[0].SessionID != session.ID {
		t.Fatalf("expected the finished session in recent results, got %+v", recent)
	}

	resp, err = http.Get(fmt.Sprintf("%s/results/quiz/%s?limit=5", server.URL, session.QuizID))
	if err != nil {
		t.Fatalf("get quiz results: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var byQuiz []domain.GameResult
	if err := json.NewDecoder(resp.Body).Decode(&byQuiz); err != nil {
		t.Fatalf("decode quiz results: %v", err)
	}
	if len(byQuiz) != 1 || byQuiz[0].QuizID != "quiz-1" {
		t.Fatalf("expected one result for quiz-1, got %+v", byQuiz)
	}

	resp, err = http.Get(server.URL + "/results/quiz/")
	if err != nil {
		t.Fatalf("get quiz results without id: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty quiz id: expected 400, got %d", resp.StatusCode)
	}
}
