package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quizparty-service/internal/app"
	"quizparty-service/internal/domain"
	"quizparty-service/internal/infra/memory"
)

// Full protocol round trip: host joins, two players join (second display name
// gets a suffix), the game runs one question, both answer, the host reveals
// and ends the game.
func TestWebSocketGameFlow(t *testing.T) {
	service, store := newTestService(t)
	server := newTestServer(t, service, store)
	defer server.Close()

	ctx := context.Background()
	session, err := service.CreateSession(ctx, "host-1", "quiz-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	host := dial(t, server)
	defer host.Close()
	sendMessage(t, host, TypeHostJoin, hostJoinContent{SessionID: session.ID, HostID: "host-1"})
	readUntil(t, host, TypeLeaderboardUpdate)

	ann := dial(t, server)
	defer ann.Close()
	sendMessage(t, ann, TypePlayerJoin, playerJoinContent{JoinCode: session.JoinCode, Name: "Ann"})
	annJoined := decodeContent[playerJoinedContent](t, readUntil(t, ann, TypePlayerJoined))
	if annJoined.Name != "Ann" || annJoined.RequestedName != "" {
		t.Fatalf("unexpected join payload: %+v", annJoined)
	}

	ann2 := dial(t, server)
	defer ann2.Close()
	sendMessage(t, ann2, TypePlayerJoin, playerJoinContent{JoinCode: session.JoinCode, Name: "Ann"})
	ann2Joined := decodeContent[playerJoinedContent](t, readUntil(t, ann2, TypePlayerJoined))
	if ann2Joined.Name != "Ann2" || ann2Joined.RequestedName != "Ann" {
		t.Fatalf("expected suffixed name with requested name echoed, got %+v", ann2Joined)
	}

	// The host hears about both joins.
	readUntil(t, host, TypePlayerJoined)
	readUntil(t, host, TypePlayerJoined)

	sendMessage(t, host, TypeStartGame, nil)
	started := decodeContent[gameStartedContent](t, readUntil(t, ann, TypeGameStarted))
	if started.QuestionCount != 1 {
		t.Fatalf("expected 1 question, got %+v", started)
	}
	readUntil(t, ann2, TypeGameStarted)
	readUntil(t, host, TypeGameStarted)

	sendMessage(t, host, TypeNextQuestion, nil)
	question := decodeContent[questionStartedContent](t, readUntil(t, ann, TypeQuestionStarted))
	if question.ID != "q1" || len(question.Choices) != 4 {
		t.Fatalf("unexpected question payload: %+v", question)
	}
	readUntil(t, ann2, TypeQuestionStarted)

	sendMessage(t, ann, TypeSubmitAnswer, submitAnswerContent{QuestionID: "q1", SelectedChoice: 1, TimeToAnswerMs: 700})
	annResult := decodeContent[domain.AnswerOutcome](t, readUntil(t, ann, TypeAnswerResult))
	if !annResult.Correct || annResult.Points != 100 || annResult.Rank != 1 {
		t.Fatalf("expected first correct answer at 100, got %+v", annResult)
	}

	sendMessage(t, ann2, TypeSubmitAnswer, submitAnswerContent{QuestionID: "q1", SelectedChoice: 1, TimeToAnswerMs: 1200})
	ann2Result := decodeContent[domain.AnswerOutcome](t, readUntil(t, ann2, TypeAnswerResult))
	if !ann2Result.Correct || ann2Result.Points != 75 || ann2Result.Rank != 2 {
		t.Fatalf("expected second correct answer at 75, got %+v", ann2Result)
	}

	// The host got a leaderboard update per answer.
	lb := decodeContent[leaderboardContent](t, readUntil(t, host, TypeLeaderboardUpdate))
	if len(lb.Entries) != 2 {
		t.Fatalf("expected 2 leaderboard entries, got %+v", lb.Entries)
	}

	sendMessage(t, host, TypeRevealAnswer, nil)
	reveal := decodeContent[app.RevealOutcome](t, readUntil(t, ann, TypeAnswerRevealed))
	if reveal.CorrectAnswer != 1 || reveal.Stat.CorrectCount != 2 || reveal.Stat.TotalAnswers != 2 {
		t.Fatalf("unexpected reveal: %+v", reveal)
	}
	readUntil(t, ann, TypeLeaderboardUpdate)

	sendMessage(t, host, TypeEndGame, nil)
	result := decodeContent[domain.GameResult](t, readUntil(t, ann, TypeGameEnded))
	if result.AverageScore != 88 || result.PlayerCount != 2 {
		t.Fatalf("unexpected game result: %+v", result)
	}
	if result.Leaderboard[0].PlayerName != "Ann" || result.Leaderboard[0].Score != 100 {
		t.Fatalf("unexpected final leaderboard: %+v", result.Leaderboard)
	}
}

func TestWebSocketRejectsUnknownTypeAndBadRole(t *testing.T) {
	service, store := newTestService(t)
	server := newTestServer(t, service, store)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	sendMessage(t, conn, "telekinesis", nil)
	errPayload := decodeContent[errorContent](t, readUntil(t, conn, TypeError))
	if errPayload.Code != domain.CodeUnknownMessageType {
		t.Fatalf("expected unknown message type, got %+v", errPayload)
	}

	// Host commands before host_join are unauthorized.
	sendMessage(t, conn, TypeStartGame, nil)
	errPayload = decodeContent[errorContent](t, readUntil(t, conn, TypeError))
	if errPayload.Code != domain.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", errPayload)
	}

	// Answers before joining are rejected to the sender only.
	sendMessage(t, conn, TypeSubmitAnswer, submitAnswerContent{QuestionID: "q1", SelectedChoice: 0})
	errPayload = decodeContent[errorContent](t, readUntil(t, conn, TypeError))
	if errPayload.Code != domain.CodeNotFound {
		t.Fatalf("expected not found, got %+v", errPayload)
	}
}

// A recognized type with content that does not decode is a content failure,
// not an unknown-type failure.
func TestWebSocketMalformedContentKeepsTypeDistinct(t *testing.T) {
	service, store := newTestService(t)
	server := newTestServer(t, service, store)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	sendMessage(t, conn, TypeHostJoin, "not-an-object")
	errPayload := decodeContent[errorContent](t, readUntil(t, conn, TypeError))
	if errPayload.Code == domain.CodeUnknownMessageType {
		t.Fatalf("recognized type reported as unknown: %+v", errPayload)
	}
	if errPayload.Code != domain.CodeInternal || errPayload.Details == "" {
		t.Fatalf("expected internal code with decode detail, got %+v", errPayload)
	}

	sendMessage(t, conn, TypePlayerJoin, "not-an-object")
	errPayload = decodeContent[errorContent](t, readUntil(t, conn, TypeError))
	if errPayload.Code == domain.CodeUnknownMessageType {
		t.Fatalf("recognized type reported as unknown: %+v", errPayload)
	}
}

func TestWebSocketDisconnectBroadcastsPlayerLeft(t *testing.T) {
	service, store := newTestService(t)
	server := newTestServer(t, service, store)
	defer server.Close()

	ctx := context.Background()
	session, err := service.CreateSession(ctx, "host-1", "quiz-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	host := dial(t, server)
	defer host.Close()
	sendMessage(t, host, TypeHostJoin, hostJoinContent{SessionID: session.ID, HostID: "host-1"})
	readUntil(t, host, TypeLeaderboardUpdate)

	player := dial(t, server)
	sendMessage(t, player, TypePlayerJoin, playerJoinContent{JoinCode: session.JoinCode, Name: "Ann"})
	joined := decodeContent[playerJoinedContent](t, readUntil(t, player, TypePlayerJoined))
	readUntil(t, host, TypePlayerJoined)

	player.Close()

	left := decodeContent[playerLeftContent](t, readUntil(t, host, TypePlayerLeft))
	if left.PlayerID != joined.PlayerID || left.Name != "Ann" {
		t.Fatalf("unexpected player_left payload: %+v", left)
	}

	// The persisted socket route is cleared so stale routes are not reused.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, _ := store.PlayerSocket(ctx, session.ID, joined.PlayerID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected socket route removed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	players, _ := store.GetSessionPlayers(ctx, session.ID)
	if len(players) != 1 || players[0].Online {
		t.Fatalf("expected player marked offline, got %+v", players)
	}
}

// --- helpers ---

func newTestService(t *testing.T) (*app.GameService, *memory.Gateway) {
	t.Helper()
	store := memory.NewGateway()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Flow test",
			Questions: []domain.Question{
				{
					ID:            "q1",
					Prompt:        "Pick the second choice",
					Choices:       []string{"first", "second", "third", "fourth"},
					CorrectAnswer: 1,
					TimeLimit:     20,
					Points:        100,
				},
			},
		},
	}), time.Minute)
	return app.NewGameService(store, quizzes), store
}

func newTestServer(t *testing.T, service *app.GameService, store app.Store) *httptest.Server {
	t.Helper()
	registry := NewRegistry()
	router := NewRouter(service, store, registry)
	handler := NewWSHandler(router, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	return httptest.NewServer(mux)
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, msgType string, content any) {
	t.Helper()
	env := Envelope{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if content != nil {
		data, err := json.Marshal(content)
		if err != nil {
			t.Fatalf("marshal content: %v", err)
		}
		env.Content = data
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readUntil reads envelopes until one of the wanted type arrives, skipping
// heartbeats and unrelated broadcasts.
func readUntil(t *testing.T, conn *websocket.Conn, want string) Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if env.Type == want {
			return env
		}
		if env.Type == TypeError {
			t.Fatalf("waiting for %s, got error: %s", want, string(env.Content))
		}
	}
}

func decodeContent[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Content, &out); err != nil {
		t.Fatalf("decode %s content: %v", env.Type, err)
	}
	return out
}
