package ws

import (
	"encoding/json"
	"time"

	"quizparty-service/internal/domain"
)

// Message type tags. Keep the dispatch switch in router.go in sync with this
// catalog.
const (
	// host-initiated
	TypeHostJoin     = "host_join"
	TypeStartGame    = "start_game"
	TypeNextQuestion = "next_question"
	TypeRevealAnswer = "reveal_answer"
	TypeEndGame      = "end_game"

	// player-initiated
	TypePlayerJoin   = "player_join"
	TypeSubmitAnswer = "submit_answer"

	// server-originated
	TypePlayerJoined      = "player_joined"
	TypePlayerLeft        = "player_left"
	TypeGameStarted       = "game_started"
	TypeQuestionStarted   = "question_started"
	TypeAnswerRevealed    = "answer_revealed"
	TypeAnswerResult      = "answer_result"
	TypeGameEnded         = "game_ended"
	TypeLeaderboardUpdate = "leaderboard_update"
	TypeError             = "error"
	TypeHeartbeat         = "heartbeat"
)

// Envelope is the bidirectional wire format.
type Envelope struct {
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	PlayerID  string          `json:"playerId,omitempty"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
}

// newEnvelope marshals content into an outbound envelope. Content types are
// all local structs, so a marshal failure is a programming error and yields an
// empty content field rather than a dropped message.
func newEnvelope(msgType string, content any, sessionID string) Envelope {
	env := Envelope{
		Type:      msgType,
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
	}
	if content != nil {
		if data, err := json.Marshal(content); err == nil {
			env.Content = data
		}
	}
	return env
}

// Inbound payloads.

type hostJoinContent struct {
	SessionID string `json:"sessionId"`
	HostID    string `json:"hostId"`
}

type playerJoinContent struct {
	JoinCode string `json:"joinCode"`
	Name     string `json:"name"`
}

type submitAnswerContent struct {
	QuestionID     string `json:"questionId"`
	SelectedChoice int    `json:"selectedChoice"`
	TimeToAnswerMs int64  `json:"timeToAnswerMs"`
}

// Outbound payloads.

type errorContent struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

type playerJoinedContent struct {
	PlayerID      string `json:"playerId"`
	Name          string `json:"name"`
	RequestedName string `json:"requestedName,omitempty"`
	Score         int    `json:"score"`
	QuizTitle     string `json:"quizTitle"`
}

type playerLeftContent struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type gameStartedContent struct {
	StartedAt     int64 `json:"startedAt"`
	QuestionCount int   `json:"questionCount"`
}

// questionStartedContent deliberately omits the correct answer.
type questionStartedContent struct {
	Index     int      `json:"index"`
	ID        string   `json:"id"`
	Prompt    string   `json:"prompt"`
	Choices   []string `json:"choices"`
	TimeLimit int      `json:"timeLimit"`
	Points    int      `json:"points"`
}

type leaderboardContent struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
}
