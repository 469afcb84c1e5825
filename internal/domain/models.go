package domain

import "time"

// SessionStatus is the lifecycle state of a game session. Transitions are
// one-way: waiting -> active -> finished.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusActive   SessionStatus = "active"
	StatusFinished SessionStatus = "finished"
)

// ConnectionRole distinguishes the session host from regular players.
type ConnectionRole string

const (
	RoleHost   ConnectionRole = "host"
	RolePlayer ConnectionRole = "player"
)

// DefaultBasePoints is used when a question carries no explicit point value.
const DefaultBasePoints = 100

// Question models an MCQ question. The choice index doubles as the choice id.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Choices       []string `json:"choices"`
	CorrectAnswer int      `json:"correctAnswer"`
	TimeLimit     int      `json:"timeLimit"` // seconds, enforced by the presentation layer
	Points        int      `json:"points"`    // defaults to DefaultBasePoints if zero
}

// BasePoints returns the configured point value, falling back to the default.
func (q Question) BasePoints() int {
	if q.Points > 0 {
		return q.Points
	}
	return DefaultBasePoints
}

// Quiz is immutable content owned by the authoring system; sessions embed a
// snapshot of it so later edits never affect a running game.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// GameSession is one run of a quiz from creation to finish.
type GameSession struct {
	ID              string        `json:"id"`
	QuizID          string        `json:"quizId"`
	HostID          string        `json:"hostId"`
	JoinCode        string        `json:"joinCode"`
	Status          SessionStatus `json:"status"`
	CurrentQuestion int           `json:"currentQuestion"` // index of the next question to present, never decreases
	Quiz            Quiz          `json:"quiz"`            // snapshot taken at creation
	CreatedAt       time.Time     `json:"createdAt"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	FinishedAt      *time.Time    `json:"finishedAt,omitempty"`
}

// QuestionAt returns the question with the given id from the session snapshot.
func (s GameSession) QuestionAt(questionID string) (Question, bool) {
	for _, q := range s.Quiz.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

// Player is a participant admitted into a session.
type Player struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Name      string         `json:"name"` // unique within the session
	Score     int            `json:"score"`
	Answers   []PlayerAnswer `json:"answers"`
	Online    bool           `json:"online"`
	JoinedAt  time.Time      `json:"joinedAt"`
}

// AnswerFor returns the player's recorded answer for a question, if any.
// At most one answer exists per question id.
func (p Player) AnswerFor(questionID string) (PlayerAnswer, bool) {
	for _, a := range p.Answers {
		if a.QuestionID == questionID {
			return a, true
		}
	}
	return PlayerAnswer{}, false
}

// PlayerAnswer is immutable once recorded; duplicates are rejected, never
// overwritten.
type PlayerAnswer struct {
	QuestionID     string    `json:"questionId"`
	SelectedChoice int       `json:"selectedChoice"`
	TimeToAnswerMs int64     `json:"timeToAnswerMs"`
	Correct        bool      `json:"correct"`
	Points         int       `json:"points"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// AnswerOutcome is the per-submission feedback returned to the answering player.
type AnswerOutcome struct {
	QuestionID   string `json:"questionId"`
	Correct      bool   `json:"correct"`
	Points       int    `json:"points"`
	Rank         int    `json:"rank,omitempty"` // 1-based among correct answers, by submission time
	TotalCorrect int    `json:"totalCorrect,omitempty"`
	TotalScore   int    `json:"totalScore"`
}

// LeaderboardEntry is a ranked standing row. Rank is 1-based positional; ties
// keep their encounter order.
type LeaderboardEntry struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Score      int    `json:"score"`
	Rank       int    `json:"rank"`
}

// QuestionStat captures per-question correctness counts for the game result.
type QuestionStat struct {
	QuestionID   string `json:"questionId"`
	CorrectCount int    `json:"correctCount"`
	TotalAnswers int    `json:"totalAnswers"`
}

// GameResult is the immutable post-game snapshot, built exactly once when a
// session transitions to finished.
type GameResult struct {
	SessionID     string             `json:"sessionId"`
	QuizID        string             `json:"quizId"`
	QuizTitle     string             `json:"quizTitle"`
	HostID        string             `json:"hostId"`
	CompletedAt   time.Time          `json:"completedAt"`
	PlayerCount   int                `json:"playerCount"`
	QuestionCount int                `json:"questionCount"`
	AverageScore  int                `json:"averageScore"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
	QuestionStats []QuestionStat     `json:"questionStats"`
	DurationMs    int64              `json:"durationMs,omitempty"`
	Public        bool               `json:"public"`
}
