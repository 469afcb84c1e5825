package app

import (
	"context"

	"quizparty-service/internal/domain"
)

// Store abstracts the durable session state behind the service (in-memory,
// Redis, etc). Absence is reported through the ok flag; errors are reserved
// for store failures.
//
// Read-modify-write sequences built on top of these operations run without a
// transactional guard; see SubmitAnswer for the accepted consequences.
type Store interface {
	SaveSession(ctx context.Context, session domain.GameSession) error
	GetSession(ctx context.Context, sessionID string) (domain.GameSession, bool, error)
	// UpdateSession applies mutate to the stored session and writes it back.
	UpdateSession(ctx context.Context, sessionID string, mutate func(*domain.GameSession)) (domain.GameSession, bool, error)

	SavePlayer(ctx context.Context, sessionID string, player domain.Player) error
	GetPlayer(ctx context.Context, sessionID, playerID string) (domain.Player, bool, error)
	// GetSessionPlayers returns the roster in join order.
	GetSessionPlayers(ctx context.Context, sessionID string) ([]domain.Player, error)
	UpdatePlayer(ctx context.Context, sessionID, playerID string, mutate func(*domain.Player)) (domain.Player, bool, error)
	RemovePlayer(ctx context.Context, sessionID, playerID string) error

	// ReserveJoinCode atomically claims code for sessionID; false means the
	// code is already taken (concurrent creates detect the conflict here,
	// not at generation time).
	ReserveJoinCode(ctx context.Context, code, sessionID string) (bool, error)
	SessionIDByJoinCode(ctx context.Context, code string) (string, bool, error)
	ReleaseJoinCode(ctx context.Context, code string) error

	SetHostSocket(ctx context.Context, sessionID, connID string) error
	HostSocket(ctx context.Context, sessionID string) (string, bool, error)
	SetPlayerSocket(ctx context.Context, sessionID, playerID, connID string) error
	PlayerSocket(ctx context.Context, sessionID, playerID string) (string, bool, error)
	AllPlayerSockets(ctx context.Context, sessionID string) (map[string]string, error)
	// RemoveSocket clears every socket route for the session that points at connID.
	RemoveSocket(ctx context.Context, sessionID, connID string) error

	// TryMarkFinished is a one-shot guard; only the first caller per session
	// gets true and may build the game result snapshot.
	TryMarkFinished(ctx context.Context, sessionID string) (bool, error)
	SaveGameResult(ctx context.Context, result domain.GameResult) error
	GetGameResult(ctx context.Context, sessionID string) (domain.GameResult, bool, error)
	// RecentGameResults lists public results ordered by completion time descending.
	RecentGameResults(ctx context.Context, limit int) ([]domain.GameResult, error)
	GameResultsByQuiz(ctx context.Context, quizID string, limit int) ([]domain.GameResult, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}
