package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when a session id resolves to nothing.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrPlayerNotFound is returned when a player tries to act before joining.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrQuestionNotFound indicates a submitted question id is not part of the session's quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrUnauthorized is returned when a non-host attempts a host-only action.
	ErrUnauthorized = errors.New("not the session host")
	// ErrInvalidState is returned when an action is attempted in the wrong session status.
	ErrInvalidState = errors.New("invalid session state")
	// ErrNoPlayers prevents starting a session with an empty roster.
	ErrNoPlayers = errors.New("session has no players")
	// ErrDuplicateAnswer is returned when a player re-submits for an answered question.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrInvalidChoice is returned when the selected choice index is out of range.
	ErrInvalidChoice = errors.New("choice index out of range")
	// ErrInvalidJoinCode is returned when a join code maps to no session.
	ErrInvalidJoinCode = errors.New("invalid join code")
	// ErrGameAlreadyStarted rejects joins after the session left the waiting state.
	ErrGameAlreadyStarted = errors.New("game already started")
	// ErrCodeAllocationFailed is returned when join-code generation exhausts its retries.
	ErrCodeAllocationFailed = errors.New("join code allocation failed")
	// ErrUnknownMessageType is returned for protocol messages with an unrecognized tag.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrPersistence wraps store failures so callers can tell them from domain rejections.
	ErrPersistence = errors.New("persistence failure")
)

// Stable protocol error codes carried in outbound error payloads.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInvalidState         = "INVALID_STATE"
	CodeNoPlayers            = "NO_PLAYERS"
	CodeDuplicateAnswer      = "DUPLICATE_ANSWER"
	CodeInvalidChoice        = "INVALID_CHOICE"
	CodeInvalidJoinCode      = "INVALID_JOIN_CODE"
	CodeGameAlreadyStarted   = "GAME_ALREADY_STARTED"
	CodeCodeAllocationFailed = "CODE_ALLOCATION_FAILED"
	CodeUnknownMessageType   = "UNKNOWN_MESSAGE_TYPE"
	CodePersistenceFailure   = "PERSISTENCE_FAILURE"
	CodeInternal             = "INTERNAL"
)

// ErrorCode maps an error to its stable protocol code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrQuizNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrPlayerNotFound),
		errors.Is(err, ErrQuestionNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrNoPlayers):
		return CodeNoPlayers
	case errors.Is(err, ErrDuplicateAnswer):
		return CodeDuplicateAnswer
	case errors.Is(err, ErrInvalidChoice):
		return CodeInvalidChoice
	case errors.Is(err, ErrInvalidJoinCode):
		return CodeInvalidJoinCode
	case errors.Is(err, ErrGameAlreadyStarted):
		return CodeGameAlreadyStarted
	case errors.Is(err, ErrCodeAllocationFailed):
		return CodeCodeAllocationFailed
	case errors.Is(err, ErrUnknownMessageType):
		return CodeUnknownMessageType
	case errors.Is(err, ErrPersistence):
		return CodePersistenceFailure
	default:
		return CodeInternal
	}
}
