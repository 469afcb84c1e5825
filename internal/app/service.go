package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"quizparty-service/internal/domain"
)

// GameService contains the session orchestration and scoring use cases.
type GameService struct {
	store   Store
	quizzes QuizRepository
	now     func() time.Time
}

func NewGameService(store Store, quizzes QuizRepository) *GameService {
	return NewGameServiceWithClock(store, quizzes, time.Now)
}

// NewGameServiceWithClock allows deterministic timestamps in tests.
func NewGameServiceWithClock(store Store, quizzes QuizRepository, now func() time.Time) *GameService {
	return &GameService{
		store:   store,
		quizzes: quizzes,
		now:     now,
	}
}

// CreateSession snapshots the quiz into a new waiting session and reserves a
// join code for it.
func (s *GameService) CreateSession(ctx context.Context, hostID, quizID string) (domain.GameSession, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.GameSession{}, err
	}

	sessionID := uuid.NewString()
	code, err := s.allocateJoinCode(ctx, sessionID)
	if err != nil {
		return domain.GameSession{}, err
	}

	session := domain.GameSession{
		ID:        sessionID,
		QuizID:    quiz.ID,
		HostID:    hostID,
		JoinCode:  code,
		Status:    domain.StatusWaiting,
		Quiz:      quiz,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		return domain.GameSession{}, fmt.Errorf("%w: save session: %v", domain.ErrPersistence, err)
	}
	return session, nil
}

// Session loads a session by id.
func (s *GameService) Session(ctx context.Context, sessionID string) (domain.GameSession, error) {
	session, ok, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("%w: get session: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

// StartSession moves a waiting session to active. Host-only, and the roster
// must not be empty.
func (s *GameService) StartSession(ctx context.Context, sessionID, hostID string) (domain.GameSession, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if session.HostID != hostID {
		return domain.GameSession{}, domain.ErrUnauthorized
	}
	if session.Status != domain.StatusWaiting {
		return domain.GameSession{}, domain.ErrInvalidState
	}
	players, err := s.store.GetSessionPlayers(ctx, sessionID)
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("%w: get players: %v", domain.ErrPersistence, err)
	}
	if len(players) == 0 {
		return domain.GameSession{}, domain.ErrNoPlayers
	}

	startedAt := s.now()
	updated, ok, err := s.store.UpdateSession(ctx, sessionID, func(gs *domain.GameSession) {
		gs.Status = domain.StatusActive
		gs.StartedAt = &startedAt
	})
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("%w: update session: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return updated, nil
}

// AdvanceOutcome is the result of a host advancing the session. Either
// Question is set, or Finished is true and Result carries the final snapshot.
type AdvanceOutcome struct {
	Question *domain.Question
	Index    int
	Finished bool
	Result   *domain.GameResult
}

// NextQuestion returns the question at the current index and bumps the index
// for the next call. Once the quiz is exhausted it finishes the session
// instead of returning a question.
func (s *GameService) NextQuestion(ctx context.Context, sessionID, hostID string) (AdvanceOutcome, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return AdvanceOutcome{}, err
	}
	if session.HostID != hostID {
		return AdvanceOutcome{}, domain.ErrUnauthorized
	}
	if session.Status != domain.StatusActive {
		return AdvanceOutcome{}, domain.ErrInvalidState
	}

	index := session.CurrentQuestion
	if index >= len(session.Quiz.Questions) {
		result, err := s.FinishSession(ctx, sessionID)
		if err != nil {
			return AdvanceOutcome{}, err
		}
		return AdvanceOutcome{Finished: true, Result: &result}, nil
	}

	question := session.Quiz.Questions[index]
	if _, ok, err := s.store.UpdateSession(ctx, sessionID, func(gs *domain.GameSession) {
		if gs.CurrentQuestion < index+1 {
			gs.CurrentQuestion = index + 1
		}
	}); err != nil {
		return AdvanceOutcome{}, fmt.Errorf("%w: update session: %v", domain.ErrPersistence, err)
	} else if !ok {
		return AdvanceOutcome{}, domain.ErrSessionNotFound
	}
	return AdvanceOutcome{Question: &question, Index: index}, nil
}

// JoinSession admits a player into a waiting session via its join code. If the
// requested name is taken the player receives the first free numbered variant
// (name, name2, name3, ...); callers compare Player.Name against the request
// to tell the player.
func (s *GameService) JoinSession(ctx context.Context, joinCode, requestedName string) (domain.GameSession, domain.Player, error) {
	sessionID, ok, err := s.store.SessionIDByJoinCode(ctx, joinCode)
	if err != nil {
		return domain.GameSession{}, domain.Player{}, fmt.Errorf("%w: resolve join code: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return domain.GameSession{}, domain.Player{}, domain.ErrInvalidJoinCode
	}

	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return domain.GameSession{}, domain.Player{}, err
	}
	if session.Status != domain.StatusWaiting {
		return domain.GameSession{}, domain.Player{}, domain.ErrGameAlreadyStarted
	}

	players, err := s.store.GetSessionPlayers(ctx, sessionID)
	if err != nil {
		return domain.GameSession{}, domain.Player{}, fmt.Errorf("%w: get players: %v", domain.ErrPersistence, err)
	}

	player := domain.Player{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      resolveName(requestedName, players),
		Online:    true,
		JoinedAt:  s.now(),
	}
	if err := s.store.SavePlayer(ctx, sessionID, player); err != nil {
		return domain.GameSession{}, domain.Player{}, fmt.Errorf("%w: save player: %v", domain.ErrPersistence, err)
	}
	return session, player, nil
}

// resolveName dedupes a display name with an incrementing numeric suffix.
func resolveName(requested string, players []domain.Player) string {
	taken := make(map[string]struct{}, len(players))
	for _, p := range players {
		taken[p.Name] = struct{}{}
	}
	if _, ok := taken[requested]; !ok {
		return requested
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s%d", requested, i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// SetPlayerOnline flips a player's online flag, used by the transport on
// connect and disconnect.
func (s *GameService) SetPlayerOnline(ctx context.Context, sessionID, playerID string, online bool) (domain.Player, error) {
	player, ok, err := s.store.UpdatePlayer(ctx, sessionID, playerID, func(p *domain.Player) {
		p.Online = online
	})
	if err != nil {
		return domain.Player{}, fmt.Errorf("%w: update player: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

// SubmitAnswer validates a submission, ranks it among the question's correct
// answers by submission time, and credits the derived points.
//
// The rank computation reads the roster without a transactional guard: two
// near-simultaneous correct submissions may each rank against a snapshot that
// misses the other. Ranking is best-effort by design.
func (s *GameService) SubmitAnswer(ctx context.Context, sessionID, playerID, questionID string, selectedChoice int, timeToAnswerMs int64) (domain.AnswerOutcome, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if session.Status != domain.StatusActive {
		return domain.AnswerOutcome{}, domain.ErrInvalidState
	}

	question, ok := session.QuestionAt(questionID)
	if !ok {
		return domain.AnswerOutcome{}, domain.ErrQuestionNotFound
	}

	player, ok, err := s.store.GetPlayer(ctx, sessionID, playerID)
	if err != nil {
		return domain.AnswerOutcome{}, fmt.Errorf("%w: get player: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return domain.AnswerOutcome{}, domain.ErrPlayerNotFound
	}
	if _, answered := player.AnswerFor(questionID); answered {
		return domain.AnswerOutcome{}, domain.ErrDuplicateAnswer
	}
	if selectedChoice < 0 || selectedChoice >= len(question.Choices) {
		return domain.AnswerOutcome{}, domain.ErrInvalidChoice
	}

	submittedAt := s.now()
	correct := selectedChoice == question.CorrectAnswer

	outcome := domain.AnswerOutcome{QuestionID: questionID, Correct: correct}
	if correct {
		rank, totalCorrect, err := s.rankSubmission(ctx, sessionID, playerID, questionID, submittedAt)
		if err != nil {
			return domain.AnswerOutcome{}, err
		}
		outcome.Rank = rank
		outcome.TotalCorrect = totalCorrect
		outcome.Points = scoreForRank(question.BasePoints(), rank, totalCorrect)
	}

	answer := domain.PlayerAnswer{
		QuestionID:     questionID,
		SelectedChoice: selectedChoice,
		TimeToAnswerMs: timeToAnswerMs,
		Correct:        correct,
		Points:         outcome.Points,
		SubmittedAt:    submittedAt,
	}
	updated, ok, err := s.store.UpdatePlayer(ctx, sessionID, playerID, func(p *domain.Player) {
		p.Answers = append(p.Answers, answer)
		p.Score += answer.Points
	})
	if err != nil {
		return domain.AnswerOutcome{}, fmt.Errorf("%w: update player: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return domain.AnswerOutcome{}, domain.ErrPlayerNotFound
	}
	outcome.TotalScore = updated.Score
	return outcome, nil
}

// rankSubmission orders every recorded correct answer for the question plus
// the current submission by submission time and returns the current
// submission's 1-based position and the set size.
func (s *GameService) rankSubmission(ctx context.Context, sessionID, playerID, questionID string, submittedAt time.Time) (int, int, error) {
	players, err := s.store.GetSessionPlayers(ctx, sessionID)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: get players: %v", domain.ErrPersistence, err)
	}

	type timed struct {
		playerID    string
		submittedAt time.Time
	}
	entries := []timed{}
	for _, p := range players {
		if p.ID == playerID {
			continue
		}
		if a, ok := p.AnswerFor(questionID); ok && a.Correct {
			entries = append(entries, timed{playerID: p.ID, submittedAt: a.SubmittedAt})
		}
	}
	entries = append(entries, timed{playerID: playerID, submittedAt: submittedAt})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].submittedAt.Before(entries[j].submittedAt)
	})

	rank := len(entries)
	for i, e := range entries {
		if e.playerID == playerID {
			rank = i + 1
			break
		}
	}
	return rank, len(entries), nil
}

// RevealOutcome carries the reveal broadcast payload for the last presented
// question.
type RevealOutcome struct {
	QuestionID    string              `json:"questionId"`
	Index         int                 `json:"index"`
	CorrectAnswer int                 `json:"correctAnswer"`
	Stat          domain.QuestionStat `json:"stat"`
}

// RevealAnswer exposes the correct choice and live answer counts for the most
// recently presented question. Host-only.
func (s *GameService) RevealAnswer(ctx context.Context, sessionID, hostID string) (RevealOutcome, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return RevealOutcome{}, err
	}
	if session.HostID != hostID {
		return RevealOutcome{}, domain.ErrUnauthorized
	}
	if session.Status != domain.StatusActive || session.CurrentQuestion == 0 {
		return RevealOutcome{}, domain.ErrInvalidState
	}

	index := session.CurrentQuestion - 1
	question := session.Quiz.Questions[index]

	players, err := s.store.GetSessionPlayers(ctx, sessionID)
	if err != nil {
		return RevealOutcome{}, fmt.Errorf("%w: get players: %v", domain.ErrPersistence, err)
	}
	return RevealOutcome{
		QuestionID:    question.ID,
		Index:         index,
		CorrectAnswer: question.CorrectAnswer,
		Stat:          questionStat(question.ID, players),
	}, nil
}
