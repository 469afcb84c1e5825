package app

import (
	"context"
	"fmt"
	"math"
	"sort"

	"quizparty-service/internal/domain"
)

// FinishSession moves the session to finished and builds the game-result
// snapshot exactly once. Both the natural end-of-quiz path and an explicit
// host end race through the same one-shot guard in the store; only the winner
// writes the status and the snapshot, every other caller reads the snapshot
// back. Idempotent from the caller's point of view.
func (s *GameService) FinishSession(ctx context.Context, sessionID string) (domain.GameResult, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return domain.GameResult{}, err
	}

	first, err := s.store.TryMarkFinished(ctx, sessionID)
	if err != nil {
		return domain.GameResult{}, fmt.Errorf("%w: finish guard: %v", domain.ErrPersistence, err)
	}
	if !first {
		result, ok, err := s.store.GetGameResult(ctx, sessionID)
		if err != nil {
			return domain.GameResult{}, fmt.Errorf("%w: get game result: %v", domain.ErrPersistence, err)
		}
		if !ok {
			// The winner holds the guard but has not persisted the snapshot
			// yet (or failed to). Surface it as a snapshot-step failure.
			return domain.GameResult{}, fmt.Errorf("%w: game result snapshot not available", domain.ErrPersistence)
		}
		return result, nil
	}

	finishedAt := s.now()
	updated, ok, err := s.store.UpdateSession(ctx, sessionID, func(gs *domain.GameSession) {
		gs.Status = domain.StatusFinished
		gs.FinishedAt = &finishedAt
	})
	if err != nil {
		return domain.GameResult{}, fmt.Errorf("%w: finish status write: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return domain.GameResult{}, domain.ErrSessionNotFound
	}

	// The join code only maps to non-finished sessions.
	if err := s.store.ReleaseJoinCode(ctx, session.JoinCode); err != nil {
		return domain.GameResult{}, fmt.Errorf("%w: release join code: %v", domain.ErrPersistence, err)
	}

	players, err := s.store.GetSessionPlayers(ctx, sessionID)
	if err != nil {
		return domain.GameResult{}, fmt.Errorf("%w: get players: %v", domain.ErrPersistence, err)
	}

	result := buildGameResult(updated, players)
	if err := s.store.SaveGameResult(ctx, result); err != nil {
		// Status already flipped; the snapshot write failed. Distinguishable
		// by the wrapped step name.
		return domain.GameResult{}, fmt.Errorf("%w: result snapshot write: %v", domain.ErrPersistence, err)
	}
	return result, nil
}

// GameResult returns the persisted snapshot for a finished session.
func (s *GameService) GameResult(ctx context.Context, sessionID string) (domain.GameResult, error) {
	result, ok, err := s.store.GetGameResult(ctx, sessionID)
	if err != nil {
		return domain.GameResult{}, fmt.Errorf("%w: get game result: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return domain.GameResult{}, domain.ErrSessionNotFound
	}
	return result, nil
}

// RecentResults lists public game results by completion time, newest first.
func (s *GameService) RecentResults(ctx context.Context, limit int) ([]domain.GameResult, error) {
	results, err := s.store.RecentGameResults(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list recent results: %v", domain.ErrPersistence, err)
	}
	return results, nil
}

// ResultsByQuiz lists game results for one quiz by completion time, newest first.
func (s *GameService) ResultsByQuiz(ctx context.Context, quizID string, limit int) ([]domain.GameResult, error) {
	results, err := s.store.GameResultsByQuiz(ctx, quizID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list results by quiz: %v", domain.ErrPersistence, err)
	}
	return results, nil
}

// Leaderboard returns current standings: score descending, ties in join
// order, rank assigned by position.
func (s *GameService) Leaderboard(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	players, err := s.store.GetSessionPlayers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: get players: %v", domain.ErrPersistence, err)
	}
	return rankPlayers(players), nil
}

func rankPlayers(players []domain.Player) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			Score:      p.Score,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func buildGameResult(session domain.GameSession, players []domain.Player) domain.GameResult {
	result := domain.GameResult{
		SessionID:     session.ID,
		QuizID:        session.QuizID,
		QuizTitle:     session.Quiz.Title,
		HostID:        session.HostID,
		PlayerCount:   len(players),
		QuestionCount: len(session.Quiz.Questions),
		Leaderboard:   rankPlayers(players),
		Public:        true,
	}
	if session.FinishedAt != nil {
		result.CompletedAt = *session.FinishedAt
		if session.StartedAt != nil {
			result.DurationMs = session.FinishedAt.Sub(*session.StartedAt).Milliseconds()
		}
	}

	if len(players) > 0 {
		total := 0
		for _, p := range players {
			total += p.Score
		}
		result.AverageScore = int(math.Round(float64(total) / float64(len(players))))
	}

	result.QuestionStats = make([]domain.QuestionStat, 0, len(session.Quiz.Questions))
	for _, q := range session.Quiz.Questions {
		result.QuestionStats = append(result.QuestionStats, questionStat(q.ID, players))
	}
	return result
}

func questionStat(questionID string, players []domain.Player) domain.QuestionStat {
	stat := domain.QuestionStat{QuestionID: questionID}
	for _, p := range players {
		if a, ok := p.AnswerFor(questionID); ok {
			stat.TotalAnswers++
			if a.Correct {
				stat.CorrectCount++
			}
		}
	}
	return stat
}
