package memory

import (
	"context"
	"sort"
	"sync"

	"quizparty-service/internal/domain"
)

// Gateway is an in-process implementation of app.Store, used in tests and
// redis-less development runs. Values are copied on the way in and out so
// callers never share memory with the store.
type Gateway struct {
	mu        sync.RWMutex
	sessions  map[string]domain.GameSession
	players   map[string]map[string]domain.Player // sessionID -> playerID -> player
	joinCodes map[string]string                   // code -> sessionID
	hostSock  map[string]string                   // sessionID -> connID
	sockets   map[string]map[string]string        // sessionID -> playerID -> connID
	finished  map[string]struct{}
	results   map[string]domain.GameResult
}

func NewGateway() *Gateway {
	return &Gateway{
		sessions:  make(map[string]domain.GameSession),
		players:   make(map[string]map[string]domain.Player),
		joinCodes: make(map[string]string),
		hostSock:  make(map[string]string),
		sockets:   make(map[string]map[string]string),
		finished:  make(map[string]struct{}),
		results:   make(map[string]domain.GameResult),
	}
}

func (g *Gateway) SaveSession(_ context.Context, session domain.GameSession) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[session.ID] = copySession(session)
	return nil
}

func (g *Gateway) GetSession(_ context.Context, sessionID string) (domain.GameSession, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	session, ok := g.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, false, nil
	}
	return copySession(session), true, nil
}

func (g *Gateway) UpdateSession(_ context.Context, sessionID string, mutate func(*domain.GameSession)) (domain.GameSession, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	session, ok := g.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, false, nil
	}
	mutate(&session)
	g.sessions[sessionID] = copySession(session)
	return copySession(session), true, nil
}

func (g *Gateway) SavePlayer(_ context.Context, sessionID string, player domain.Player) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	roster, ok := g.players[sessionID]
	if !ok {
		roster = make(map[string]domain.Player)
		g.players[sessionID] = roster
	}
	roster[player.ID] = copyPlayer(player)
	return nil
}

func (g *Gateway) GetPlayer(_ context.Context, sessionID, playerID string) (domain.Player, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	player, ok := g.players[sessionID][playerID]
	if !ok {
		return domain.Player{}, false, nil
	}
	return copyPlayer(player), true, nil
}

func (g *Gateway) GetSessionPlayers(_ context.Context, sessionID string) ([]domain.Player, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	roster := g.players[sessionID]
	players := make([]domain.Player, 0, len(roster))
	for _, p := range roster {
		players = append(players, copyPlayer(p))
	}
	sortPlayersByJoin(players)
	return players, nil
}

func (g *Gateway) UpdatePlayer(_ context.Context, sessionID, playerID string, mutate func(*domain.Player)) (domain.Player, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	player, ok := g.players[sessionID][playerID]
	if !ok {
		return domain.Player{}, false, nil
	}
	mutate(&player)
	g.players[sessionID][playerID] = copyPlayer(player)
	return copyPlayer(player), true, nil
}

func (g *Gateway) RemovePlayer(_ context.Context, sessionID, playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.players[sessionID], playerID)
	return nil
}

func (g *Gateway) ReserveJoinCode(_ context.Context, code, sessionID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, taken := g.joinCodes[code]; taken {
		return false, nil
	}
	g.joinCodes[code] = sessionID
	return true, nil
}

func (g *Gateway) SessionIDByJoinCode(_ context.Context, code string) (string, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	sessionID, ok := g.joinCodes[code]
	return sessionID, ok, nil
}

func (g *Gateway) ReleaseJoinCode(_ context.Context, code string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.joinCodes, code)
	return nil
}

func (g *Gateway) SetHostSocket(_ context.Context, sessionID, connID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hostSock[sessionID] = connID
	return nil
}

func (g *Gateway) HostSocket(_ context.Context, sessionID string) (string, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	connID, ok := g.hostSock[sessionID]
	return connID, ok, nil
}

func (g *Gateway) SetPlayerSocket(_ context.Context, sessionID, playerID, connID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	routes, ok := g.sockets[sessionID]
	if !ok {
		routes = make(map[string]string)
		g.sockets[sessionID] = routes
	}
	routes[playerID] = connID
	return nil
}

func (g *Gateway) PlayerSocket(_ context.Context, sessionID, playerID string) (string, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	connID, ok := g.sockets[sessionID][playerID]
	return connID, ok, nil
}

func (g *Gateway) AllPlayerSockets(_ context.Context, sessionID string) (map[string]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	routes := make(map[string]string, len(g.sockets[sessionID]))
	for playerID, connID := range g.sockets[sessionID] {
		routes[playerID] = connID
	}
	return routes, nil
}

func (g *Gateway) RemoveSocket(_ context.Context, sessionID, connID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hostSock[sessionID] == connID {
		delete(g.hostSock, sessionID)
	}
	for playerID, id := range g.sockets[sessionID] {
		if id == connID {
			delete(g.sockets[sessionID], playerID)
		}
	}
	return nil
}

func (g *Gateway) TryMarkFinished(_ context.Context, sessionID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, done := g.finished[sessionID]; done {
		return false, nil
	}
	g.finished[sessionID] = struct{}{}
	return true, nil
}

func (g *Gateway) SaveGameResult(_ context.Context, result domain.GameResult) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[result.SessionID] = copyResult(result)
	return nil
}

func (g *Gateway) GetGameResult(_ context.Context, sessionID string) (domain.GameResult, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	result, ok := g.results[sessionID]
	if !ok {
		return domain.GameResult{}, false, nil
	}
	return copyResult(result), true, nil
}

func (g *Gateway) RecentGameResults(_ context.Context, limit int) ([]domain.GameResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.listResultsLocked(limit, func(r domain.GameResult) bool { return r.Public }), nil
}

func (g *Gateway) GameResultsByQuiz(_ context.Context, quizID string, limit int) ([]domain.GameResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.listResultsLocked(limit, func(r domain.GameResult) bool { return r.QuizID == quizID }), nil
}

func (g *Gateway) listResultsLocked(limit int, keep func(domain.GameResult) bool) []domain.GameResult {
	results := make([]domain.GameResult, 0, len(g.results))
	for _, r := range g.results {
		if keep(r) {
			results = append(results, copyResult(r))
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CompletedAt.After(results[j].CompletedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func sortPlayersByJoin(players []domain.Player) {
	sort.SliceStable(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID < players[j].ID
	})
}

func copySession(s domain.GameSession) domain.GameSession {
	out := s
	out.Quiz.Questions = append([]domain.Question(nil), s.Quiz.Questions...)
	for i, q := range out.Quiz.Questions {
		out.Quiz.Questions[i].Choices = append([]string(nil), q.Choices...)
	}
	return out
}

func copyPlayer(p domain.Player) domain.Player {
	out := p
	out.Answers = append([]domain.PlayerAnswer(nil), p.Answers...)
	return out
}

func copyResult(r domain.GameResult) domain.GameResult {
	out := r
	out.Leaderboard = append([]domain.LeaderboardEntry(nil), r.Leaderboard...)
	out.QuestionStats = append([]domain.QuestionStat(nil), r.QuestionStats...)
	return out
}
