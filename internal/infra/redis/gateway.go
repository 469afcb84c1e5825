package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"quizparty-service/internal/domain"
)

// Gateway implements app.Store on Redis. Key layout:
//
//	session:{id}              session document (JSON)
//	session:{id}:players      hash playerID -> player document (JSON)
//	session:{id}:host_socket  host connection id
//	session:{id}:sockets      hash playerID -> connection id
//	session:{id}:finished     one-shot finish guard (SETNX)
//	joincode:{code}           session id (SETNX reserve)
//	result:{sessionID}        game result document (JSON)
//	results:recent            zset sessionID scored by completion time (public only)
//	results:quiz:{quizID}     zset sessionID scored by completion time
//
// Every session-scoped key carries the configured TTL so abandoned sessions
// are reclaimed by expiry.
type Gateway struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGateway(client *redis.Client, ttl time.Duration) *Gateway {
	return &Gateway{client: client, ttl: ttl}
}

func (g *Gateway) SaveSession(ctx context.Context, session domain.GameSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return g.client.Set(ctx, sessionKey(session.ID), data, g.ttl).Err()
}

func (g *Gateway) GetSession(ctx context.Context, sessionID string) (domain.GameSession, bool, error) {
	data, err := g.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return domain.GameSession{}, false, nil
	}
	if err != nil {
		return domain.GameSession{}, false, fmt.Errorf("get session: %w", err)
	}
	var session domain.GameSession
	if err := json.Unmarshal(data, &session); err != nil {
		return domain.GameSession{}, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, true, nil
}

// UpdateSession is a plain read-modify-write; concurrent updates may
// interleave, which the service layer accepts.
func (g *Gateway) UpdateSession(ctx context.Context, sessionID string, mutate func(*domain.GameSession)) (domain.GameSession, bool, error) {
	session, ok, err := g.GetSession(ctx, sessionID)
	if err != nil || !ok {
		return domain.GameSession{}, ok, err
	}
	mutate(&session)
	if err := g.SaveSession(ctx, session); err != nil {
		return domain.GameSession{}, false, err
	}
	return session, true, nil
}

func (g *Gateway) SavePlayer(ctx context.Context, sessionID string, player domain.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("marshal player: %w", err)
	}
	key := playersKey(sessionID)
	pipe := g.client.Pipeline()
	pipe.HSet(ctx, key, player.ID, data)
	pipe.Expire(ctx, key, g.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (g *Gateway) GetPlayer(ctx context.Context, sessionID, playerID string) (domain.Player, bool, error) {
	data, err := g.client.HGet(ctx, playersKey(sessionID), playerID).Bytes()
	if err == redis.Nil {
		return domain.Player{}, false, nil
	}
	if err != nil {
		return domain.Player{}, false, fmt.Errorf("get player: %w", err)
	}
	var player domain.Player
	if err := json.Unmarshal(data, &player); err != nil {
		return domain.Player{}, false, fmt.Errorf("unmarshal player: %w", err)
	}
	return player, true, nil
}

func (g *Gateway) GetSessionPlayers(ctx context.Context, sessionID string) ([]domain.Player, error) {
	raw, err := g.client.HGetAll(ctx, playersKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get players: %w", err)
	}
	players := make([]domain.Player, 0, len(raw))
	for _, data := range raw {
		var player domain.Player
		if err := json.Unmarshal([]byte(data), &player); err != nil {
			return nil, fmt.Errorf("unmarshal player: %w", err)
		}
		players = append(players, player)
	}
	// Hash field order is arbitrary; the roster contract is join order.
	sort.SliceStable(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID < players[j].ID
	})
	return players, nil
}

func (g *Gateway) UpdatePlayer(ctx context.Context, sessionID, playerID string, mutate func(*domain.Player)) (domain.Player, bool, error) {
	player, ok, err := g.GetPlayer(ctx, sessionID, playerID)
	if err != nil || !ok {
		return domain.Player{}, ok, err
	}
	mutate(&player)
	if err := g.SavePlayer(ctx, sessionID, player); err != nil {
		return domain.Player{}, false, err
	}
	return player, true, nil
}

func (g *Gateway) RemovePlayer(ctx context.Context, sessionID, playerID string) error {
	return g.client.HDel(ctx, playersKey(sessionID), playerID).Err()
}

func (g *Gateway) ReserveJoinCode(ctx context.Context, code, sessionID string) (bool, error) {
	claimed, err := g.client.SetNX(ctx, joinCodeKey(code), sessionID, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve join code: %w", err)
	}
	return claimed, nil
}

func (g *Gateway) SessionIDByJoinCode(ctx context.Context, code string) (string, bool, error) {
	sessionID, err := g.client.Get(ctx, joinCodeKey(code)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve join code: %w", err)
	}
	return sessionID, true, nil
}

func (g *Gateway) ReleaseJoinCode(ctx context.Context, code string) error {
	return g.client.Del(ctx, joinCodeKey(code)).Err()
}

func (g *Gateway) SetHostSocket(ctx context.Context, sessionID, connID string) error {
	return g.client.Set(ctx, hostSocketKey(sessionID), connID, g.ttl).Err()
}

func (g *Gateway) HostSocket(ctx context.Context, sessionID string) (string, bool, error) {
	connID, err := g.client.Get(ctx, hostSocketKey(sessionID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get host socket: %w", err)
	}
	return connID, true, nil
}

func (g *Gateway) SetPlayerSocket(ctx context.Context, sessionID, playerID, connID string) error {
	key := socketsKey(sessionID)
	pipe := g.client.Pipeline()
	pipe.HSet(ctx, key, playerID, connID)
	pipe.Expire(ctx, key, g.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (g *Gateway) PlayerSocket(ctx context.Context, sessionID, playerID string) (string, bool, error) {
	connID, err := g.client.HGet(ctx, socketsKey(sessionID), playerID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get player socket: %w", err)
	}
	return connID, true, nil
}

func (g *Gateway) AllPlayerSockets(ctx context.Context, sessionID string) (map[string]string, error) {
	routes, err := g.client.HGetAll(ctx, socketsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get sockets: %w", err)
	}
	return routes, nil
}

func (g *Gateway) RemoveSocket(ctx context.Context, sessionID, connID string) error {
	host, err := g.client.Get(ctx, hostSocketKey(sessionID)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("get host socket: %w", err)
	}
	if err == nil && host == connID {
		if err := g.client.Del(ctx, hostSocketKey(sessionID)).Err(); err != nil {
			return fmt.Errorf("del host socket: %w", err)
		}
	}

	routes, err := g.client.HGetAll(ctx, socketsKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("get sockets: %w", err)
	}
	for playerID, id := range routes {
		if id == connID {
			if err := g.client.HDel(ctx, socketsKey(sessionID), playerID).Err(); err != nil {
				return fmt.Errorf("del player socket: %w", err)
			}
		}
	}
	return nil
}

func (g *Gateway) TryMarkFinished(ctx context.Context, sessionID string) (bool, error) {
	first, err := g.client.SetNX(ctx, finishedKey(sessionID), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("finish guard: %w", err)
	}
	return first, nil
}

func (g *Gateway) SaveGameResult(ctx context.Context, result domain.GameResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	score := float64(result.CompletedAt.UnixMilli())
	pipe := g.client.Pipeline()
	pipe.Set(ctx, resultKey(result.SessionID), data, 0)
	if result.Public {
		pipe.ZAdd(ctx, recentResultsKey, redis.Z{Score: score, Member: result.SessionID})
	}
	pipe.ZAdd(ctx, quizResultsKey(result.QuizID), redis.Z{Score: score, Member: result.SessionID})
	_, err = pipe.Exec(ctx)
	return err
}

func (g *Gateway) GetGameResult(ctx context.Context, sessionID string) (domain.GameResult, bool, error) {
	data, err := g.client.Get(ctx, resultKey(sessionID)).Bytes()
	if err == redis.Nil {
		return domain.GameResult{}, false, nil
	}
	if err != nil {
		return domain.GameResult{}, false, fmt.Errorf("get result: %w", err)
	}
	var result domain.GameResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.GameResult{}, false, fmt.Errorf("unmarshal result: %w", err)
	}
	return result, true, nil
}

func (g *Gateway) RecentGameResults(ctx context.Context, limit int) ([]domain.GameResult, error) {
	return g.resultsFromIndex(ctx, recentResultsKey, limit)
}

func (g *Gateway) GameResultsByQuiz(ctx context.Context, quizID string, limit int) ([]domain.GameResult, error) {
	return g.resultsFromIndex(ctx, quizResultsKey(quizID), limit)
}

func (g *Gateway) resultsFromIndex(ctx context.Context, key string, limit int) ([]domain.GameResult, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := g.client.ZRevRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	results := make([]domain.GameResult, 0, len(ids))
	for _, id := range ids {
		result, ok, err := g.GetGameResult(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			results = append(results, result)
		}
	}
	return results, nil
}

func sessionKey(id string) string         { return "session:" + id }
func playersKey(id string) string         { return "session:" + id + ":players" }
func hostSocketKey(id string) string      { return "session:" + id + ":host_socket" }
func socketsKey(id string) string         { return "session:" + id + ":sockets" }
func finishedKey(id string) string        { return "session:" + id + ":finished" }
func joinCodeKey(code string) string      { return "joincode:" + code }
func resultKey(sessionID string) string   { return "result:" + sessionID }
func quizResultsKey(quizID string) string { return "results:quiz:" + quizID }

const recentResultsKey = "results:recent"
