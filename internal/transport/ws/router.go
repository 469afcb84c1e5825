package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"quizparty-service/internal/app"
	"quizparty-service/internal/domain"
)

// Router dispatches inbound protocol messages to handlers and fans outbound
// messages back out through the connection registry. Messages from one
// connection are processed in arrival order; connections never wait on each
// other.
type Router struct {
	service  *app.GameService
	store    app.Store
	registry *Registry
}

func NewRouter(service *app.GameService, store app.Store, registry *Registry) *Router {
	return &Router{service: service, store: store, registry: registry}
}

// Dispatch routes one inbound envelope. The switch covers the complete
// inbound catalog; anything else is answered with an error to the sender
// only.
func (r *Router) Dispatch(ctx context.Context, c *Client, env Envelope) {
	switch env.Type {
	case TypeHostJoin:
		r.handleHostJoin(ctx, c, env)
	case TypePlayerJoin:
		r.handlePlayerJoin(ctx, c, env)
	case TypeStartGame:
		r.handleStartGame(ctx, c)
	case TypeNextQuestion:
		r.handleNextQuestion(ctx, c)
	case TypeRevealAnswer:
		r.handleRevealAnswer(ctx, c)
	case TypeEndGame:
		r.handleEndGame(ctx, c)
	case TypeSubmitAnswer:
		r.handleSubmitAnswer(ctx, c, env)
	case TypeHeartbeat:
		// Application-level pong from the client; the read deadline was
		// already refreshed by the read loop.
	default:
		r.replyError(c, domain.ErrUnknownMessageType, env.Type)
	}
}

func (r *Router) handleHostJoin(ctx context.Context, c *Client, env Envelope) {
	var content hostJoinContent
	if err := json.Unmarshal(env.Content, &content); err != nil {
		r.replyError(c, fmt.Errorf("malformed %s content", TypeHostJoin), err.Error())
		return
	}

	session, err := r.service.Session(ctx, content.SessionID)
	if err != nil {
		r.replyError(c, err, "")
		return
	}
	if session.HostID != content.HostID {
		r.replyError(c, domain.ErrUnauthorized, "")
		return
	}

	r.registry.Register(c, Route{
		SessionID: session.ID,
		PlayerID:  content.HostID,
		Role:      domain.RoleHost,
	})
	if err := r.store.SetHostSocket(ctx, session.ID, c.ID); err != nil {
		log.Printf("ws: persist host socket: %v", err)
	}
	r.sendLeaderboard(ctx, session.ID, c)
}

func (r *Router) handlePlayerJoin(ctx context.Context, c *Client, env Envelope) {
	var content playerJoinContent
	if err := json.Unmarshal(env.Content, &content); err != nil {
		r.replyError(c, fmt.Errorf("malformed %s content", TypePlayerJoin), err.Error())
		return
	}

	session, player, err := r.service.JoinSession(ctx, content.JoinCode, content.Name)
	if err != nil {
		r.replyError(c, err, "")
		return
	}

	r.registry.Register(c, Route{
		SessionID: session.ID,
		PlayerID:  player.ID,
		Role:      domain.RolePlayer,
	})
	if err := r.store.SetPlayerSocket(ctx, session.ID, player.ID, c.ID); err != nil {
		log.Printf("ws: persist player socket: %v", err)
	}

	joined := playerJoinedContent{
		PlayerID:  player.ID,
		Name:      player.Name,
		Score:     player.Score,
		QuizTitle: session.Quiz.Title,
	}
	if player.Name != content.Name {
		// The requested name was taken; tell the player what they got.
		joined.RequestedName = content.Name
	}
	reply := newEnvelope(TypePlayerJoined, joined, session.ID)
	reply.PlayerID = player.ID
	c.Send(reply)

	joined.RequestedName = ""
	r.broadcast(session.ID, newEnvelope(TypePlayerJoined, joined, session.ID), c)
}

func (r *Router) handleStartGame(ctx context.Context, c *Client) {
	route, ok := r.hostRoute(c)
	if !ok {
		return
	}
	session, err := r.service.StartSession(ctx, route.SessionID, route.PlayerID)
	if err != nil {
		r.replyError(c, err, "")
		return
	}
	content := gameStartedContent{QuestionCount: len(session.Quiz.Questions)}
	if session.StartedAt != nil {
		content.StartedAt = session.StartedAt.UnixMilli()
	}
	r.broadcast(session.ID, newEnvelope(TypeGameStarted, content, session.ID), nil)
}

func (r *Router) handleNextQuestion(ctx context.Context, c *Client) {
	route, ok := r.hostRoute(c)
	if !ok {
		return
	}
	outcome, err := r.service.NextQuestion(ctx, route.SessionID, route.PlayerID)
	if err != nil {
		r.replyError(c, err, "")
		return
	}

	if outcome.Finished {
		r.broadcast(route.SessionID, newEnvelope(TypeGameEnded, outcome.Result, route.SessionID), nil)
		return
	}

	q := outcome.Question
	r.broadcast(route.SessionID, newEnvelope(TypeQuestionStarted, questionStartedContent{
		Index:     outcome.Index,
		ID:        q.ID,
		Prompt:    q.Prompt,
		Choices:   q.Choices,
		TimeLimit: q.TimeLimit,
		Points:    q.BasePoints(),
	}, route.SessionID), nil)
}

func (r *Router) handleRevealAnswer(ctx context.Context, c *Client) {
	route, ok := r.hostRoute(c)
	if !ok {
		return
	}
	reveal, err := r.service.RevealAnswer(ctx, route.SessionID, route.PlayerID)
	if err != nil {
		r.replyError(c, err, "")
		return
	}
	r.broadcast(route.SessionID, newEnvelope(TypeAnswerRevealed, reveal, route.SessionID), nil)
	r.broadcastLeaderboard(ctx, route.SessionID)
}

func (r *Router) handleEndGame(ctx context.Context, c *Client) {
	route, ok := r.hostRoute(c)
	if !ok {
		return
	}
	result, err := r.service.FinishSession(ctx, route.SessionID)
	if err != nil {
		r.replyError(c, err, "")
		return
	}
	r.broadcast(route.SessionID, newEnvelope(TypeGameEnded, result, route.SessionID), nil)
}

func (r *Router) handleSubmitAnswer(ctx context.Context, c *Client, env Envelope) {
	route, ok := r.registry.Route(c)
	if !ok || route.Role != domain.RolePlayer {
		r.replyError(c, domain.ErrPlayerNotFound, "join a session before answering")
		return
	}
	var content submitAnswerContent
	if err := json.Unmarshal(env.Content, &content); err != nil {
		r.replyError(c, fmt.Errorf("malformed %s content", TypeSubmitAnswer), err.Error())
		return
	}

	outcome, err := r.service.SubmitAnswer(ctx, route.SessionID, route.PlayerID, content.QuestionID, content.SelectedChoice, content.TimeToAnswerMs)
	if err != nil {
		r.replyError(c, err, "")
		return
	}

	reply := newEnvelope(TypeAnswerResult, outcome, route.SessionID)
	reply.PlayerID = route.PlayerID
	c.Send(reply)
	r.sendHostLeaderboard(ctx, route.SessionID)
}

// Disconnect tears down every registry entry and persisted socket route for
// the connection and tells the rest of the session the player left.
func (r *Router) Disconnect(ctx context.Context, c *Client) {
	defer c.Close()

	route, ok := r.registry.Unregister(c)
	if !ok {
		return
	}
	if err := r.store.RemoveSocket(ctx, route.SessionID, c.ID); err != nil {
		log.Printf("ws: remove socket route: %v", err)
	}
	if route.Role != domain.RolePlayer {
		return
	}

	player, err := r.service.SetPlayerOnline(ctx, route.SessionID, route.PlayerID, false)
	if err != nil {
		if !errors.Is(err, domain.ErrPlayerNotFound) {
			log.Printf("ws: mark player offline: %v", err)
		}
		return
	}
	r.broadcast(route.SessionID, newEnvelope(TypePlayerLeft, playerLeftContent{
		PlayerID: player.ID,
		Name:     player.Name,
	}, route.SessionID), nil)
}

// hostRoute resolves the sender's route and rejects non-hosts.
func (r *Router) hostRoute(c *Client) (Route, bool) {
	route, ok := r.registry.Route(c)
	if !ok || route.Role != domain.RoleHost {
		r.replyError(c, domain.ErrUnauthorized, "host_join first")
		return Route{}, false
	}
	return route, true
}

func (r *Router) broadcast(sessionID string, env Envelope, exclude *Client) {
	for _, client := range r.registry.SessionClients(sessionID, exclude) {
		client.Send(env)
	}
}

func (r *Router) sendHostLeaderboard(ctx context.Context, sessionID string) {
	entries, err := r.service.Leaderboard(ctx, sessionID)
	if err != nil {
		log.Printf("ws: leaderboard for host: %v", err)
		return
	}
	env := newEnvelope(TypeLeaderboardUpdate, leaderboardContent{Entries: entries}, sessionID)
	for _, host := range r.registry.HostClients(sessionID) {
		host.Send(env)
	}
}

func (r *Router) broadcastLeaderboard(ctx context.Context, sessionID string) {
	entries, err := r.service.Leaderboard(ctx, sessionID)
	if err != nil {
		log.Printf("ws: leaderboard broadcast: %v", err)
		return
	}
	r.broadcast(sessionID, newEnvelope(TypeLeaderboardUpdate, leaderboardContent{Entries: entries}, sessionID), nil)
}

func (r *Router) sendLeaderboard(ctx context.Context, sessionID string, c *Client) {
	entries, err := r.service.Leaderboard(ctx, sessionID)
	if err != nil {
		r.replyError(c, err, "")
		return
	}
	c.Send(newEnvelope(TypeLeaderboardUpdate, leaderboardContent{Entries: entries}, sessionID))
}

// replyError converts any failure into an error message to the sender only;
// nothing here crashes the connection.
func (r *Router) replyError(c *Client, err error, details string) {
	c.Send(newEnvelope(TypeError, errorContent{
		Message: err.Error(),
		Code:    domain.ErrorCode(err),
		Details: details,
	}, ""))
}
