package app

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"quizparty-service/internal/domain"
)

const (
	joinCodeLength   = 6
	joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	joinCodeAttempts = 10
)

// randomJoinCode draws a 6-character uppercase alphanumeric code. The
// top-level rand source is safe for concurrent creates.
func randomJoinCode() string {
	var b strings.Builder
	b.Grow(joinCodeLength)
	for i := 0; i < joinCodeLength; i++ {
		b.WriteByte(joinCodeAlphabet[rand.Intn(len(joinCodeAlphabet))])
	}
	return b.String()
}

// allocateJoinCode generates and reserves a unique code for sessionID. The
// reserve is an atomic claim in the store, so two creates racing on the same
// code resolve at write time; the loser simply draws again, up to 10 attempts.
func (s *GameService) allocateJoinCode(ctx context.Context, sessionID string) (string, error) {
	for i := 0; i < joinCodeAttempts; i++ {
		code := randomJoinCode()
		claimed, err := s.store.ReserveJoinCode(ctx, code, sessionID)
		if err != nil {
			return "", fmt.Errorf("reserve join code: %w", err)
		}
		if claimed {
			return code, nil
		}
	}
	return "", domain.ErrCodeAllocationFailed
}
