package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Ticket purposes.
const (
	TicketPasswordReset     = "reset"
	TicketEmailConfirmation = "confirm"
)

// ErrTicketNotFound is returned when a ticket is unknown, expired or already redeemed.
var ErrTicketNotFound = errors.New("ticket not found")

// TokenStore keeps short-lived authentication state: revoked JWT ids, roles
// pinned after a role change, and one-time tickets bound to a user.
type TokenStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	// PinRole records the user's current role. Tokens carrying any other
	// role claim are rejected until ttl elapses.
	PinRole(ctx context.Context, userID uuid.UUID, role string, ttl time.Duration) error
	// PinnedRole returns "" when no role is pinned.
	PinnedRole(ctx context.Context, userID uuid.UUID) (string, error)
	IssueTicket(ctx context.Context, purpose string, userID uuid.UUID, ttl time.Duration) (string, error)
	RedeemTicket(ctx context.Context, purpose, ticket string) (uuid.UUID, error)
}

type redisTokenStore struct{ rdb *redis.Client }

func NewTokenStore(rdb *redis.Client) TokenStore {
	return &redisTokenStore{rdb: rdb}
}

func revokedKey(tokenID string) string { return "revoked_token:" + tokenID }

func pinnedRoleKey(userID uuid.UUID) string { return "user_role:" + userID.String() }

func ticketKey(purpose, ticket string) string { return "ticket:" + purpose + ":" + ticket }

func (s *redisTokenStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, revokedKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *redisTokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

func (s *redisTokenStore) PinRole(ctx context.Context, userID uuid.UUID, role string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, pinnedRoleKey(userID), role, ttl).Err(); err != nil {
		return fmt.Errorf("pin role: %w", err)
	}
	return nil
}

func (s *redisTokenStore) PinnedRole(ctx context.Context, userID uuid.UUID) (string, error) {
	role, err := s.rdb.Get(ctx, pinnedRoleKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("get pinned role: %w", err)
	}
	return role, nil
}

func (s *redisTokenStore) IssueTicket(ctx context.Context, purpose string, userID uuid.UUID, ttl time.Duration) (string, error) {
	ticket := uuid.NewString()
	if err := s.rdb.Set(ctx, ticketKey(purpose, ticket), userID.String(), ttl).Err(); err != nil {
		return "", fmt.Errorf("issue ticket: %w", err)
	}
	return ticket, nil
}

// RedeemTicket consumes the ticket; a second call with the same ticket fails.
func (s *redisTokenStore) RedeemTicket(ctx context.Context, purpose, ticket string) (uuid.UUID, error) {
	raw, err := s.rdb.GetDel(ctx, ticketKey(purpose, ticket)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrTicketNotFound
		}
		return uuid.Nil, fmt.Errorf("redeem ticket: %w", err)
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse ticket owner: %w", err)
	}
	return userID, nil
}
