package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionResolver loads subjects from Redis sessions written by the identity
// service. The token is read from a bearer Authorization header or a cookie.
type SessionResolver struct {
	client     *redis.Client
	cookieName string
}

type sessionPayload struct {
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// NewSessionResolver constructs a SessionResolver.
func NewSessionResolver(client *redis.Client, cookieName string) *SessionResolver {
	return &SessionResolver{client: client, cookieName: cookieName}
}

// Resolve implements SubjectResolver.
func (sr *SessionResolver) Resolve(ctx context.Context, r *http.Request) (Subject, bool, error) {
	token := sr.token(r)
	if token == "" {
		return Subject{}, false, nil
	}
	payload, err := sr.client.Get(ctx, sr.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Subject{}, false, nil
		}
		return Subject{}, false, err
	}
	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return Subject{}, false, fmt.Errorf("rbac: decode session: %w", err)
	}
	if strings.TrimSpace(stored.UserID) == "" {
		return Subject{}, false, nil
	}
	role, err := ParseRole(stored.Role)
	if err != nil {
		return Subject{}, false, err
	}
	return Subject{
		ID:          strings.TrimSpace(stored.UserID),
		Name:        stored.Name,
		Email:       stored.Email,
		Role:        role,
		Permissions: ParsePermissionSet(stored.Permissions),
	}, true, nil
}

// Issue stores subject under a fresh token and returns the token.
func (sr *SessionResolver) Issue(ctx context.Context, subject Subject, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	payload := sessionPayload{
		UserID:      subject.ID,
		Name:        subject.Name,
		Email:       subject.Email,
		Role:        string(subject.Role),
		Permissions: make([]string, 0, len(subject.Permissions)),
	}
	for _, p := range subject.Permissions.Slice() {
		payload.Permissions = append(payload.Permissions, string(p))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	if err := sr.client.Set(ctx, sr.redisKey(token), data, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Revoke deletes the session for token.
func (sr *SessionResolver) Revoke(ctx context.Context, token string) error {
	if err := sr.client.Del(ctx, sr.redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (sr *SessionResolver) token(r *http.Request) string {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		const prefix = "bearer "
		if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
			return strings.TrimSpace(auth[len(prefix):])
		}
	}
	if sr.cookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(sr.cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func (sr *SessionResolver) redisKey(token string) string {
	return "session:" + token
}
