package auth

import "context"

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type contextKey string

const UserContextKey contextKey = "user"

func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

func GetUserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(UserContextKey).(*User)
	return user, ok
}

// UserID returns the authenticated user's id, or "" when auth is disabled.
func UserID(ctx context.Context) string {
	if user, ok := GetUserFromContext(ctx); ok {
		return user.ID
	}
	return ""
}
