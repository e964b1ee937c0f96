package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"talent-chat/contract"
	"talent-chat/domain"
	"talent-chat/errors"
)

const (
	tokenQueryParam = "token"
	tokenCookie     = "access_token"
)

// TokenResolver turns a bearer token into an identity. The display name
// comes from the user directory, the roles from the token.
type TokenResolver struct {
	signer *Signer
	users  contract.UserDirectory
}

func NewTokenResolver(signer *Signer, users contract.UserDirectory) *TokenResolver {
	return &TokenResolver{signer: signer, users: users}
}

func (r *TokenResolver) Resolve(ctx context.Context, credentials contract.Credentials) (domain.Identity, error) {
	if credentials.Token == "" {
		return domain.Identity{}, fmt.Errorf("no token: %w", errors.ErrUnauthorized)
	}
	claims, err := r.signer.ValidateToken(credentials.Token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}

	userID := domain.UserID(claims.UserID)
	user, err := r.users.User(ctx, userID)
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		return domain.Identity{}, fmt.Errorf("unknown user %s: %w", userID, errors.ErrUnauthorized)
	case err != nil:
		return domain.Identity{}, err
	}

	return domain.Identity{UserID: userID, DisplayName: user.DisplayName, Roles: claims.Roles}, nil
}

// CredentialsFromRequest reads the token from the Authorization header,
// then the token query parameter, then the access_token cookie.
// Browsers cannot set headers on a websocket handshake, hence the fallbacks.
func CredentialsFromRequest(r *http.Request) contract.Credentials {
	credentials := contract.Credentials{RemoteAddr: r.RemoteAddr}

	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			credentials.Token = strings.TrimSpace(token)
			return credentials
		}
	}
	if token := r.URL.Query().Get(tokenQueryParam); token != "" {
		credentials.Token = token
		return credentials
	}
	if cookie, err := r.Cookie(tokenCookie); err == nil {
		credentials.Token = cookie.Value
	}
	return credentials
}
