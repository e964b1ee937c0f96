package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"talent-chat/contract"
	"talent-chat/domain"
	"talent-chat/errors"
	"talent-chat/mocks"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const secret = "a_test_secret_long_enough_for_hs256"

func TestSigner_RoundTrip(t *testing.T) {
	req := require.New(t)
	signer := NewSigner(secret, time.Hour)

	token, err := signer.GenerateToken("user-1", []string{"administrator"})
	req.NoError(err)

	claims, err := signer.ValidateToken(token)
	req.NoError(err)
	req.Equal("user-1", claims.UserID)
	req.Equal([]string{"administrator"}, claims.Roles)
	req.Equal(issuer, claims.Issuer)
}

func TestSigner_Rejects(t *testing.T) {
	req := require.New(t)
	signer := NewSigner(secret, time.Hour)

	t.Run("other secret", func(t *testing.T) {
		token, err := NewSigner("another_secret_another_secret_!!", time.Hour).GenerateToken("u", nil)
		req.NoError(err)
		_, err = signer.ValidateToken(token)
		req.Error(err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := NewSigner(secret, -time.Minute).GenerateToken("u", nil)
		req.NoError(err)
		_, err = signer.ValidateToken(token)
		req.Error(err)
	})

	t.Run("missing user", func(t *testing.T) {
		token, err := signer.GenerateToken("", nil)
		req.NoError(err)
		_, err = signer.ValidateToken(token)
		req.Error(err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := signer.ValidateToken("not.a.jwt")
		req.Error(err)
	})
}

func TestTokenResolver_Resolve(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserDirectory(ctrl)
	signer := NewSigner(secret, time.Hour)
	resolver := NewTokenResolver(signer, users)
	ctx := context.Background()

	t.Run("should resolve a known user with token roles", func(t *testing.T) {
		req := require.New(t)
		token, err := signer.GenerateToken("u1", []string{"administrator"})
		req.NoError(err)
		users.EXPECT().User(ctx, domain.UserID("u1")).Return(domain.Identity{UserID: "u1", DisplayName: "Ada Lovelace"}, nil)

		identity, err := resolver.Resolve(ctx, contract.Credentials{Token: token})

		req.NoError(err)
		req.Equal(domain.Identity{UserID: "u1", DisplayName: "Ada Lovelace", Roles: []string{"administrator"}}, identity)
		req.True(identity.IsAdministrator())
	})

	t.Run("should refuse missing or bad tokens", func(t *testing.T) {
		req := require.New(t)
		_, err := resolver.Resolve(ctx, contract.Credentials{})
		req.ErrorIs(err, errors.ErrUnauthorized)

		_, err = resolver.Resolve(ctx, contract.Credentials{Token: "forged"})
		req.ErrorIs(err, errors.ErrUnauthorized)
	})

	t.Run("should refuse tokens of unknown users", func(t *testing.T) {
		req := require.New(t)
		token, err := signer.GenerateToken("ghost", nil)
		req.NoError(err)
		users.EXPECT().User(ctx, domain.UserID("ghost")).Return(domain.Identity{}, errors.ErrNotFound)

		_, err = resolver.Resolve(ctx, contract.Credentials{Token: token})
		req.ErrorIs(err, errors.ErrUnauthorized)
	})

	t.Run("should report a failing directory as is", func(t *testing.T) {
		req := require.New(t)
		token, err := signer.GenerateToken("u2", nil)
		req.NoError(err)
		users.EXPECT().User(ctx, domain.UserID("u2")).Return(domain.Identity{}, errors.ErrStoreUnavailable)

		_, err = resolver.Resolve(ctx, contract.Credentials{Token: token})
		req.ErrorIs(err, errors.ErrStoreUnavailable)
		req.NotErrorIs(err, errors.ErrUnauthorized)
	})
}

func TestCredentialsFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		build func(r *http.Request)
		want  string
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer h-token") }, "h-token"},
		{"query parameter", func(r *http.Request) { r.URL.RawQuery = "token=q-token" }, "q-token"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: "c-token"}) }, "c-token"},
		{"header wins", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer h-token")
			r.URL.RawQuery = "token=q-token"
		}, "h-token"},
		{"other scheme ignored", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, ""},
		{"nothing", func(r *http.Request) {}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/room-1", nil)
			tt.build(r)
			require.Equal(t, tt.want, CredentialsFromRequest(r).Token)
		})
	}
}
