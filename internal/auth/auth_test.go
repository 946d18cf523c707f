package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("s3cret", 0)
	require.NoError(t, err)

	token, err := issuer.Issue(&User{ID: "u-1", Email: "yard@example.com"})
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.ID)
	assert.Equal(t, "yard@example.com", claims.Email)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer, err := NewTokenIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	token, err := issuer.Issue(&User{ID: "u-1"})
	require.NoError(t, err)

	other, err := NewTokenIssuer("different", time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	_, err = issuer.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ID: "u-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")

	_, err = NewTokenIssuer("", time.Hour)
	assert.Error(t, err)
}

func TestStaticProvider(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	p := NewStaticProvider([]StaticUser{{ID: "admin", Email: "Admin@Example.com", PasswordHash: string(hash)}})
	ctx := context.Background()

	u, err := p.Authenticate(ctx, "admin@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.ID)

	_, err = p.Authenticate(ctx, "admin@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = p.Authenticate(ctx, "nobody@example.com", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSupabaseProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "correct" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"sb","user":{"id":"sb-user","email":"` + body["email"] + `"}}`))
	}))
	defer srv.Close()

	p, err := NewSupabaseProvider(srv.URL+"/", "anon", time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	u, err := p.Authenticate(ctx, "yard@example.com", "correct")
	require.NoError(t, err)
	assert.Equal(t, &User{ID: "sb-user", Email: "yard@example.com"}, u)

	_, err = p.Authenticate(ctx, "yard@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSupabaseProvider_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p, err := NewSupabaseProvider(srv.URL, "anon", time.Second)
	require.NoError(t, err)
	_, err = p.Authenticate(context.Background(), "a@b.c", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	issuer, err := NewTokenIssuer("k", time.Hour)
	require.NoError(t, err)
	svc := NewService(NewStaticProvider([]StaticUser{{ID: "1", Email: "a@b.c", PasswordHash: string(hash)}}), issuer)

	token, user, err := svc.Login(context.Background(), " a@b.c ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "1", user.ID)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", claims.Email)

	_, _, err = svc.Login(context.Background(), "", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
