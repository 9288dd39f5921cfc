package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

var secret = []byte("super-secret-key")

func TestCheckToken(t *testing.T) {
	valid, err := BuildToken("backoffice", secret, time.Hour, time.Now())
	require.NoError(t, err)
	expired, err := BuildToken("backoffice", secret, time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	otherKey, err := BuildToken("backoffice", []byte("another-key"), time.Hour, time.Now())
	require.NoError(t, err)
	noCaller, err := BuildToken("", secret, time.Hour, time.Now())
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{CallerID: "x"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		wantErr  error
		name     string
		token    string
		wantCall string
	}{
		{nil, "valid", valid, "backoffice"},
		{serviceerrs.ErrTokenExpired, "expired", expired, ""},
		{jwt.ErrTokenSignatureInvalid, "wrong key", otherKey, ""},
		{ErrNoToken, "no caller", noCaller, ""},
		{jwt.ErrTokenSignatureInvalid, "alg none", none, ""},
		{jwt.ErrTokenMalformed, "garbage", "not-a-token", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := CheckToken(tt.token, secret)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCall, claims.CallerID)
		})
	}
}

func TestFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"bearer", "Bearer abc.def", "abc.def", false},
		{"empty", "", "", true},
		{"basic", "Basic dXNlcg==", "", true},
		{"bearer without token", "Bearer   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromHeader(tt.header)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNoToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
