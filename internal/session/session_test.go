package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kopra/pkg/domain-errors"
	"kopra/pkg/requestcontext"
)

func TestSession_RoundTrip(t *testing.T) {
	svc := NewService("test-signing-key", "kopra", time.Hour)

	token, err := svc.Issue(context.Background(), "majujaya", "member-1", "Anggota")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "majujaya", claims.Subdomain)
	assert.Equal(t, "member-1", claims.MemberID)
	assert.Equal(t, "Anggota", claims.Role)
	assert.Equal(t, "kopra", claims.Issuer)
}

func TestSession_RejectsExpiredToken(t *testing.T) {
	svc := NewService("test-signing-key", "kopra", time.Minute)

	past := requestcontext.WithNow(context.Background(), time.Now().Add(-time.Hour))
	token, err := svc.Issue(past, "majujaya", "member-1", "Anggota")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestSession_RejectsWrongKey(t *testing.T) {
	svc := NewService("test-signing-key", "kopra", time.Hour)
	other := NewService("another-key", "kopra", time.Hour)

	token, err := svc.Issue(context.Background(), "majujaya", "", "")
	require.NoError(t, err)

	_, err = other.Validate(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestSession_RejectsWrongIssuer(t *testing.T) {
	issuing := NewService("test-signing-key", "someone-else", time.Hour)
	validating := NewService("test-signing-key", "kopra", time.Hour)

	token, err := issuing.Issue(context.Background(), "majujaya", "", "")
	require.NoError(t, err)

	_, err = validating.Validate(token)
	require.Error(t, err)
}

func TestSession_RejectsEmptySubdomain(t *testing.T) {
	svc := NewService("test-signing-key", "kopra", time.Hour)

	_, err := svc.Issue(context.Background(), "", "member-1", "Anggota")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
