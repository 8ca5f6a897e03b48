package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager("test-secret", 15*time.Minute, 7*24*time.Hour)
}

func TestIssueAndParseAccess(t *testing.T) {
	t.Parallel()
	m := newTestManager()

	raw, exp, err := m.IssueAccess(42, []string{"user", "admin"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := m.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeAccess, claims.Type)
	assert.Equal(t, []string{"user", "admin"}, claims.Roles)
	assert.NotEmpty(t, claims.ID)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
}

func TestIssueRefreshCarriesNoRoles(t *testing.T) {
	t.Parallel()
	m := newTestManager()

	raw, _, err := m.IssueRefresh(7)
	require.NoError(t, err)

	claims, err := m.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, claims.Type)
	assert.Empty(t, claims.Roles)
}

func TestTokenIDsAreUnique(t *testing.T) {
	t.Parallel()
	m := newTestManager()

	a, _, err := m.IssueAccess(1, nil)
	require.NoError(t, err)
	b, _, err := m.IssueAccess(1, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	ca, err := m.Parse(a)
	require.NoError(t, err)
	cb, err := m.Parse(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestParseExpired(t *testing.T) {
	t.Parallel()
	m := NewManager("test-secret", -time.Minute, time.Hour)

	raw, _, err := m.IssueAccess(1, nil)
	require.NoError(t, err)

	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestParseBadSignature(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	other := NewManager("other-secret", 15*time.Minute, time.Hour)

	raw, _, err := other.IssueAccess(1, nil)
	require.NoError(t, err)

	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestParseTampered(t *testing.T) {
	t.Parallel()
	m := newTestManager()

	raw, _, err := m.IssueAccess(1, nil)
	require.NoError(t, err)
	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + ".eyJzdWIiOiI5OTkifQ." + parts[2]

	_, err = m.Parse(tampered)
	assert.Error(t, err)
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()
	m := newTestManager()

	_, err := m.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseAllowExpired(t *testing.T) {
	t.Parallel()
	m := NewManager("test-secret", time.Hour, -time.Minute)

	raw, _, err := m.IssueRefresh(9)
	require.NoError(t, err)

	// the strict parser rejects it
	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrExpired)

	// the tolerant parser still verifies signature and yields claims
	claims, err := m.ParseAllowExpired(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, claims.Type)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), id)

	// but not with a wrong key
	other := NewManager("other-secret", time.Hour, time.Hour)
	_, err = other.ParseAllowExpired(raw)
	assert.Error(t, err)
}

func TestHashIsStableAndOpaque(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Hash("abc"), Hash("abc"))
	assert.NotEqual(t, Hash("abc"), Hash("abd"))
	assert.Len(t, Hash("abc"), 64)
}
