package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordService_HashUsesConfiguredCost(t *testing.T) {
	hash, err := NewPasswordServiceForTest(bcrypt.MinCost).Hash("password123")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	assert.Equal(t, defaultCost, NewPasswordService().cost)
}

func TestPasswordService_SaltsEveryHash(t *testing.T) {
	ps := NewPasswordServiceForTest(bcrypt.MinCost)

	// Placeholder hashes for Auth-managed profiles must not be comparable.
	a, err := ps.Hash("auth-managed")
	require.NoError(t, err)
	b, err := ps.Hash("auth-managed")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NoError(t, ps.Verify(a, "auth-managed"))
	assert.NoError(t, ps.Verify(b, "auth-managed"))
}

func TestPasswordService_LengthLimit(t *testing.T) {
	ps := NewPasswordServiceForTest(bcrypt.MinCost)

	_, err := ps.Hash(strings.Repeat("x", 72))
	assert.NoError(t, err)

	_, err = ps.Hash(strings.Repeat("x", 73))
	assert.Error(t, err)
}

func TestPasswordService_Verify(t *testing.T) {
	ps := NewPasswordServiceForTest(bcrypt.MinCost)
	hash, err := ps.Hash("officer-pass")
	require.NoError(t, err)

	// Rows written by the previous backend used cost 10; they must still verify.
	legacy, err := bcrypt.GenerateFromPassword([]byte("officer-pass"), defaultCost)
	require.NoError(t, err)

	tests := []struct {
		name      string
		hash      string
		password  string
		wantErr   bool
		wantWrong bool
	}{
		{"match", hash, "officer-pass", false, false},
		{"legacy cost", string(legacy), "officer-pass", false, false},
		{"mismatch", hash, "Officer-pass", true, true},
		{"empty password", hash, "", true, true},
		{"not a bcrypt hash", "plain-text-column", "officer-pass", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Verify(tt.hash, tt.password)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantWrong, errors.Is(err, ErrInvalidPassword))
		})
	}
}
