package wsticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundtrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue("client-1", secret, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := Verify(token, secret)
	require.NoError(t, err)
	require.Equal(t, "client-1", claims.ClientID)
}

func TestVerifyExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue("client-1", secret, -time.Minute)
	require.NoError(t, err)

	_, err = Verify(token, secret)
	require.Error(t, err)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := Issue("client-1", []byte("secret-a"), time.Minute)
	require.NoError(t, err)

	_, err = Verify(token, []byte("secret-b"))
	require.Error(t, err)
}

func TestVerifyGarbage(t *testing.T) {
	_, err := Verify("not-a-token", []byte("secret"))
	require.Error(t, err)
}
