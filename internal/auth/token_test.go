package auth

import (
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func TestExtractTokenFromRequest(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "/", nil)
	_, err := ExtractTokenFromRequest(req)
	assert.Error(t, err, "missing header")

	req.Header.Set("Authorization", "token-without-scheme")
	_, err = ExtractTokenFromRequest(req)
	assert.Error(t, err, "malformed header")

	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	token, err := ExtractTokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)
}

func TestExtractSubjectFromJWT(t *testing.T) {
	token := signedTestToken(t, jwt.MapClaims{"sub": "ops-1"})

	sub, err := ExtractSubjectFromJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-1", sub)
}

func TestExtractSubjectFromJWT_MissingSubject(t *testing.T) {
	token := signedTestToken(t, jwt.MapClaims{"email": "ops@example.com"})

	_, err := ExtractSubjectFromJWT(token)
	assert.Error(t, err)
}

func TestExtractSubjectFromJWT_Garbage(t *testing.T) {
	_, err := ExtractSubjectFromJWT("not-a-jwt")
	assert.Error(t, err)

	_, err = ExtractSubjectFromJWT("")
	assert.Error(t, err)
}
