package voucher

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestGenerateQR(t *testing.T) {
	gen := NewGenerator("test-secret-key")

	claim := Claim{
		EventID:     "event-100",
		SeatID:      "C4-12",
		OrderLineID: "line-1",
		IssuedAt:    time.Now(),
	}

	png, err := gen.GenerateQR(claim)
	require.NoError(t, err)
	require.NotEmpty(t, png)
	assert.True(t, bytes.HasPrefix(png, pngMagic), "voucher must be a PNG image")
}

func TestGenerateQR_DifferentClaims(t *testing.T) {
	gen := NewGenerator("test-secret-key")
	issued := time.Now()

	claim1 := Claim{EventID: "event-100", SeatID: "C4-12", OrderLineID: "line-1", IssuedAt: issued}
	claim2 := Claim{EventID: "event-100", SeatID: "C4-13", OrderLineID: "line-1", IssuedAt: issued}

	png1, err := gen.GenerateQR(claim1)
	require.NoError(t, err)
	png2, err := gen.GenerateQR(claim2)
	require.NoError(t, err)

	assert.NotEqual(t, png1, png2, "vouchers for different seats must differ")
}

func TestGenerateQR_AnySecretLength(t *testing.T) {
	// The secret is hashed to a valid AES key, so arbitrary lengths work.
	for _, secret := range []string{"", "x", "a-much-longer-secret-than-thirty-two-bytes-in-total"} {
		gen := NewGenerator(secret)
		png, err := gen.GenerateQR(Claim{EventID: "event-100", SeatID: "C4-12"})
		require.NoError(t, err)
		assert.NotEmpty(t, png)
	}
}
