package factor

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTOTPProvider_EnrollAndEvaluate(t *testing.T) {
	p := NewTOTPProvider("AuthVault")
	ctx := context.Background()

	ref, err := p.Enroll(ctx, "alice", nil)
	require.NoError(t, err)

	key, err := otp.NewKeyFromURL(ref)
	require.NoError(t, err)
	assert.Equal(t, "AuthVault", key.Issuer())

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	out, err := p.Evaluate(ctx, ref, []byte(code))
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, 1.0, out.Score)
}

func TestTOTPProvider_Evaluate_WrongCode(t *testing.T) {
	p := NewTOTPProvider("AuthVault")
	ctx := context.Background()

	ref, err := p.Enroll(ctx, "alice", nil)
	require.NoError(t, err)

	out, err := p.Evaluate(ctx, ref, []byte("000000"))
	require.NoError(t, err)
	assert.False(t, out.Matched)
	assert.Equal(t, 0.0, out.Score)
}

func TestTOTPProvider_Evaluate_BadTemplateRef(t *testing.T) {
	p := NewTOTPProvider("AuthVault")

	_, err := p.Evaluate(context.Background(), "::not-a-url::", []byte("123456"))
	assert.Error(t, err)
}
