package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"docportal/handler"
	"docportal/internal/integrations/paramstore"
)

type staticSecrets struct {
	values map[string]string
	err    error
	keys   []string
}

func (s *staticSecrets) GetMany(_ context.Context, keys ...string) (map[string]string, error) {
	s.keys = keys
	return s.values, s.err
}

func TestApplySecrets(t *testing.T) {
	fx, err := handler.DefaultFixtures()
	require.NoError(t, err)

	src := &staticSecrets{values: map[string]string{"session_secret": "from-ssm", "otp": "654321"}}
	require.NoError(t, applySecrets(context.Background(), src, &fx))
	require.Equal(t, []string{"session_secret", "otp"}, src.keys)
	require.Equal(t, "from-ssm", fx.Secret)
	require.Equal(t, "654321", fx.OTP)

	_, err = handler.NewSandbox(fx)
	require.NoError(t, err)
}

func TestApplySecrets_OTPIsOptional(t *testing.T) {
	fx, err := handler.DefaultFixtures()
	require.NoError(t, err)
	otp := fx.OTP

	require.NoError(t, applySecrets(context.Background(), &staticSecrets{values: map[string]string{"session_secret": "s"}}, &fx))
	require.Equal(t, otp, fx.OTP)
}

func TestApplySecrets_Failures(t *testing.T) {
	var fx handler.Fixtures

	err := applySecrets(context.Background(), &staticSecrets{values: map[string]string{"otp": "654321"}}, &fx)
	require.ErrorIs(t, err, paramstore.ErrNotFound)
	require.Empty(t, fx.OTP)

	err = applySecrets(context.Background(), &staticSecrets{err: errors.New("access denied")}, &fx)
	require.ErrorContains(t, err, "access denied")
}
