package paramstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// memorySSM serves parameters from a map and records the names asked for.
type memorySSM struct {
	params  map[string]string
	err     error
	asked   []string
	batches [][]string
}

func (m *memorySSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	name := aws.ToString(in.Name)
	m.asked = append(m.asked, name)
	if m.err != nil {
		return nil, m.err
	}
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("decryption not requested")
	}
	v, ok := m.params[name]
	if !ok {
		return nil, &types.ParameterNotFound{Message: aws.String(name)}
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

func (m *memorySSM) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	m.batches = append(m.batches, in.Names)
	if m.err != nil {
		return nil, m.err
	}
	out := &ssm.GetParametersOutput{}
	for _, n := range in.Names {
		if v, ok := m.params[n]; ok {
			out.Parameters = append(out.Parameters, types.Parameter{Name: aws.String(n), Value: aws.String(v)})
		} else {
			out.InvalidParameters = append(out.InvalidParameters, n)
		}
	}
	return out, nil
}

func newStore(t *testing.T, api ssmAPI, prefix string) *Store {
	t.Helper()
	s, err := New(api, prefix)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	_, err := New(nil, "/docportal")
	require.ErrorContains(t, err, "must not be nil")

	_, err = New(&memorySSM{}, "docportal")
	require.ErrorContains(t, err, "must start with /")
}

func TestName(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		want   string
	}{
		{prefix: "/docportal/prod", key: "api_base_url", want: "/docportal/prod/api_base_url"},
		{prefix: "/docportal/prod/", key: "/session_secret", want: "/docportal/prod/session_secret"},
		{prefix: "", key: "api_base_url", want: "/api_base_url"},
		{prefix: "  /sandbox  ", key: " otp ", want: "/sandbox/otp"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			require.Equal(t, tc.want, newStore(t, &memorySSM{}, tc.prefix).Name(tc.key))
		})
	}
}

func TestGet(t *testing.T) {
	api := &memorySSM{params: map[string]string{"/docportal/session_secret": "s3cret"}}
	s := newStore(t, api, "/docportal/")

	v, err := s.Get(context.Background(), "session_secret")
	require.NoError(t, err)
	require.Equal(t, "s3cret", v)
	require.Equal(t, []string{"/docportal/session_secret"}, api.asked)

	_, err = s.Get(context.Background(), "otp")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorContains(t, err, "/docportal/otp")

	_, err = s.Get(context.Background(), " / ")
	require.ErrorContains(t, err, "key is required")
	require.Len(t, api.asked, 2)
}

func TestGet_UpstreamFailure(t *testing.T) {
	s := newStore(t, &memorySSM{err: errors.New("throttled")}, "/docportal")
	_, err := s.Get(context.Background(), "api_base_url")
	require.ErrorContains(t, err, "throttled")
	require.NotErrorIs(t, err, ErrNotFound)
}

type emptyParameter struct{ *memorySSM }

func (emptyParameter) GetParameter(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: aws.String("/x")}}, nil
}

func TestGet_ParameterWithoutValue(t *testing.T) {
	s := newStore(t, emptyParameter{&memorySSM{}}, "")
	_, err := s.Get(context.Background(), "x")
	require.ErrorContains(t, err, "has no value")
}

func TestLookup(t *testing.T) {
	api := &memorySSM{params: map[string]string{"/dp/api_base_url": "https://api.example.test"}}
	s := newStore(t, api, "/dp")

	v, ok, err := s.Lookup(context.Background(), "api_base_url")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://api.example.test", v)

	v, ok, err = s.Lookup(context.Background(), "otp")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, v)

	api.err = errors.New("access denied")
	_, ok, err = s.Lookup(context.Background(), "api_base_url")
	require.ErrorContains(t, err, "access denied")
	require.False(t, ok)
}

func TestGetMany_BatchesAndSkipsMissing(t *testing.T) {
	params := make(map[string]string)
	keys := make([]string, 0, 12)
	for i := range 12 {
		k := fmt.Sprintf("k%02d", i)
		keys = append(keys, k)
		if i%4 != 0 {
			params["/dp/"+k] = "v" + k
		}
	}
	api := &memorySSM{params: params}
	s := newStore(t, api, "/dp")

	got, err := s.GetMany(context.Background(), append(keys, "k01")...)
	require.NoError(t, err)
	require.Len(t, api.batches, 2)
	require.Len(t, api.batches[0], maxBatch)
	require.Len(t, api.batches[1], 2)
	require.Len(t, got, 9)
	require.Equal(t, "vk01", got["k01"])
	require.NotContains(t, got, "k00")
}

func TestGetMany_Error(t *testing.T) {
	s := newStore(t, &memorySSM{err: errors.New("boom")}, "/dp")
	_, err := s.GetMany(context.Background(), "a", "b")
	require.ErrorContains(t, err, "boom")
}

var _ Getter = (*Store)(nil)
