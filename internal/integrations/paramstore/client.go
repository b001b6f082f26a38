// Package paramstore reads deployment settings kept under one SSM Parameter
// Store path, e.g. /docportal/prod/api_base_url.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ErrNotFound is returned by Get for a key with no parameter behind it.
var ErrNotFound = errors.New("paramstore: parameter not found")

// maxBatch is the most names one GetParameters call accepts.
const maxBatch = 10

// ssmAPI is the part of *ssm.Client the store calls.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParameters(ctx context.Context, in *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// Getter reads settings by key relative to a store's path.
type Getter interface {
	Get(ctx context.Context, key string) (string, error)
	Lookup(ctx context.Context, key string) (string, bool, error)
}

// Store reads SecureString and String parameters below one path.
type Store struct {
	api    ssmAPI
	prefix string
}

// New binds api to prefix. An empty prefix reads keys as absolute names.
func New(api ssmAPI, prefix string) (*Store, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		return nil, fmt.Errorf("paramstore: prefix %q must start with /", prefix)
	}
	return &Store{api: api, prefix: strings.TrimRight(prefix, "/")}, nil
}

// Name returns the full parameter name of key.
func (s *Store) Name(key string) string {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if s.prefix == "" {
		return "/" + key
	}
	return s.prefix + "/" + key
}

// Get returns the decrypted value of key. A missing parameter is ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if strings.Trim(strings.TrimSpace(key), "/") == "" {
		return "", errors.New("paramstore: key is required")
	}
	name := s.Name(key)
	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	var notFound *types.ParameterNotFound
	if errors.As(err, &notFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("paramstore: get %s: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: %s has no value", name)
	}
	return *out.Parameter.Value, nil
}

// Lookup is Get for optional settings: a missing parameter is ok=false.
func (s *Store) Lookup(ctx context.Context, key string) (string, bool, error) {
	v, err := s.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return v, true, nil
}

// GetMany fetches keys in as few calls as possible. Keys without a parameter
// are absent from the result.
func (s *Store) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	byName := make(map[string]string, len(keys))
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		n := s.Name(k)
		if _, dup := byName[n]; dup {
			continue
		}
		byName[n] = k
		names = append(names, n)
	}

	values := make(map[string]string, len(names))
	for start := 0; start < len(names); start += maxBatch {
		batch := names[start:min(start+maxBatch, len(names))]
		out, err := s.api.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          batch,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("paramstore: get %d parameters: %w", len(batch), err)
		}
		for _, p := range out.Parameters {
			key, ok := byName[aws.ToString(p.Name)]
			if ok && p.Value != nil {
				values[key] = *p.Value
			}
		}
	}
	return values, nil
}
