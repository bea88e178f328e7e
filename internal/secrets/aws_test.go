// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package secrets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/keychain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	mu     sync.Mutex
	values map[string]*string
	calls  int
	err    error
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: v}, nil
}

func TestAWSSource_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		secret  *string
		want    keychain.Credentials
		wantErr bool
	}{
		{name: "username key", secret: aws.String(`{"username":"app","password":"pw"}`), want: keychain.Credentials{User: "app", Password: "pw"}},
		{name: "user key", secret: aws.String(`{"user":"app"}`), want: keychain.Credentials{User: "app"}},
		{name: "not json", secret: aws.String(`plain`), wantErr: true},
		{name: "binary only", secret: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newAWSSource(&fakeSecrets{values: map[string]*string{"pgmulti/orders": tt.secret}}, Options{})

			got, err := src.Resolve("orders")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsKind(err, apperrors.CredentialsUnavailable))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAWSSource_Cache(t *testing.T) {
	fake := &fakeSecrets{values: map[string]*string{"team/orders": aws.String(`{"username":"app"}`)}}
	src := newAWSSource(fake, Options{Prefix: "team/", CacheTTL: time.Hour})

	for i := 0; i < 3; i++ {
		_, err := src.Resolve("orders")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fake.calls)

	src.Invalidate("orders")
	_, err := src.Resolve("orders")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
}

func TestAWSSource_NotFound(t *testing.T) {
	src := newAWSSource(&fakeSecrets{values: map[string]*string{}}, Options{})

	_, err := src.Resolve("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pgmulti/missing")
}
