// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package secrets resolves database credentials from AWS Secrets Manager, for
// hosts where no OS keychain is available. Each target's secret is a JSON object
// with "username" (or "user") and "password".
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/keychain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// DefaultPrefix is prepended to a target id to form its secret name.
const DefaultPrefix = "pgmulti/"

// secretsAPI is the subset of the Secrets Manager client used here.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Options configure an AWSSource.
type Options struct {
	Region   string
	Prefix   string
	CacheTTL time.Duration
	// Timeout bounds one lookup.
	Timeout time.Duration
}

type cacheEntry struct {
	creds     keychain.Credentials
	expiresAt time.Time
}

// AWSSource resolves credentials by target id. Lookups are cached.
type AWSSource struct {
	client  secretsAPI
	prefix  string
	ttl     time.Duration
	timeout time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewAWSSource loads the default AWS configuration (environment, shared files,
// instance role) and returns a source on it.
func NewAWSSource(ctx context.Context, opts Options) (*AWSSource, error) {
	var cfgOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CredentialsUnavailable, "failed to load AWS config", err)
	}
	return newAWSSource(secretsmanager.NewFromConfig(cfg), opts), nil
}

func newAWSSource(client secretsAPI, opts Options) *AWSSource {
	s := &AWSSource{
		client:  client,
		prefix:  opts.Prefix,
		ttl:     opts.CacheTTL,
		timeout: opts.Timeout,
		cache:   make(map[string]cacheEntry),
	}
	if s.prefix == "" {
		s.prefix = DefaultPrefix
	}
	if s.ttl <= 0 {
		s.ttl = 5 * time.Minute
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	return s
}

// SecretName returns the secret name for a target id.
func (s *AWSSource) SecretName(id string) string { return s.prefix + id }

// Resolve returns the credentials stored for a target id.
func (s *AWSSource) Resolve(id string) (keychain.Credentials, error) {
	s.mu.RLock()
	e, ok := s.cache[id]
	s.mu.RUnlock()
	if ok && time.Now().Before(e.expiresAt) {
		return e.creds, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	name := s.SecretName(id)
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		return keychain.Credentials{}, apperrors.Wrap(apperrors.CredentialsUnavailable, "failed to read secret "+name, err)
	}
	if out.SecretString == nil {
		return keychain.Credentials{}, apperrors.New(apperrors.CredentialsUnavailable, fmt.Sprintf("secret %s has no string value", name))
	}

	creds, err := parseSecret(*out.SecretString)
	if err != nil {
		return keychain.Credentials{}, apperrors.Wrap(apperrors.CredentialsUnavailable, "failed to parse secret "+name, err)
	}

	s.mu.Lock()
	s.cache[id] = cacheEntry{creds: creds, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return creds, nil
}

// Invalidate drops the cached entry for a target id.
func (s *AWSSource) Invalidate(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
}

func parseSecret(v string) (keychain.Credentials, error) {
	var raw struct {
		Username string `json:"username"`
		User     string `json:"user"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal([]byte(v), &raw); err != nil {
		return keychain.Credentials{}, err
	}
	user := raw.Username
	if user == "" {
		user = raw.User
	}
	return keychain.Credentials{User: user, Password: raw.Password}, nil
}
