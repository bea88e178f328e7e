// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package redisq carries node messages over Redis lists: inbound messages are
// popped from one list, outbound messages and error envelopes are pushed to
// others. It lets several hosts share one stream of work.
package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pgmulti/cli/internal/flow"
	"pgmulti/cli/internal/logging"

	"github.com/go-redis/redis/v8"
	"github.com/pterm/pterm"
)

// DefaultBlock is how long one BLPOP waits before the source re-checks its
// context.
const DefaultBlock = time.Second

// Dial connects to the Redis server named by a redis:// URL and pings it.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Source pops inbound messages from a list.
type Source struct {
	client *redis.Client
	key    string
	block  time.Duration
}

// NewSource pops from key. A zero block uses DefaultBlock.
func NewSource(client *redis.Client, key string, block time.Duration) *Source {
	if block <= 0 {
		block = DefaultBlock
	}
	return &Source{client: client, key: key, block: block}
}

// Next blocks until a message is available or ctx is done. The list never
// ends, so Next does not return io.EOF.
func (s *Source) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.client.BLPop(ctx, s.block, s.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to pop from %s: %w", s.key, err)
		}
		// BLPOP replies with [key, value].
		if len(res) != 2 {
			return nil, fmt.Errorf("unexpected BLPOP reply of %d elements", len(res))
		}
		return []byte(res[1]), nil
	}
}

// Sink pushes outbound messages and error envelopes to lists.
type Sink struct {
	client  *redis.Client
	outKey  string
	errKey  string
	errWait time.Duration
	logger  *pterm.Logger
}

// NewSink pushes messages to outKey and error envelopes to errKey. An empty
// errKey drops error envelopes; the reporter still logs them.
func NewSink(client *redis.Client, outKey, errKey string, logger *pterm.Logger) *Sink {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sink{client: client, outKey: outKey, errKey: errKey, errWait: 5 * time.Second, logger: logger}
}

// Send pushes msg to the outbound list.
func (s *Sink) Send(ctx context.Context, msg flow.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := s.client.RPush(ctx, s.outKey, b).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", s.outKey, err)
	}
	return nil
}

// HandleError pushes the error envelope of (err, msg) to the error list.
func (s *Sink) HandleError(err error, msg flow.Message) {
	if s.errKey == "" {
		return
	}
	b, mErr := json.Marshal(flow.NewErrorEnvelope(err, msg))
	if mErr != nil {
		s.logger.Warn("failed to encode error envelope", s.logger.Args("error", mErr.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.errWait)
	defer cancel()
	if pErr := s.client.RPush(ctx, s.errKey, b).Err(); pErr != nil {
		s.logger.Warn("failed to push error envelope", s.logger.Args("list", s.errKey, "error", pErr.Error()))
	}
}
