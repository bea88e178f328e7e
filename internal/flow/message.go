// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package flow is the boundary between the connector and the host message-flow
// runtime: the message type, the outbound and error channels, and the reporter
// that forwards failures to the error channel.
package flow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Well-known message keys.
const (
	KeyPayload     = "payload"
	KeyQueryCounts = "_queryCounts"
	KeyMsgID       = "_msgid"
	KeyTopic       = "topic"
)

// Message is one host message. Fields other than payload belong to the host and
// are carried through untouched.
type Message map[string]any

// ErrNotObject is returned by Decode for JSON that is not an object.
var ErrNotObject = errors.New("message must be a JSON object")

// Decode parses one JSON message. Numbers are kept as json.Number so integer
// parameters survive without float rounding.
func Decode(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Message(obj), nil
}

// Clone returns a shallow copy. Nested values are shared; the connector only
// ever replaces top-level keys.
func (m Message) Clone() Message {
	out := make(Message, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Payload returns the payload value and whether the key is present.
func (m Message) Payload() (any, bool) {
	v, ok := m[KeyPayload]
	return v, ok
}

// ID returns the message id, or "" when there is none.
func (m Message) ID() string {
	id, _ := m[KeyMsgID].(string)
	return id
}

// WithID returns m with an _msgid, generating one when missing.
func (m Message) WithID() Message {
	if m.ID() != "" {
		return m
	}
	out := m.Clone()
	out[KeyMsgID] = uuid.NewString()
	return out
}

// WithQueryCounts returns a copy of m carrying counts as _queryCounts.
func (m Message) WithQueryCounts(counts []int) Message {
	out := m.Clone()
	out[KeyQueryCounts] = append([]int{}, counts...)
	return out
}

// WithPayload returns a copy of m with payload replaced.
func (m Message) WithPayload(payload any) Message {
	out := m.Clone()
	out[KeyPayload] = payload
	return out
}
