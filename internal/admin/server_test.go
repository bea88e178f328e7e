// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package admin

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"pgmulti/cli/internal/keychain"
	"pgmulti/cli/internal/metrics"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*keychain.Manager, http.Handler) {
	t.Helper()
	store := keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil))
	return store, New(store, Options{Metrics: metrics.New()}).Handler()
}

func do(h http.Handler, method, path string, form url.Values) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGet(t *testing.T) {
	store, h := newTestServer(t)

	rec := do(h, http.MethodGet, "/postgresdb/orders", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())

	require.NoError(t, store.Set("orders", keychain.Credentials{User: "app", Password: "s3cret"}))
	rec = do(h, http.MethodGet, "/postgresdb/orders", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"app","hasPassword":true}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "s3cret")
}

func TestPost_Merge(t *testing.T) {
	store, h := newTestServer(t)

	rec := do(h, http.MethodPost, "/postgresdb/orders", url.Values{"user": {"app"}, "password": {"pw"}})
	require.Equal(t, http.StatusOK, rec.Code)

	// Password omitted: keep the stored one.
	rec = do(h, http.MethodPost, "/postgresdb/orders", url.Values{"user": {"other"}})
	require.Equal(t, http.StatusOK, rec.Code)
	c, _, err := store.Get("orders")
	require.NoError(t, err)
	assert.Equal(t, keychain.Credentials{User: "other", Password: "pw"}, c)

	// Empty password clears it.
	rec = do(h, http.MethodPost, "/postgresdb/orders", url.Values{"user": {"other"}, "password": {""}})
	require.Equal(t, http.StatusOK, rec.Code)
	c, _, err = store.Get("orders")
	require.NoError(t, err)
	assert.Equal(t, keychain.Credentials{User: "other"}, c)

	rec = do(h, http.MethodGet, "/postgresdb/orders", nil)
	assert.JSONEq(t, `{"user":"other","hasPassword":false}`, rec.Body.String())
}

func TestDelete(t *testing.T) {
	store, h := newTestServer(t)
	require.NoError(t, store.Set("orders", keychain.Credentials{User: "app"}))

	rec := do(h, http.MethodDelete, "/postgresdb/orders", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, ok, err := store.Get("orders")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting something that is not there is still OK.
	rec = do(h, http.MethodDelete, "/postgresdb/orders", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type brokenStore struct{}

func (brokenStore) Get(string) (keychain.Credentials, bool, error) {
	return keychain.Credentials{}, false, errors.New("dbus: password=leak unavailable")
}
func (brokenStore) Delete(string) error { return errors.New("unavailable") }
func (brokenStore) Merge(string, *string, *string) (keychain.Credentials, error) {
	return keychain.Credentials{}, errors.New("unavailable")
}

func TestStoreFailures(t *testing.T) {
	h := New(brokenStore{}, Options{}).Handler()

	for _, method := range []string{http.MethodGet, http.MethodDelete, http.MethodPost} {
		rec := do(h, method, "/postgresdb/x", url.Values{})
		assert.Equal(t, http.StatusInternalServerError, rec.Code, method)
		assert.NotContains(t, rec.Body.String(), "leak")
	}
}

func TestMetricsAndHealth(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCORS(t *testing.T) {
	store := keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil))
	h := New(store, Options{AllowedOrigins: []string{"http://editor.local"}}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/postgresdb/x", nil)
	req.Header.Set("Origin", "http://editor.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://editor.local", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/postgresdb/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
