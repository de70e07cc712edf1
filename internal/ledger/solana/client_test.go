package solana

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/boldengine/internal/domain"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []any           `json:"params"`
}

// newRPCServer answers getTransaction with the result registered for the
// requested signature, or null.
func newRPCServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		assert.Equal(t, "getTransaction", req.Method)
		if !assert.Len(t, req.Params, 2) {
			http.Error(w, "bad params", http.StatusBadRequest)
			return
		}
		if opts, ok := req.Params[1].(map[string]any); assert.True(t, ok) {
			assert.Equal(t, "confirmed", opts["commitment"])
			assert.EqualValues(t, 0, opts["maxSupportedTransactionVersion"])
		}

		sig, _ := req.Params[0].(string)
		result, ok := results[sig]
		if !ok {
			result = "null"
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"jsonrpc":"2.0","id":`+string(req.ID)+`,"result":`+result+`}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(context.Background(), ClientConfig{Endpoint: url, Timeout: 5 * time.Second}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestLookup(t *testing.T) {
	srv := newRPCServer(t, map[string]string{
		"sig-ok":       `{"slot":10,"meta":{"err":null,"fee":5000},"transaction":{}}`,
		"sig-failed":   `{"slot":11,"meta":{"err":{"InstructionError":[0,"Custom"]}},"transaction":{}}`,
		"sig-nometa":   `{"slot":12,"transaction":{}}`,
		"sig-nullmeta": `{"slot":13,"meta":null,"transaction":{}}`,
		"sig-badmeta":  `{"slot":14,"meta":"oops","transaction":{}}`,
		"sig-weird":    `[1,2,3]`,
	})
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	res, err := c.Lookup(ctx, "sig-ok")
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerResult{Found: true, Success: true}, res)

	res, err = c.Lookup(ctx, "sig-failed")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "InstructionError")

	res, err = c.Lookup(ctx, "sig-unknown")
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = c.Lookup(ctx, "sig-nometa")
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerResult{Found: true, Success: true}, res)

	res, err = c.Lookup(ctx, "sig-nullmeta")
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerResult{Found: true, Success: true}, res)

	_, err = c.Lookup(ctx, "sig-badmeta")
	assert.True(t, errors.Is(err, domain.ErrMalformedLedgerResponse))

	_, err = c.Lookup(ctx, "sig-weird")
	assert.True(t, errors.Is(err, domain.ErrMalformedLedgerResponse))
}

func TestLookup_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"jsonrpc":"2.0","id":`+string(req.ID)+`,"error":{"code":-32602,"message":"Invalid param: WrongSize"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Lookup(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WrongSize")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{}, slog.Default())
	assert.Error(t, err)

	_, err = New(context.Background(), ClientConfig{Endpoint: "http://127.0.0.1:1", Commitment: "processed"}, slog.Default())
	assert.Error(t, err)
}

func TestParseTransaction(t *testing.T) {
	res, err := parseTransaction(json.RawMessage("null"))
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = parseTransaction(json.RawMessage(`{"meta":{}}`))
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = parseTransaction(json.RawMessage(`{"slot":1,"meta":null,"transaction":{}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerResult{Found: true, Success: true}, res)

	_, err = parseTransaction(json.RawMessage(`{"meta":`))
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "getHealth", req.Method)
		w.Header().Set("Content-Type", "application/json")
		if healthy.Load() {
			io.WriteString(w, `{"jsonrpc":"2.0","id":`+string(req.ID)+`,"result":"ok"}`)
			return
		}
		io.WriteString(w, `{"jsonrpc":"2.0","id":`+string(req.ID)+`,"error":{"code":-32005,"message":"Node is behind by 42 slots"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "behind")

	healthy.Store(true)
	assert.NoError(t, c.Health(context.Background()))
}
