// Package rpcdial dials JSON-RPC endpoints for the chain descriptors.
package rpcdial

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

// HandshakeFunc is run against a freshly dialed client. A returned error fails the attempt and
// closes the client.
type HandshakeFunc func(ctx context.Context, client *rpc.Client) error

// Dial opens a JSON-RPC client to endpoint and runs handshake on it, retrying according to cfg.
// Both ws(s) and http(s) endpoints are supported.
func Dial(
	ctx context.Context, lggr logger.Logger, cfg chain.DialConfig, endpoint string, handshake HandshakeFunc,
) (*rpc.Client, error) {
	cfg = cfg.WithDefaults()

	opts := []rpc.ClientOption{
		rpc.WithWebsocketDialer(websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}),
		rpc.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}

	traceID := uuid.New()

	return Do(ctx, lggr, cfg, func(ctx context.Context) (*rpc.Client, error) {
		lggr.Debugw("Dialing endpoint", "traceID", traceID.String(), "endpoint", endpoint)

		client, err := rpc.DialOptions(ctx, endpoint, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
		}

		if handshake != nil {
			if err := handshake(ctx, client); err != nil {
				client.Close()
				return nil, fmt.Errorf("handshake with %s failed: %w", endpoint, err)
			}
		}

		return client, nil
	})
}

// Do runs op up to cfg.Attempts times. Each attempt gets its own context bounded by cfg.Timeout
// and derived from ctx, so cancelling ctx aborts the loop.
func Do[T any](ctx context.Context, lggr logger.Logger, cfg chain.DialConfig, op func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.WithDefaults()

	retryCount := 0
	res, err := retry.DoWithData(func() (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		out, err := op(attemptCtx)
		if err != nil {
			lggr.Warnw("Connection attempt failed", "attempt", retryCount+1, "error", err)
			return out, err
		}

		return out, nil
	},
		retry.Context(ctx),
		retry.Attempts(cfg.Attempts),
		retry.Delay(cfg.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) { retryCount++ }),
	)
	if err != nil {
		var zero T
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(err, ctxErr)
		}

		return zero, err
	}

	if retryCount > 0 {
		lggr.Infow("Connected after retries", "retries", retryCount)
	}

	return res, nil
}
