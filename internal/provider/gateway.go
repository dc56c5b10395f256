package provider

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"linka/internal/gate"
)

var gatewayTracer = otel.Tracer("linka/provider")

// Gateway issues provider calls through the permit gate. The provider
// misbehaves under concurrent requests from the same credential, so every
// call holds a gate slot for its full duration. Failed calls are retried a
// small fixed number of times with a short backoff before the error
// surfaces to the state machine.
type Gateway struct {
	api     API
	gate    *gate.Gate
	retries int
	backoff time.Duration
	log     zerolog.Logger
}

var _ API = (*Gateway)(nil)

// GatewayConfig tunes the retry policy. Zero values get defaults: 1 retry,
// 500 ms backoff.
type GatewayConfig struct {
	Retries int
	Backoff time.Duration
}

func NewGateway(api API, g *gate.Gate, cfg GatewayConfig, log zerolog.Logger) *Gateway {
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Gateway{
		api:     api,
		gate:    g,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		log:     log.With().Str("component", "provider_gateway").Logger(),
	}
}

func (g *Gateway) Login(ctx context.Context, userID string, req LoginRequest) (*ProviderAccount, error) {
	var pa *ProviderAccount
	err := g.call(ctx, "provider.login", func(ctx context.Context) error {
		var err error
		pa, err = g.api.Login(ctx, userID, req)
		return err
	})
	return pa, err
}

func (g *Gateway) FetchProviderAccount(ctx context.Context, userID string, id RemoteID) (*ProviderAccount, error) {
	var pa *ProviderAccount
	err := g.call(ctx, "provider.fetchProviderAccount", func(ctx context.Context) error {
		var err error
		pa, err = g.api.FetchProviderAccount(ctx, userID, id)
		return err
	})
	return pa, err
}

func (g *Gateway) SubmitLoginForm(ctx context.Context, userID string, id RemoteID, form *LoginForm) error {
	return g.call(ctx, "provider.submitLoginForm", func(ctx context.Context) error {
		return g.api.SubmitLoginForm(ctx, userID, id, form)
	})
}

func (g *Gateway) FetchAccounts(ctx context.Context, userID string, providerAccountID RemoteID) ([]RemoteAccount, error) {
	var accounts []RemoteAccount
	err := g.call(ctx, "provider.fetchAccounts", func(ctx context.Context) error {
		var err error
		accounts, err = g.api.FetchAccounts(ctx, userID, providerAccountID)
		return err
	})
	return accounts, err
}

func (g *Gateway) FetchTransactions(ctx context.Context, userID string, accountID RemoteID, since *time.Time) ([]RemoteTransaction, error) {
	var txns []RemoteTransaction
	err := g.call(ctx, "provider.fetchTransactions", func(ctx context.Context) error {
		var err error
		txns, err = g.api.FetchTransactions(ctx, userID, accountID, since)
		return err
	})
	return txns, err
}

func (g *Gateway) DeleteProviderAccount(ctx context.Context, userID string, id RemoteID) error {
	return g.call(ctx, "provider.deleteProviderAccount", func(ctx context.Context) error {
		return g.api.DeleteProviderAccount(ctx, userID, id)
	})
}

// call runs fn holding a gate permit, retrying transient failures.
func (g *Gateway) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := gatewayTracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("provider.op", op),
	))
	defer span.End()

	err := g.gate.WithPermit(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		for attempt := 0; attempt < g.retries && IsTransient(err); attempt++ {
			g.log.Warn().Err(err).Str("op", op).Int("attempt", attempt+1).Msg("transient provider failure, retrying")
			select {
			case <-time.After(g.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			err = fn(ctx)
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
