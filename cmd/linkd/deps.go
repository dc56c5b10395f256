package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"linka/internal/gate"
	"linka/internal/infrastructure/crypto"
	"linka/internal/infrastructure/fcm"
	fsrepo "linka/internal/infrastructure/firestore"
	"linka/internal/infrastructure/postgres"
	"linka/internal/linker"
	"linka/internal/models"
	"linka/internal/notify"
	"linka/internal/provider"
	"linka/internal/reconcile"
	"linka/internal/scheduler"
	"linka/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB    *postgres.DB
	Store *fsrepo.Store

	Links   models.AccountLinkRepository
	Service *linker.Service
}

// NewDependencies wires the application together.
func NewDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Dependencies, error) {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("connected to database")

	store, err := fsrepo.New(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		db.Close()
		store.Close()
		return nil, err
	}

	linkRepo := fsrepo.NewAccountLinkRepository(store, encryptor)
	accountRepo := fsrepo.NewAccountRepository(store)
	transactionRepo := fsrepo.NewTransactionRepository(store)
	attemptRepo := postgres.NewAttemptLogRepository(db)

	sessions, err := provider.NewSessionStore(cfg.Provider.Issuer, cfg.Provider.Secret, cfg.Provider.SessionTTL)
	if err != nil {
		db.Close()
		store.Close()
		return nil, err
	}
	client := provider.NewClient(cfg.Provider.BaseURL, sessions)
	gateway := provider.NewGateway(client, gate.New(cfg.Link.GateCapacity), provider.GatewayConfig{
		Retries: cfg.Provider.Retries,
		Backoff: cfg.Provider.Backoff,
	}, log)

	// Push delivery is optional. Without credentials the machine simply
	// skips the MFA notification.
	var messenger notify.Messenger
	if cfg.Firestore.ProjectID != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile, log)
		if err != nil {
			log.Warn().Err(err).Msg("push notifications disabled")
		} else {
			messenger = fcmClient
		}
	}

	engine := reconcile.NewEngine(gateway, accountRepo, transactionRepo, log)
	attempts := linker.NewAttemptLogger(attemptRepo, log)

	service := linker.NewService(
		linkRepo,
		accountRepo,
		transactionRepo,
		gateway,
		engine,
		attempts,
		messenger,
		&linker.Config{
			PollInterval: cfg.Link.PollInterval,
			MaxMFAPolls:  cfg.Link.MaxMFAPolls,
		},
		log,
	)

	return &Dependencies{
		DB:      db,
		Store:   store,
		Links:   linkRepo,
		Service: service,
	}, nil
}

// RefreshJobProvider builds the scheduler's batch: one refresh job per
// provider-sourced link not currently mid-attempt.
func (d *Dependencies) RefreshJobProvider(log zerolog.Logger) func(context.Context) ([]scheduler.Job, error) {
	return func(ctx context.Context) ([]scheduler.Job, error) {
		links, err := d.Links.ListRefreshable(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list refreshable links: %w", err)
		}
		jobs := make([]scheduler.Job, 0, len(links))
		for _, link := range links {
			jobs = append(jobs, scheduler.NewRefreshJob(link, d.Service, log))
		}
		return jobs, nil
	}
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Store != nil {
		d.Store.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
