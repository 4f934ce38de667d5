package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"leavebot/internal/botframework"
	"leavebot/internal/config"
	"leavebot/internal/directory"
	"leavebot/internal/handler"
	"leavebot/internal/i18n"
	"leavebot/internal/llm"
	"leavebot/internal/logging"
	"leavebot/internal/nlu"
	"leavebot/internal/service"
	"leavebot/internal/sink"
	"leavebot/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "leavebot",
		Short:         "Conversational leave request bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := newServeCmd()
	root.AddCommand(serve)
	root.RunE = serve.RunE
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot messaging endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
			if err := i18n.Init(cfg.DefaultLocale); err != nil {
				logging.Logger.Error().Err(err).Msg("load locales")
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logging.Component("server")

	books, sessions, db, err := openStores(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("open stores")
		return err
	}
	if db != nil {
		defer db.Close(context.Background())
	}

	completer := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.LLMTimeout)
	connector := botframework.NewAuthenticatedClient(ctx, botframework.Credentials{
		AppID:       cfg.AppID,
		AppPassword: cfg.AppPassword,
		TenantID:    cfg.AppTenantID,
	}, cfg.HTTPTimeout)
	dir := directory.NewAuthenticatedClient(ctx, directory.DefaultBaseURL, directory.Credentials{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
	}, cfg.HTTPTimeout)
	channel := sink.NewChannelClient(cfg.ChannelWebhookURL, cfg.HTTPTimeout)
	absence := sink.NewAbsenceClient(cfg.AbsenceURL, cfg.HTTPTimeout)

	dispatcher := service.NewProactiveDispatcher(books, connector)
	conversations := service.NewConversationService(service.ConversationDeps{
		Sessions:      sessions,
		Intent:        nlu.NewIntentClassifier(completer),
		Extractor:     nlu.NewExtractor(completer),
		Directory:     dir,
		Cards:         dispatcher,
		Channel:       channel,
		Location:      cfg.Location(),
		DefaultLocale: cfg.DefaultLocale,
	})
	approvals := service.NewApprovalService(service.ApprovalDeps{
		Sender:    connector,
		Tasks:     dir,
		Absence:   absence,
		Channel:   channel,
		Requester: dispatcher,
	})

	mux := http.NewServeMux()
	limiter := handler.NewSenderLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
	handler.NewMessagesHandler(conversations, approvals, dispatcher, connector, limiter).RegisterRoutes(mux)

	checks := map[string]handler.Pinger{}
	if db != nil {
		checks["mongodb"] = db
	}
	handler.NewHealthHandler(checks).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.RequestID(handler.LoggingMiddleware(mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.LLMTimeout + cfg.HTTPTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("leave bot started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		log.Error().Err(err).Msg("server error")
		return err
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStores uses MongoDB when MONGODB_URI is set and in-memory stores
// otherwise. The returned db is nil in the in-memory case.
func openStores(ctx context.Context, cfg *config.Config) (store.ReferenceBook, store.SessionStore, *store.MongoDB, error) {
	if cfg.MongoURI == "" {
		logging.Component("store").Warn().Msg("MONGODB_URI not set, conversation state is kept in memory")
		return store.NewMemoryReferenceBook(), store.NewMemorySessionStore(), nil, nil
	}

	db, err := store.NewMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, nil, nil, err
	}
	books, err := store.NewMongoReferenceBook(ctx, db)
	if err != nil {
		db.Close(context.Background())
		return nil, nil, nil, err
	}
	sessions, err := store.NewMongoSessionStore(ctx, db)
	if err != nil {
		db.Close(context.Background())
		return nil, nil, nil, err
	}
	return books, sessions, db, nil
}
