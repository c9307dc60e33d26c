package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	chimw "github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	"github.com/copse-social/copse/controllers"
	"github.com/copse-social/copse/deliver"
	"github.com/copse-social/copse/keystore"
	mware "github.com/copse-social/copse/middleware"
	"github.com/copse-social/copse/notify"
	"github.com/copse-social/copse/protocol"
	"github.com/copse-social/copse/resolver"
	"github.com/copse-social/copse/storage"
)

func main() {
	configPath := flag.String("config", "copse.toml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := newLogger(*debug)
	defer logger.Sync()

	conf, err := LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	keys, err := keystore.NewStore(conf.Server.PrivateKey, conf.Server.PublicKey)
	if err != nil {
		logger.Fatal("could not load instance keypair", zap.Error(err))
	}

	var store storage.Store
	if conf.Database.URL != "" {
		pg, err := storage.OpenPostgres(conf.Database.URL)
		if err != nil {
			logger.Fatal("could not open database", zap.Error(err))
		}
		store = pg
	} else {
		logger.Warn("no database configured, using in-memory storage")
		store = storage.NewMemStore()
	}

	client := &http.Client{Timeout: conf.Federation.HTTPTimeout.Duration}
	keyID := conf.Server.Scheme + "://" + conf.Server.Hostname + "/actor#main-key"

	res := resolver.New(client, keys, keyID, conf.Server.Hostname, store, logger)
	del := deliver.New(
		client,
		keys,
		res,
		store,
		conf.Server.Hostname,
		conf.Delivery.MaxAttempts,
		conf.Delivery.Backoff.Duration,
		conf.Delivery.MaxInflight,
		logger,
	)

	deps := &protocol.Deps{
		Scheme:           conf.Server.Scheme,
		Domain:           conf.Server.Hostname,
		Store:            store,
		Resolver:         res,
		Notify:           &notify.LogNotifier{Log: logger},
		Deliver:          del.Deliver,
		AllowedInstances: conf.Federation.AllowedInstances,
		BlockedInstances: conf.Federation.BlockedInstances,
		Log:              logger,
	}

	inbox := controllers.NewInbox(deps, conf.Federation.MaxResolveDepth, logger)
	actor := controllers.NewActor(conf.Server.Scheme, conf.Server.Hostname, keys)
	community := controllers.NewCommunityActor(conf.Server.Scheme, conf.Server.Hostname, keys, store)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/actor", actor.ServeHTTP)
	r.Get("/c/{name}", community.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(mware.InboxGuard)
		r.Use(mware.VerifyDigest)
		r.Use(mware.VerifySignature(res, logger))
		r.Post("/inbox", inbox.ServeHTTP)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: conf.Server.Listen, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server exited", zap.Error(err))
		}
	}()

	logger.Info("listening",
		zap.String("addr", conf.Server.Listen),
		zap.String("hostname", conf.Server.Hostname))

	<-ctx.Done()
	stop()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}

	// Let in-flight deliveries finish before the process exits.
	del.Wait()
}

func newLogger(debug bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}
