package serve

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/whisper/spamguard/internal/audit"
	"github.com/whisper/spamguard/internal/catalog"
	"github.com/whisper/spamguard/internal/command"
	"github.com/whisper/spamguard/internal/config"
	"github.com/whisper/spamguard/internal/health"
	"github.com/whisper/spamguard/internal/messaging"
	"github.com/whisper/spamguard/internal/metrics"
	"github.com/whisper/spamguard/internal/moderation"
	"github.com/whisper/spamguard/internal/notice"
	"github.com/whisper/spamguard/internal/privilege"
	"github.com/whisper/spamguard/internal/telegram"
)

const (
	connectTimeout  = 5 * time.Second
	shutdownTimeout = 15 * time.Second
)

// app holds every long-lived component of a running bot.
type app struct {
	cfg config.Config
	log *logrus.Entry

	catalog *catalog.Catalog
	client  *telegram.Client
	notices *notice.Scheduler
	sweeper *privilege.Sweeper
	poller  *telegram.Poller
	health  *health.Server
	keep    *health.KeepAlive
	nats    *messaging.NATSClient
	redis   *redis.Client
	db      *sql.DB
}

// probe reports live state to the health endpoint.
type probe struct {
	catalog *catalog.Catalog
	notices *notice.Scheduler
}

func (p probe) KeywordCount() int   { return p.catalog.Snapshot().Total() }
func (p probe) PendingNotices() int { return p.notices.Pending() }

func keywordCounts(snap catalog.Snapshot) map[string]int {
	counts := make(map[string]int, len(snap.Categories))
	for _, c := range snap.Categories {
		counts[c.Name] = len(c.Keywords)
	}
	return counts
}

// build connects optional backends and wires the moderation stack. On error
// everything opened so far is closed.
func build(ctx context.Context, cfg config.Config, logger *logrus.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: logger.WithField("component", "serve")}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if cfg.NATSURL != "" {
		natsCfg := messaging.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		if a.nats, err = messaging.NewNATSClient(natsCfg, logger); err != nil {
			return nil, err
		}
	}

	store := catalog.NewFileStore(cfg.KeywordsFile)
	a.catalog = catalog.New(store, catalog.LoadOrDefault(store, logger), catalog.WithObserver(func(ch catalog.Change) {
		metrics.SetKeywordCounts(keywordCounts(a.catalog.Snapshot()))
		if a.nats != nil {
			a.nats.PublishCatalogChange(ch)
		}
	}))
	snap := a.catalog.Snapshot()
	metrics.SetKeywordCounts(keywordCounts(snap))
	logger.WithFields(logrus.Fields{
		"file":     store.Path(),
		"keywords": snap.Total(),
	}).Info("keyword catalog loaded")

	if a.client, err = telegram.NewClient(cfg.BotToken, logger); err != nil {
		return nil, err
	}
	meCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	username, err := a.client.Username(meCtx)
	cancel()
	if err != nil {
		return nil, err
	}
	logger.WithField("username", username).Info("authorized on telegram")

	var privStore privilege.Store = privilege.NewMemoryStore()
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err = a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		privStore = privilege.NewRedisStore(a.redis, cfg.PrivilegeEvictAfter)
	}
	privileges := privilege.NewCache(a.client, privStore, cfg.Privilege(), logger)
	if a.sweeper, err = privilege.NewSweeper(privStore, cfg.Privilege(), logger); err != nil {
		return nil, err
	}

	a.notices = notice.NewScheduler(a.client, cfg.Notice(), logger,
		notice.WithOnRemoved(func(h moderation.NoticeHandle, state moderation.State) {
			logger.WithFields(logrus.Fields{
				"component":  "notice",
				"chat_id":    h.ChatID,
				"message_id": h.MessageID,
				"state":      state.String(),
			}).Debug("notice lifecycle finished")
		}))

	var auditors moderation.MultiAuditor
	var history command.History
	if cfg.DatabaseURL != "" {
		dbCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		a.db, err = audit.Open(dbCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			return nil, err
		}
		if err = audit.Migrate(a.db); err != nil {
			return nil, err
		}
		events := audit.NewStore(a.db)
		auditors = append(auditors, events)
		history = events
	}
	if a.nats != nil {
		auditors = append(auditors, a.nats)
	}

	var opts []moderation.PipelineOption
	if len(auditors) > 0 {
		opts = append(opts, moderation.WithAuditor(auditors))
	}
	pipeline := moderation.NewPipeline(moderation.NewFilter(a.catalog), privileges, a.client, a.notices, logger, opts...)

	dispatcher := command.NewDispatcher(username, logger)
	command.NewHandlers(a.catalog, history, logger).Register(dispatcher, privileges, cfg.AllowedAdmins)

	pollCfg := telegram.DefaultPollerConfig()
	pollCfg.Workers = cfg.WorkerPoolSize
	a.poller = telegram.NewPoller(a.client, dispatcher, pipeline, a.client, pollCfg, logger)

	if cfg.HealthAddr != "" {
		a.health = health.NewServer(cfg.HealthAddr, probe{catalog: a.catalog, notices: a.notices}, logger)
		if err = a.health.Listen(); err != nil {
			return nil, err
		}
	}
	keepCfg := health.DefaultKeepAliveConfig()
	keepCfg.URL = cfg.KeepAliveURL
	keepCfg.Interval = cfg.KeepAliveInterval
	a.keep = health.NewKeepAlive(keepCfg, nil, logger)

	return a, nil
}

// run serves until ctx is cancelled or the update loop fails, then settles
// pending notices per NOTICE_SHUTDOWN.
func (a *app) run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	// A closed update channel stops the other loops too.
	g.Go(func() error {
		defer stop()
		return a.poller.Run(gctx)
	})
	g.Go(func() error {
		a.sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.keep.Run(gctx)
		return nil
	})
	if a.health != nil {
		g.Go(a.health.Serve)
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			return a.health.Shutdown(shutCtx)
		})
	}

	a.log.Info("spamguard running")
	err := g.Wait()

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := a.notices.Shutdown(shutCtx, a.cfg.NoticeShutdown); serr != nil {
		a.log.WithError(serr).Warn("notice shutdown incomplete")
	}
	a.close()
	return err
}

func (a *app) close() {
	if a.nats != nil {
		a.nats.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("redis close failed")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("database close failed")
		}
	}
	a.log.Info("stopped")
}
