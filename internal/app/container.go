package app

import (
	"context"
	"time"

	"jobfeed/internal/config"
	"jobfeed/internal/database"
	"jobfeed/internal/database/migration"
	dbpostgres "jobfeed/internal/database/postgres"
	"jobfeed/internal/domain/feed"
	"jobfeed/internal/domain/matching"
	"jobfeed/internal/events"
	"jobfeed/internal/infrastructure/cache"
	"jobfeed/internal/infrastructure/scoreindex"
	"jobfeed/internal/publisher"
	"jobfeed/internal/repository"
	"jobfeed/internal/usecase"
	"jobfeed/internal/ws"

	"go.uber.org/zap"
)

// Container owns every long-lived collaborator of the process. Construction
// is eager: a container that comes back non-nil is fully wired.
type Container struct {
	Config config.Config
	Logger *zap.Logger

	DB    database.DB
	Cache *cache.Redis
	Index *scoreindex.Index

	FeedItems repository.FeedItemRepository
	Skills    repository.SkillRepository

	Scorer *feed.Scorer
	Engine *matching.Engine

	Hub       *ws.Hub
	Publisher *publisher.Publisher
	Consumer  *events.Consumer

	FeedUC  usecase.FeedUsecase
	MatchUC usecase.MatchingUsecase
	RecUC   usecase.RecommendationUsecase
}

func NewContainer(cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := dbpostgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := migration.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	redisCache := cache.NewRedis(cfg.Redis, logger)
	index := scoreindex.NewIndex(redisCache.Client(), logger)

	feedItems := repository.NewPostgresFeedItemRepository(db)
	skills := repository.NewPostgresSkillRepository(db)

	scorer := feed.NewScorer(cfg.Feed.BaseWeights, cfg.Feed.DecayHalfLife, logger)
	engine := matching.NewEngine(logger)

	hub := ws.NewHub(logger)
	pub := publisher.New(feedItems, index, scorer, logger,
		publisher.WithNotifier(hub),
		publisher.WithSweepCache(redisCache),
		publisher.WithSweepBatchSize(cfg.Feed.SweepBatchSize),
	)

	return &Container{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Cache:     redisCache,
		Index:     index,
		FeedItems: feedItems,
		Skills:    skills,
		Scorer:    scorer,
		Engine:    engine,
		Hub:       hub,
		Publisher: pub,
		Consumer:  events.NewConsumer(cfg.Kafka, logger),
		FeedUC:    usecase.NewFeedUsecase(feedItems, index, logger),
		MatchUC:   usecase.NewMatchingUsecase(skills, engine, redisCache, cfg.Cache, logger),
		RecUC:     usecase.NewRecommendationUsecase(skills, engine, redisCache, cfg.Cache, logger),
	}, nil
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if c.Consumer != nil {
		_ = c.Consumer.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
