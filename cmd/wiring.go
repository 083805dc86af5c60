package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/analysis"
	"github.com/mohammad-safakhou/deepresearch/internal/research"
	"github.com/mohammad-safakhou/deepresearch/internal/scraper"
	"github.com/mohammad-safakhou/deepresearch/internal/search"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

// buildService assembles the pipeline from configuration. withStore controls
// whether a Postgres connection is attempted; store-less runs keep working
// with an in-memory cache and no persistence.
func buildService(ctx context.Context, cfg *config.Config, withStore bool) (*research.Service, *store.Store, error) {
	logger := log.New(os.Stderr, "[RESEARCH] ", log.LstdFlags)

	analyst := analysis.NewClient(cfg.Analysis, log.New(os.Stderr, "[ANALYSIS] ", log.LstdFlags))
	engine := search.New(cfg.Search, cfg.Scraper.UserAgent, log.New(os.Stderr, "[SEARCH] ", log.LstdFlags))
	fetcher := scraper.New(cfg.Scraper, log.New(os.Stderr, "[SCRAPER] ", log.LstdFlags))

	var st *store.Store
	if withStore {
		var err error
		st, err = store.New(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
	}

	cache, err := buildCache(ctx, cfg, st)
	if err != nil {
		return nil, nil, err
	}

	coordinator := research.NewCoordinator(analyst, engine, fetcher, cfg.Search, cfg.Scraper, logger)
	analyzer := research.NewAnalyzer(analyst, cache, cfg.Analysis, logger)
	synthesizer := research.NewSynthesizer(analyst, logger)

	var sessions research.SessionStore
	if st != nil {
		sessions = st
	}
	return research.NewService(analyst, coordinator, analyzer, synthesizer, sessions, logger), st, nil
}

// buildCache picks the embedding cache backend. The shared backends sit
// behind a process-local layer so repeat fingerprints in one run never leave
// the process.
func buildCache(ctx context.Context, cfg *config.Config, st *store.Store) (research.EmbeddingCache, error) {
	memory := research.NewMemoryCache()
	switch cfg.Storage.EmbeddingCache {
	case "postgres":
		if st == nil {
			return memory, nil
		}
		return research.NewLayeredCache(memory, research.NewStoreCache(st)), nil
	case "redis":
		client, err := store.RedisConn(ctx, cfg.Storage.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return research.NewLayeredCache(memory, research.NewRedisCache(client, cfg.Storage.Redis.TTL)), nil
	default:
		return memory, nil
	}
}
