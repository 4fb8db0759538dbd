package main

import (
	"context"
	"fmt"
	"os"

	"videorag/ai"
	"videorag/config"
	"videorag/core"
	"videorag/logger"
	"videorag/pipeline"
	"videorag/processors"
	"videorag/rag"
	"videorag/server"
	"videorag/storage"
	"videorag/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("startup failed", "error", err)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		// The server still serves uploads and status; AI-backed calls fail
		// until configuration is completed.
		log.Warn("configuration incomplete", "error", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	records, err := storage.OpenRecords(cfg.DatabasePath, log)
	if err != nil {
		return err
	}

	client := ai.New(cfg)
	table := storage.NewEmbeddingTable(cfg.EmbeddingTablePath(), client, log)

	ctx := context.Background()
	var index storage.VectorIndex
	switch cfg.Store {
	case "pgvector":
		index, err = storage.NewPgVectorIndex(ctx, cfg.PostgresURL, cfg.EmbeddingDim, log)
		if err != nil {
			return fmt.Errorf("pgvector: %w", err)
		}
	case "milvus":
		index, err = storage.NewMilvusIndex(ctx, cfg.MilvusAddr, cfg.MilvusCollection, cfg.EmbeddingDim, log)
		if err != nil {
			return fmt.Errorf("milvus: %w", err)
		}
	case "":
		// JSON table only.
	default:
		return fmt.Errorf("unknown vector store %q", cfg.Store)
	}
	upserter := storage.NewMirroredUpserter(table, index, log)

	enhancer := processors.NewEnhancer(client, log,
		cfg.EnhanceMaxTokens, cfg.EnhanceOverlapTokens, cfg.EnhanceWorkers, cfg.CodeRepairLimit)
	pdfgen := processors.NewPDFGenerator(cfg, records, enhancer, processors.FPDFRenderer{}, log)
	transcoder := processors.NewFFmpegTranscoder(cfg.SegmentSeconds, log)
	transcriber := processors.NewTranscriber(client, core.ProbeDuration, log)

	pipe := pipeline.New(cfg, records, transcoder, transcriber, upserter, pdfgen, pipeline.AsyncExecutor{}, log)

	engine := rag.NewEngine(table, index, client, client, log)
	chat := rag.NewTranscriptChat(client, log)

	registry := tasks.NewRegistry()
	fetcher := tasks.NewYTDLPFetcher(log)
	downloader := tasks.NewDownloader(cfg, registry, fetcher, records, pipe, log)

	srv := server.New(cfg, records, pipe, engine, chat, pdfgen, downloader, registry, log)
	return srv.ListenAndServe()
}
