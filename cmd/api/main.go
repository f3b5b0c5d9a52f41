package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	bedrockagent "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	rek "github.com/aws/aws-sdk-go-v2/service/rekognition"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/veriscope/veriscope/internal/application"
	appjobs "github.com/veriscope/veriscope/internal/application/jobs"
	"github.com/veriscope/veriscope/internal/application/pipeline"
	"github.com/veriscope/veriscope/internal/config"
	"github.com/veriscope/veriscope/internal/domain/jobs"
	"github.com/veriscope/veriscope/internal/domain/llmconfig"
	openaiclient "github.com/veriscope/veriscope/internal/infra/ai/openai"
	"github.com/veriscope/veriscope/internal/infra/ai/prompt"
	augmentinfra "github.com/veriscope/veriscope/internal/infra/augment"
	mysqlp "github.com/veriscope/veriscope/internal/infra/db/mysql"
	postgresp "github.com/veriscope/veriscope/internal/infra/db/postgres"
	"github.com/veriscope/veriscope/internal/infra/httpserver"
	"github.com/veriscope/veriscope/internal/infra/imaging"
	memqueue "github.com/veriscope/veriscope/internal/infra/queue/memory"
	sqsqueue "github.com/veriscope/veriscope/internal/infra/queue/sqs"
	tavilysearch "github.com/veriscope/veriscope/internal/infra/search/tavily"
	minioStore "github.com/veriscope/veriscope/internal/infra/storage"
	rekdetector "github.com/veriscope/veriscope/internal/infra/vision/rekognition"
	"github.com/veriscope/veriscope/internal/middleware"
	"github.com/veriscope/veriscope/internal/worker"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, closeLog := config.SetupLogger(cfg.Log.File, config.ParseLevel(cfg.Log.Level))
	defer closeLog()

	ctx := context.Background()

	// connect database. The job store has a postgres dialect too; wire it
	// here when running against postgres.
	var jobRepo jobs.Repository
	db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
	if err != nil {
		log.Fatalf("mysql connect error: %v", err)
	}
	defer db.Close()
	jobRepo = mysqlp.NewJobRepository(db)
	if cfg.Database.Driver == "postgres" {
		pdb, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		defer pdb.Close()
		jobRepo = postgresp.NewJobRepository(pdb)
	}
	logRepo := mysqlp.NewLogRepository(db)
	checkRepo := mysqlp.NewFileCheckRepository(db)
	catalogSvc := mysqlp.NewCatalogRepository(db)
	var configRepo llmconfig.Store = mysqlp.NewLLMConfigRepository(db)
	healthDB := middleware.HealthChecker(&middleware.DatabaseHealthChecker{DB: db})

	// init minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	// init aws clients
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		log.Fatalf("aws config error: %v", err)
	}
	detector := rekdetector.NewDetector(rek.NewFromConfig(awsCfg))
	augmenter := &augmentinfra.Provider{
		KnowledgeBase: augmentinfra.NewKnowledgeBaseClient(bedrockagent.NewFromConfig(awsCfg)),
		RestAPI:       augmentinfra.NewRestAPIClient(),
		Athena:        augmentinfra.NewAthenaClient(athena.NewFromConfig(awsCfg), cfg.AWS.AthenaOutputLocation),
	}

	// queue: SQS when configured, in-process fallback for single-node runs
	var queue jobs.Queue
	if cfg.AWS.QueueURL != "" {
		queue = sqsqueue.NewQueue(awssqs.NewFromConfig(awsCfg), cfg.AWS.QueueURL)
	} else {
		queue = memqueue.NewQueue(256, cfg.JobTimeout())
		logger.Warn("no queue url configured, using in-process queue")
	}

	assessor := openaiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	composer := imaging.Composer{}

	orch := &pipeline.Orchestrator{
		Jobs:      jobRepo,
		Logs:      logRepo,
		Checks:    checkRepo,
		Catalog:   catalogSvc,
		Files:     store,
		Detector:  detector,
		Assessor:  assessor,
		Searcher:  tavilysearch.NewClient(cfg.Tavily.APIKey),
		Augmenter: augmenter,
		Grids:     composer,
		Config:    configRepo,
		Clock:     application.SystemClock{},
		Logger:    logger,
		Opts: pipeline.Options{
			Concurrency:      cfg.Pipeline.Concurrency,
			MaxAttempts:      cfg.Pipeline.MaxAttempts,
			SecondPassMargin: cfg.Pipeline.SecondPassMargin,
			MaxImagesPerCall: cfg.Pipeline.MaxImagesPerCall,
			CallTimeout:      cfg.CallTimeout(),
			Defaults: llmconfig.Snapshot{
				SystemPrompt:     prompt.GetSystemPrompt(),
				SecondPassPrompt: prompt.GetSecondPassPrompt(),
				ModelID:          cfg.OpenAI.Model,
			},
		},
	}

	svc := &appjobs.Service{
		Jobs:     jobRepo,
		Logs:     logRepo,
		Checks:   checkRepo,
		Catalog:  catalogSvc,
		Queue:    queue,
		Files:    store,
		Detector: detector,
		Assessor: assessor,
		Grids:    composer,
		Config:   configRepo,
		Clock:    application.SystemClock{},
	}

	// start worker pool
	workerCtx, stopWorkers := context.WithCancel(ctx)
	pool := &worker.Pool{
		Queue:      queue,
		Orch:       orch,
		Logger:     logger,
		Workers:    cfg.Pipeline.Workers,
		JobTimeout: cfg.JobTimeout(),
	}
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		if err := pool.Run(workerCtx); err != nil {
			logger.Error("worker pool stopped", "err", err)
		}
	}()

	handler := httpserver.NewRouter(svc, configRepo, logger,
		map[string]middleware.HealthChecker{"database": healthDB})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	stopWorkers()
	<-poolDone

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}
