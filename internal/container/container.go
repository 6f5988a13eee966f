package container

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/anime-shed/vision-guard-go/internal/analyzer"
	"github.com/anime-shed/vision-guard-go/internal/audit"
	"github.com/anime-shed/vision-guard-go/internal/cache"
	"github.com/anime-shed/vision-guard-go/internal/config"
	"github.com/anime-shed/vision-guard-go/internal/engine/onnx"
	"github.com/anime-shed/vision-guard-go/internal/factory"
	"github.com/anime-shed/vision-guard-go/internal/logger"
	"github.com/anime-shed/vision-guard-go/internal/observer"
	"github.com/anime-shed/vision-guard-go/internal/repository"
	"github.com/anime-shed/vision-guard-go/internal/service"
	"github.com/anime-shed/vision-guard-go/internal/transport"
	"github.com/anime-shed/vision-guard-go/pkg/validation"

	"github.com/sirupsen/logrus"
)

// Container holds all application dependencies
type Container struct {
	config               *config.Config
	closers              []io.Closer
	runtimeReady         bool
	workerPool           *analyzer.WorkerPool
	publisher            *observer.EventPublisher
	metrics              *observer.PrometheusObserver
	resultCache          cache.ResultCache
	auditStore           *audit.Store
	imageRepository      repository.ImageRepository
	imageAnalysisService service.ImageAnalysisService
	handler              http.Handler
}

// NewContainer creates a new dependency injection container. A model that fails to
// load leaves its endpoints unavailable instead of failing startup.
func NewContainer(cfg *config.Config) (*Container, error) {
	logger.SetLevel(cfg.LogLevel)

	runtimeReady := true
	if err := onnx.InitRuntime(cfg.ONNXRuntimeLib); err != nil {
		logger.WithError(err).Error("ONNX runtime unavailable, inference endpoints disabled")
		runtimeReady = false
	}

	c, err := build(cfg, factory.NewComponentFactory(cfg), runtimeReady)
	if err != nil {
		if runtimeReady {
			_ = onnx.ShutdownRuntime()
		}
		return nil, err
	}
	return c, nil
}

// build wires the dependency graph from the given factories
func build(cfg *config.Config, components *factory.ComponentFactory, runtimeReady bool) (*Container, error) {
	c := &Container{config: cfg, runtimeReady: runtimeReady}

	policy, err := loadPolicy(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load moderation policy: %w", err)
	}

	var (
		detector  *analyzer.GuardedDetector
		moderator *analyzer.GuardedModerator
	)
	if runtimeReady {
		detector, moderator, err = c.loadEngines(cfg, components.EngineFactory, policy)
		if err != nil {
			c.closeResources()
			return nil, err
		}
	}

	blobs, err := components.StorageFactory.CreateBlobStorage()
	if err != nil {
		c.closeResources()
		return nil, fmt.Errorf("failed to create blob storage: %w", err)
	}
	urlValidator := validation.NewURLValidatorWithOptions(nil, cfg.AllowedSourceHosts)
	c.imageRepository = repository.NewRemoteImageRepository(
		components.StorageFactory.CreateFetcher(), blobs, urlValidator, cfg.MaxFileSize)

	c.workerPool = analyzer.NewWorkerPool(cfg.InferenceWorkers)
	c.workerPool.Start()

	c.metrics = observer.NewPrometheusObserver()
	if err := c.registerGauges(); err != nil {
		c.workerPool.Close()
		c.closeResources()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	c.openCache(cfg)
	c.openAuditLog(cfg)

	c.publisher = observer.NewEventPublisher()
	c.publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	c.publisher.Subscribe(c.metrics)
	var handlerOpts []transport.Option
	if c.auditStore != nil {
		c.publisher.Subscribe(audit.NewObserver(c.auditStore))
		handlerOpts = append(handlerOpts, transport.WithAuditLog(c.auditStore))
	}

	c.imageAnalysisService = service.NewImageAnalysisService(service.Dependencies{
		Validator:  validation.NewImageValidator(nil),
		Detector:   detector,
		Moderator:  moderator,
		Pool:       c.workerPool,
		Repository: c.imageRepository,
		Events:     c.publisher,
		Cache:      c.resultCache,
	}, service.Options{
		MaxFileSize:       cfg.MaxFileSize,
		AllowedExtensions: cfg.AllowedExtensions,
		FetchTimeout:      cfg.ImageFetchTimeout,
		AnalysisTimeout:   cfg.AnalysisTimeout,
	})
	c.handler = transport.NewHandler(c.imageAnalysisService, c.metrics.Handler(), cfg, handlerOpts...)

	logger.WithFields(logrus.Fields{
		"detection":  detector != nil,
		"moderation": moderator != nil,
		"workers":    cfg.InferenceWorkers,
		"azure":      blobs != nil,
		"cache":      c.resultCache != nil,
		"audit":      c.auditStore != nil,
	}).Info("Container initialized")

	return c, nil
}

// loadEngines returns a guard for every engine that loaded. Only an invalid baseline
// threshold is fatal; a model load failure is logged and leaves that guard nil.
func (c *Container) loadEngines(cfg *config.Config, engines factory.EngineFactory, policy analyzer.ModerationPolicy) (*analyzer.GuardedDetector, *analyzer.GuardedModerator, error) {
	var (
		detector  *analyzer.GuardedDetector
		moderator *analyzer.GuardedModerator
	)

	if engine, err := engines.CreateDetectionEngine(); err != nil {
		logger.WithError(err).WithField("model", cfg.DetectionModelPath).Error("Failed to load detection model")
	} else {
		c.closers = append(c.closers, engine)
		detector, err = analyzer.NewGuardedDetector(engine, analyzer.DetectionThresholds{
			Confidence: cfg.ConfidenceThreshold,
			IoU:        cfg.IoUThreshold,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("invalid detection baseline: %w", err)
		}
	}

	if engine, err := engines.CreateClassificationEngine(); err != nil {
		logger.WithError(err).WithField("model", cfg.ModerationModelPath).Error("Failed to load moderation model")
	} else {
		c.closers = append(c.closers, engine)
		moderator, err = analyzer.NewGuardedModerator(engine, cfg.ModerationThreshold, policy)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid moderation baseline: %w", err)
		}
	}

	return detector, moderator, nil
}

func loadPolicy(cfg *config.Config) (analyzer.ModerationPolicy, error) {
	policy, err := analyzer.PolicyPreset(cfg.ModerationPolicyPreset)
	if err != nil {
		return analyzer.ModerationPolicy{}, err
	}
	if cfg.ModerationPolicyFile == "" {
		return policy, nil
	}
	return analyzer.LoadPolicyFile(cfg.ModerationPolicyFile, policy)
}

// openCache connects the result cache. An unreachable redis leaves caching off.
func (c *Container) openCache(cfg *config.Config) {
	if cfg.RedisURL == "" {
		return
	}
	resultCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		logger.WithError(err).Warn("Result cache unavailable, continuing without it")
		return
	}
	c.resultCache = resultCache
	c.closers = append(c.closers, resultCache)
}

// openAuditLog opens the flagged-verdict store. Failure disables the audit endpoint.
func (c *Container) openAuditLog(cfg *config.Config) {
	if cfg.AuditDBPath == "" {
		return
	}
	store, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		logger.WithError(err).WithField("path", cfg.AuditDBPath).Error("Moderation audit log unavailable")
		return
	}
	c.auditStore = store
	c.closers = append(c.closers, store)
}

func (c *Container) registerGauges() error {
	if err := c.metrics.RegisterHostGauges(); err != nil {
		return err
	}
	if err := c.metrics.RegisterGauge("vision_pool_active_workers", "Inference workers currently running a job.", func() float64 {
		return float64(c.workerPool.GetStats().ActiveWorkers)
	}); err != nil {
		return err
	}
	return c.metrics.RegisterGauge("vision_pool_queued_jobs", "Inference jobs waiting for a worker.", func() float64 {
		return float64(c.workerPool.GetStats().QueuedJobs)
	})
}

func (c *Container) closeResources() error {
	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Close drains in-flight work and releases engines, cache and audit log
func (c *Container) Close() error {
	if c.workerPool != nil {
		c.workerPool.Close()
	}
	if c.publisher != nil {
		c.publisher.Wait()
	}

	err := c.closeResources()
	if c.runtimeReady {
		c.runtimeReady = false
		err = errors.Join(err, onnx.ShutdownRuntime())
	}
	return err
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Service returns the analysis service
func (c *Container) Service() service.ImageAnalysisService {
	return c.imageAnalysisService
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}
