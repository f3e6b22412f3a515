package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/agentmemory/memd/internal/audit"
	"github.com/agentmemory/memd/internal/classifier"
	"github.com/agentmemory/memd/internal/config"
	"github.com/agentmemory/memd/internal/daemonrunner"
	"github.com/agentmemory/memd/internal/embed"
	"github.com/agentmemory/memd/internal/eventstore"
	"github.com/agentmemory/memd/internal/indexlexical"
	"github.com/agentmemory/memd/internal/indexvector"
	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/metrics"
	"github.com/agentmemory/memd/internal/outbox"
	"github.com/agentmemory/memd/internal/project"
	"github.com/agentmemory/memd/internal/retrieval"
	"github.com/agentmemory/memd/internal/rpc"
	"github.com/agentmemory/memd/internal/scheduler"
	"github.com/agentmemory/memd/internal/storage"
	"github.com/agentmemory/memd/internal/storage/sqlite"
	"github.com/agentmemory/memd/internal/tier"
	"github.com/agentmemory/memd/internal/toc"
	"github.com/agentmemory/memd/internal/topics"
	"github.com/agentmemory/memd/internal/types"
	"github.com/agentmemory/memd/internal/usage"
)

// vectorDim is the dimensionality the stand-in embedder and the ANN
// index are both built around. Changing it requires rebuilding
// vector.faiss from scratch.
const vectorDim = 128

// daemonComponents holds every domain object `start` wires together, so
// the scheduler job bodies and the rpc.Server's Dependencies can both
// reach into it without a second construction path.
type daemonComponents struct {
	cfg         *config.Config
	projectDir  string
	varDir      string
	dbPath      string
	version     string
	log         *slog.Logger
	metrics     *metrics.Recorder

	engine         storage.Engine
	events         *eventstore.Store
	toc            *toc.Store
	topics         *topics.Store
	lexical        *indexlexical.Indexer
	vector         *indexvector.Indexer
	vectorEmbedder indexvector.Embedder
	usage          *usage.Tracker
	audit          *audit.Log
	outboxDriver   *outbox.Driver
	classifier     *classifier.Classifier
	tier           *tier.Detector
	executor       *retrieval.Executor
	agentic        *retrieval.AgenticSearcher
	registry       *scheduler.Registry
	sched          *scheduler.Scheduler
	server         *rpc.Server

	lock *daemonrunner.Handle
}

// buildComponents opens storage and constructs every domain component
// per SPEC_FULL's component design, wiring the six scheduler jobs and
// registering them, but does not yet start the rpc.Server or the
// scheduler's run loop (see startDaemon).
func buildComponents(ctx context.Context, cfg *config.Config, projectDir string, version string, log *slog.Logger) (*daemonComponents, error) {
	varDir := project.VarDir(projectDir)
	if err := project.EnsureVarDir(projectDir); err != nil {
		return nil, merrors.Wrap(merrors.Storage, "memd.build", err)
	}

	dbPath := cfg.GetString("db.path")
	if dbPath == "" || dbPath == "./.memd/var/memory.db" {
		dbPath = project.VarPath(projectDir, "memory.db")
	}

	engine, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "memd.build", err)
	}

	events, err := eventstore.Open(engine)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	tocStore := toc.Open(engine)

	topicsStore := topics.Open(engine, topics.ImportanceParams{
		HalfLifeDays:       cfg.GetFloat64("topics.half_life_days"),
		RecencyBoostFactor: cfg.GetFloat64("topics.recency_boost_factor"),
		MinScore:           cfg.GetFloat64("topics.min_score"),
	})

	lexicalPath := project.VarPath(projectDir, "lexical.bleve")
	lexical, err := indexlexical.Open(lexicalPath, tocStore)
	if err != nil {
		log.Warn("lexical indexer unavailable, BM25 layer disabled", "error", err)
		lexical = nil
	}

	embedder := embed.NewHashing(vectorDim)
	vectorPath := project.VarPath(projectDir, "vector.faiss")
	vector, err := indexvector.Open(vectorPath, vectorDim, engine, tocStore, embedder)
	if err != nil {
		log.Warn("vector indexer unavailable, vector layer disabled", "error", err)
		vector = nil
	}

	usageTracker, err := usage.New(engine, cfg.GetInt("usage.cache_size"), cfg.GetBool("usage.enabled"))
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.Open(varDir)
	if err != nil {
		_ = engine.Close()
		return nil, merrors.Wrap(merrors.Storage, "memd.build", err)
	}

	var adapters []outbox.Adapter
	if lexical != nil {
		adapters = append(adapters, lexical)
	}
	if vector != nil {
		adapters = append(adapters, vector)
	}
	outboxOpts := outbox.DefaultOptions()
	outboxOpts.Cleanup = true
	outboxDriver := outbox.NewDriver(events, adapters, outboxOpts, log)

	clf := classifier.New(classifier.Keywords{
		Explore: cfg.GetStringSlice("classifier.keywords.explore"),
		Answer:  cfg.GetStringSlice("classifier.keywords.answer"),
		Locate:  cfg.GetStringSlice("classifier.keywords.locate"),
	}, cfg.GetFloat64("classifier.min_confidence"))

	probeTimeout := time.Duration(cfg.GetInt("tier.probe_timeout_ms")) * time.Millisecond
	cacheTTL := time.Duration(cfg.GetInt("tier.cache_ttl_ms")) * time.Millisecond
	tierDetector := tier.New(
		bm25ProbeFunc(lexical),
		vectorProbeFunc(vector, embedder),
		topicsProbeFunc(topicsStore),
		probeTimeout, cacheTTL,
	)

	agentic := retrieval.NewAgenticSearcher(tocStore, cfg.GetInt("stopcond.default.beam_width"), cfg.GetInt("stopcond.default.max_depth"))
	weights := map[types.Layer]float64{}
	executor := retrieval.New(
		bm25LayerFunc(lexical),
		vectorLayerFunc(vector, embedder),
		topicsLayerFunc(topicsStore),
		agentic.Search,
		weights,
	)

	registry := scheduler.NewRegistry()
	recorder := buildMetricsRecorder()

	d := &daemonComponents{
		cfg:            cfg,
		projectDir:     projectDir,
		varDir:         varDir,
		dbPath:         dbPath,
		version:        version,
		log:            log,
		metrics:        recorder,
		engine:         engine,
		events:         events,
		toc:            tocStore,
		topics:         topicsStore,
		lexical:        lexical,
		vector:         vector,
		vectorEmbedder: embedder,
		usage:          usageTracker,
		audit:          auditLog,
		outboxDriver:   outboxDriver,
		classifier:     clf,
		tier:           tierDetector,
		executor:       executor,
		agentic:        agentic,
		registry:       registry,
	}

	jobsPath := filepath.Join(projectDir, "jobs.toml")
	specs, err := scheduler.LoadJobSpecs(jobsPath)
	if err != nil {
		return nil, err
	}
	if err := registerJobs(registry, specs, d, recorder); err != nil {
		return nil, err
	}
	d.sched = scheduler.New(registry, log)

	return d, nil
}

// startServer opens the daemon lock, builds the rpc.Server, and returns
// it unstarted; the caller runs Server.Start and Scheduler.Run.
func (d *daemonComponents) startServer() error {
	lock, err := daemonrunner.Acquire(d.varDir, d.dbPath, d.version)
	if err != nil {
		return err
	}
	d.lock = lock

	socketPath := project.VarPath(d.projectDir, "memd.sock")
	d.server = rpc.NewServer(socketPath, rpc.Dependencies{
		Engine:         d.engine,
		Events:         d.events,
		TOC:            d.toc,
		Topics:         d.topics,
		Classifier:     d.classifier,
		Tier:           d.tier,
		Executor:       d.executor,
		Usage:          d.usage,
		Scheduler:      d.sched,
		Lexical:        d.lexical,
		Vector:         d.vector,
		VectorEmbedder: d.vectorEmbedder,
		Audit:          d.audit,
		DefaultStop:    defaultStopConditions(d.cfg),
		Version:        d.version,
		DBPath:         d.dbPath,
		Metrics:        d.metrics,
	}, d.log)
	return nil
}

// close releases every resource buildComponents opened, in reverse
// dependency order. Safe to call on a partially built daemonComponents.
func (d *daemonComponents) close(ctx context.Context) {
	if d.lock != nil {
		if err := d.lock.Release(); err != nil {
			d.log.Error("release daemon lock", "error", err)
		}
	}
	if d.lexical != nil {
		if err := d.lexical.Close(); err != nil {
			d.log.Error("close lexical indexer", "error", err)
		}
	}
	if d.vector != nil {
		if err := d.vector.Close(); err != nil {
			d.log.Error("close vector indexer", "error", err)
		}
	}
	if d.metrics != nil {
		if err := d.metrics.Shutdown(ctx); err != nil {
			d.log.Error("shutdown metrics recorder", "error", err)
		}
	}
	if d.engine != nil {
		if err := d.engine.Close(); err != nil {
			d.log.Error("close storage engine", "error", err)
		}
	}
}

// defaultStopConditions reads the stopcond.default.* keys into the
// StopConditions RouteQuery falls back to when a caller sends none.
func defaultStopConditions(cfg *config.Config) types.StopConditions {
	return types.StopConditions{
		MaxNodes:      cfg.GetInt("stopcond.default.max_nodes"),
		MaxDepth:      cfg.GetInt("stopcond.default.max_depth"),
		MaxRPCCalls:   cfg.GetInt("stopcond.default.max_rpc_calls"),
		MaxTokens:     cfg.GetInt("stopcond.default.max_tokens"),
		TimeoutMs:     cfg.GetInt("stopcond.default.timeout_ms"),
		BeamWidth:     cfg.GetInt("stopcond.default.beam_width"),
		MinConfidence: cfg.GetFloat64("stopcond.default.min_confidence"),
	}
}

func buildMetricsRecorder() *metrics.Recorder {
	recorder, err := metrics.New(nil)
	if err != nil {
		return nil
	}
	return recorder
}

// fmtDuration renders a duration the way status output wants it:
// whole seconds for anything a human would read at a glance.
func fmtDuration(d time.Duration) string {
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
