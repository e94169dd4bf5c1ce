package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/internal/graph"
	"techdocs-rag-platform/internal/logger"
)

// MaintenanceService runs scheduled background jobs: a nightly sweep
// deleting graph entities whose source documents are gone, and a prune
// of relationship edges orphaned by interrupted deletes.
type MaintenanceService struct {
	scheduler  *gocron.Scheduler
	graphStore *graph.Store
	crossRef   *CrossRefService
	sweepCron  string
}

func NewMaintenanceService(cfg *config.Config, graphStore *graph.Store, crossRef *CrossRefService) *MaintenanceService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &MaintenanceService{
		scheduler:  s,
		graphStore: graphStore,
		crossRef:   crossRef,
		sweepCron:  cfg.GraphSweepCron,
	}
}

func (ms *MaintenanceService) Start() error {
	if ms.graphStore.Available() {
		_, err := ms.scheduler.Cron(ms.sweepCron).Tag("graph-sweep").Do(ms.runSweep)
		if err != nil {
			return err
		}
	}
	_, err := ms.scheduler.Cron(ms.sweepCron).Tag("relationship-prune").Do(ms.runPrune)
	if err != nil {
		return err
	}

	ms.scheduler.StartAsync()
	logger.Info("Maintenance scheduler started", "sweep_cron", ms.sweepCron)
	return nil
}

func (ms *MaintenanceService) Stop() {
	ms.scheduler.Stop()
}

func (ms *MaintenanceService) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := ms.graphStore.SweepOrphans(ctx)
	if err != nil {
		logger.Error("Graph orphan sweep failed", "error", err)
		return
	}
	logger.Info("Graph orphan sweep completed", "nodes_deleted", deleted)
}

func (ms *MaintenanceService) runPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pruned, err := ms.crossRef.PruneStaleRelationships(ctx)
	if err != nil {
		logger.Error("Relationship prune failed", "error", err)
		return
	}
	logger.Info("Relationship prune completed", "edges_deleted", pruned)
}
