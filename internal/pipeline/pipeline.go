// Package pipeline implements the control plane of the data-movement
// orchestrator: the record generator, the validation gateway, the locked
// ingestion phases, the adaptive audit and the stale-lock sweeper. Phases
// only talk to the record store, the adapters and the clock they are handed;
// there are no ambient globals.
package pipeline

import (
	"encoding/json"
	"log/slog"
	"time"

	"driveplane/internal/adapters"
	"driveplane/internal/identity"
	"driveplane/internal/retry"
	"driveplane/internal/store"
	"driveplane/internal/timeparse"
	"driveplane/internal/window"
)

// AuditConfig bounds the adaptive reconciliation loop.
type AuditConfig struct {
	MaxWait      time.Duration
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Config carries everything a pipeline needs besides its collaborators.
type Config struct {
	// Identity is the (source, stage, target) triple this pipeline moves
	// data between. Stage and target sub-categories are derived per record.
	Identity store.Identity

	// StagePrefix is the path prefix staged artifacts are written under.
	StagePrefix string

	Priority       float64
	Retry          retry.Config
	Audit          AuditConfig
	SettleInterval time.Duration
	StaleThreshold time.Duration

	// HostRetries is the total number of passes a run makes over the locked
	// phase sequence, the first pass included; after a transient failure the
	// next pass resumes at the first non-completed phase.
	HostRetries    int
	HostRetryDelay time.Duration
}

// Pipeline wires the phases to their collaborators. One Pipeline serves one
// identity triple; runs against it are serialized by the record lock, not by
// this struct.
type Pipeline struct {
	store    store.RecordStore
	windows  *window.Calculator
	source   adapters.Source
	stage    adapters.Stage
	target   adapters.Target
	transfer adapters.Transfer
	clock    adapters.Clock
	log      *slog.Logger
	cfg      Config
}

// New assembles a pipeline from explicit dependencies.
func New(
	s store.RecordStore,
	w *window.Calculator,
	source adapters.Source,
	stage adapters.Stage,
	target adapters.Target,
	transfer adapters.Transfer,
	clock adapters.Clock,
	log *slog.Logger,
	cfg Config,
) *Pipeline {
	if cfg.Priority == 0 {
		cfg.Priority = 1.1
	}
	if cfg.SettleInterval == 0 {
		cfg.SettleInterval = 2 * time.Minute
	}
	if cfg.StaleThreshold == 0 {
		cfg.StaleThreshold = 2 * time.Hour
	}
	if cfg.Audit.Multiplier < 1 {
		cfg.Audit.Multiplier = 2
	}
	if cfg.HostRetries <= 0 {
		cfg.HostRetries = 3
	}
	if cfg.HostRetryDelay == 0 {
		cfg.HostRetryDelay = 5 * time.Minute
	}
	return &Pipeline{
		store:    s,
		windows:  w,
		source:   source,
		stage:    stage,
		target:   target,
		transfer: transfer,
		clock:    clock,
		log:      log,
		cfg:      cfg,
	}
}

// buildRecord materializes the record for a window. The same window always
// yields the same ids; only the stage path in miscellaneous carries the
// generation epoch.
func (p *Pipeline) buildRecord(w *window.Window, now time.Time) *store.PipelineRecord {
	id := p.cfg.Identity

	stageBase := identity.StageBase(p.cfg.StagePrefix, w.TargetDay, w.Start)
	id.StageSubCategory = stageBase
	id.TargetSubCategory = stageBase + "/%"

	sourceID := identity.ComponentID(identity.Endpoint{
		Name: id.SourceName, Category: id.SourceCategory, SubCategory: id.SourceSubCategory,
	}, w.Start, w.End)
	stageID := identity.ComponentID(identity.Endpoint{
		Name: id.StageName, Category: id.StageCategory, SubCategory: id.StageSubCategory,
	}, w.Start, w.End)
	targetID := identity.ComponentID(identity.Endpoint{
		Name: id.TargetName, Category: id.TargetCategory, SubCategory: id.TargetSubCategory,
	}, w.Start, w.End)
	pipelineID := identity.PipelineID(sourceID, stageID, targetID, w.TargetDay, w.Start, w.End)

	misc, _ := json.Marshal(store.Misc{
		StagePath: identity.StagePath(stageBase, now.Unix()),
	})

	return &store.PipelineRecord{
		PipelineID: pipelineID,

		SourceID:          sourceID,
		SourceName:        id.SourceName,
		SourceCategory:    id.SourceCategory,
		SourceSubCategory: id.SourceSubCategory,

		StageID:          stageID,
		StageName:        id.StageName,
		StageCategory:    id.StageCategory,
		StageSubCategory: id.StageSubCategory,

		TargetID:          targetID,
		TargetName:        id.TargetName,
		TargetCategory:    id.TargetCategory,
		TargetSubCategory: id.TargetSubCategory,

		TargetDay:       w.TargetDay,
		WindowStartTime: w.Start,
		WindowEndTime:   w.End,
		Granularity:     timeparse.Format(w.Achieved),

		SourceToStage: store.PhaseState{Status: store.StatusPending},
		StageToTarget: store.PhaseState{Status: store.StatusPending},
		Audit:         store.PhaseState{Status: store.StatusPending},

		PipelineStatus:   store.StatusPending,
		PipelinePriority: p.cfg.Priority,
		RetryAttempt:     0,
		Miscellaneous:    misc,

		RecordFirstCreatedTime: now,
		RecordLastUpdatedTime:  now,
	}
}

func (p *Pipeline) recordWindow(rec *store.PipelineRecord) adapters.Window {
	return adapters.Window{Start: rec.WindowStartTime, End: rec.WindowEndTime}
}
