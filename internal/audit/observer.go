package audit

import (
	"context"

	"github.com/anime-shed/vision-guard-go/internal/logger"
	"github.com/anime-shed/vision-guard-go/internal/observer"
	"github.com/anime-shed/vision-guard-go/pkg/models"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
)

// Observer writes every unsafe moderation verdict to the store
type Observer struct {
	store *Store
}

// NewObserver creates an observer backed by store
func NewObserver(store *Store) *Observer {
	return &Observer{store: store}
}

// OnEvent records moderation_completed events whose verdict is unsafe
func (o *Observer) OnEvent(ctx context.Context, event observer.AnalysisEvent) {
	if event.EventType != observer.ModerationCompleted {
		return
	}
	if safe, ok := event.Metadata[observer.MetaIsSafe].(bool); !ok || safe {
		return
	}

	record, err := recordFromEvent(event)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to build audit record")
		return
	}
	if err := o.store.Save(ctx, record); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to persist flagged verdict")
	}
}

// GetObserverName returns the observer name
func (o *Observer) GetObserverName() string {
	return "audit_observer"
}

func recordFromEvent(event observer.AnalysisEvent) (*Record, error) {
	record := &Record{
		RequestID: event.RequestID,
		Source:    event.Source,
		CreatedAt: event.Timestamp,
	}
	record.Severity, _ = event.Metadata[observer.MetaSeverity].(string)
	record.OverallScore, _ = event.Metadata[observer.MetaOverallScore].(float64)
	record.FlaggedCategory, _ = event.Metadata[observer.MetaFlaggedCategory].(string)
	record.Cached, _ = event.Metadata[observer.MetaCached].(bool)

	flags, _ := event.Metadata[observer.MetaFlags].([]models.CategoryScore)
	if flags == nil {
		flags = []models.CategoryScore{}
	}
	raw, err := sonic.Marshal(flags)
	if err != nil {
		return nil, err
	}
	record.Flags = datatypes.JSON(raw)
	return record, nil
}
