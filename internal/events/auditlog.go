package events

import (
	"context"
	"encoding/json"
	"log"

	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
)

type appender interface {
	Append(ctx context.Context, e syncx.Event) error
}

// AuditLog writes every event to the event_log table keyed by attempt id.
type AuditLog struct {
	repo appender
}

func NewAuditLog(repo *syncx.EventRepo) *AuditLog { return &AuditLog{repo: repo} }

func (a *AuditLog) Publish(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("audit: marshal %s: %v", e.Type, err)
		return
	}
	if err := a.repo.Append(context.WithoutCancel(ctx), syncx.Event{
		Type:     string(e.Type),
		Key:      e.AttemptID,
		DataJSON: string(data),
	}); err != nil {
		log.Printf("audit: append %s for attempt %s: %v", e.Type, e.AttemptID, err)
	}
}
