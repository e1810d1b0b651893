package push

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/studyctl/internal/logging"
)

// CacheTarget is the cache side of an entity store.
type CacheTarget[T any] interface {
	Put(ctx context.Context, rec T) error
	Remove(ctx context.Context, id string) error
}

// CacheSync returns a handler that mirrors events into target:
// created, updated and archived records are written, deleted ones removed.
// The cache is a backup here, so failures are logged and dropped.
func CacheSync[T any](target CacheTarget[T], log logging.Logger) Handler {
	if log == nil {
		log = logging.Discard()
	}
	return func(ctx context.Context, ev Event) {
		var err error
		switch ev.Action() {
		case ActionCreated, ActionUpdated, ActionArchived:
			if !ev.HasEntity() {
				return
			}
			var rec T
			if err = json.Unmarshal(ev.Entity, &rec); err == nil {
				err = target.Put(ctx, rec)
			}
		case ActionDeleted:
			if ev.EntityID == "" {
				return
			}
			err = target.Remove(ctx, ev.EntityID)
		default:
			return
		}
		if err != nil {
			log.Warn(ctx, "push cache sync failed", "type", ev.Type, "id", ev.EntityID, "err", err)
		}
	}
}
