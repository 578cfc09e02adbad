package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goliatone/go-fleet-auth"
	"github.com/goliatone/go-fleet-auth/activitymap"
	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivityModel is the Bun model for a recorded session activity.
type ActivityModel struct {
	bun.BaseModel `bun:"table:auth_activity,alias:aac"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	ActorID    string    `bun:"actor_id,notnull"`
	Verb       string    `bun:"verb,notnull"`
	ObjectType string    `bun:"object_type"`
	ObjectID   string    `bun:"object_id"`
	Channel    string    `bun:"channel"`
	Metadata   string    `bun:"metadata"`
	OccurredAt time.Time `bun:"occurred_at,notnull"`
}

// ActivityRepository implements auth.ActivitySink using Bun.
type ActivityRepository struct {
	bunrepo.Repository[*ActivityModel]
	db   *bun.DB
	opts []activitymap.Option
}

var _ auth.ActivitySink = (*ActivityRepository)(nil)

func NewActivityRepository(db *bun.DB, opts ...activitymap.Option) *ActivityRepository {
	repo := bunrepo.NewRepository[*ActivityModel](db, bunrepo.ModelHandlers[*ActivityModel]{
		NewRecord: func() *ActivityModel { return &ActivityModel{} },
		GetID: func(m *ActivityModel) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *ActivityModel, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
	})

	return &ActivityRepository{Repository: repo, db: db, opts: opts}
}

// Init creates the auth_activity table when missing.
func (r *ActivityRepository) Init(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*ActivityModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Record implements auth.ActivitySink.
func (r *ActivityRepository) Record(ctx context.Context, event auth.ActivityEvent) error {
	n := activitymap.Normalize(event, r.opts...)

	metadata := ""
	if len(n.Metadata) > 0 {
		raw, err := json.Marshal(n.Metadata)
		if err != nil {
			return err
		}
		metadata = string(raw)
	}

	_, err := r.Create(ctx, &ActivityModel{
		ID:         uuid.New(),
		ActorID:    n.ActorID,
		Verb:       n.Verb,
		ObjectType: n.ObjectType,
		ObjectID:   n.ObjectID,
		Channel:    n.Channel,
		Metadata:   metadata,
		OccurredAt: n.OccurredAt,
	})
	return err
}

// Recent returns up to limit records, newest first.
func (r *ActivityRepository) Recent(ctx context.Context, limit int) ([]activitymap.Normalized, error) {
	if limit <= 0 {
		limit = 20
	}

	var models []ActivityModel
	err := r.db.NewSelect().
		Model(&models).
		Order("occurred_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]activitymap.Normalized, 0, len(models))
	for _, m := range models {
		n := activitymap.Normalized{
			ActorID:    m.ActorID,
			Verb:       m.Verb,
			ObjectType: m.ObjectType,
			ObjectID:   m.ObjectID,
			Channel:    m.Channel,
			OccurredAt: m.OccurredAt,
		}
		if m.Metadata != "" {
			if err := json.Unmarshal([]byte(m.Metadata), &n.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, n)
	}
	return out, nil
}
