package repository

import (
	"context"

	"github.com/cobra-poc/messaging-bridge/internal/database"
	"github.com/cobra-poc/messaging-bridge/internal/model"
)

// EventRepository reads incident events. Events are owned by the wider
// application; the bridge never writes them.
type EventRepository interface {
	FindByID(ctx context.Context, id string) (*model.Event, error)
}

type eventRepo struct {
	db database.DBTX
}

func NewEventRepository(db database.DBTX) EventRepository {
	return &eventRepo{db: db}
}

func (r *eventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	var evt model.Event
	err := r.db.GetContext(ctx, &evt, `SELECT * FROM events WHERE id = $1`, id)
	return HandleNotFound(&evt, err)
}
