// Package mongo implements status.Tracker on a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/isplitter/internal/config"
	"github.com/phrazzld/isplitter/internal/domain"
	"github.com/phrazzld/isplitter/internal/status"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// tryOnDocument is the stored form of domain.TryOnTask.
type tryOnDocument struct {
	ID            string     `bson:"_id"`
	Status        string     `bson:"status"`
	HumanImageRef string     `bson:"human_image_ref"`
	ClothingRefs  []string   `bson:"clothing_refs"`
	ResultURL     string     `bson:"result_url,omitempty"`
	ErrorMessage  string     `bson:"error_message,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
	CompletedAt   *time.Time `bson:"completed_at,omitempty"`
}

func toDocument(t *domain.TryOnTask) tryOnDocument {
	return tryOnDocument{
		ID:            t.ID.String(),
		Status:        string(t.Status),
		HumanImageRef: t.HumanImageRef,
		ClothingRefs:  t.ClothingRefs,
		ResultURL:     t.ResultURL,
		ErrorMessage:  t.ErrorMessage,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		CompletedAt:   t.CompletedAt,
	}
}

func (d tryOnDocument) toDomain() (*domain.TryOnTask, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: stored id %q", domain.ErrInvalidID, d.ID)
	}
	t := &domain.TryOnTask{
		ID:            id,
		Status:        domain.TryOnStatus(d.Status),
		HumanImageRef: d.HumanImageRef,
		ClothingRefs:  d.ClothingRefs,
		ResultURL:     d.ResultURL,
		ErrorMessage:  d.ErrorMessage,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
	if d.CompletedAt != nil {
		at := d.CompletedAt.UTC()
		t.CompletedAt = &at
	}
	return t, nil
}

// StatusStore keeps try-on records in one collection, keyed by task id.
// Updates are single conditional writes: the filter only matches records
// whose current status may move to the requested one.
type StatusStore struct {
	coll   *mongo.Collection
	logger *slog.Logger
	now    func() time.Time
}

var _ status.Tracker = (*StatusStore)(nil)

// Connect opens a client for cfg and returns it with a store on the
// configured collection. The caller disconnects the client.
func Connect(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (*mongo.Client, *StatusStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("connected to mongodb", "database", cfg.Database, "collection", cfg.Collection)
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	return client, NewStatusStore(coll, logger), nil
}

// NewStatusStore creates a store on coll.
func NewStatusStore(coll *mongo.Collection, logger *slog.Logger) *StatusStore {
	return &StatusStore{
		coll:   coll,
		logger: logger.With("component", "mongo_status_store"),
		now:    time.Now,
	}
}

// Create implements status.Tracker.
func (s *StatusStore) Create(ctx context.Context, t *domain.TryOnTask) error {
	if t == nil {
		return fmt.Errorf("%w: nil task", domain.ErrValidation)
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if _, err := s.coll.InsertOne(ctx, toDocument(t)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", status.ErrTaskExists, t.ID)
		}
		s.logger.ErrorContext(ctx, "failed to insert try-on task", "task_id", t.ID, "error", err)
		return fmt.Errorf("failed to insert try-on task: %w", err)
	}
	return nil
}

// Get implements status.Tracker.
func (s *StatusStore) Get(ctx context.Context, id uuid.UUID) (*domain.TryOnTask, error) {
	var doc tryOnDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", status.ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("failed to find try-on task: %w", err)
	}
	return doc.toDomain()
}

// Update implements status.Tracker. When nothing matches, a second read
// tells a missing record apart from a rejected transition.
func (s *StatusStore) Update(ctx context.Context, id uuid.UUID, u domain.TryOnUpdate) (*domain.TryOnTask, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	var target domain.TryOnStatus
	if u.Status != nil {
		target = *u.Status
	}
	allowed := domain.PriorStatuses(target)
	prior := make([]string, 0, len(allowed))
	for _, st := range allowed {
		prior = append(prior, string(st))
	}

	set := bson.M{"updated_at": s.now().UTC()}
	if u.Status != nil {
		set["status"] = string(*u.Status)
	}
	if u.ResultURL != nil {
		set["result_url"] = *u.ResultURL
	}
	if u.ErrorMessage != nil {
		set["error_message"] = *u.ErrorMessage
	}
	if u.CompletedAt != nil {
		set["completed_at"] = u.CompletedAt.UTC()
	}

	filter := bson.M{
		"_id":    id.String(),
		"status": bson.M{"$in": prior},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc tryOnDocument
	err := s.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update try-on task: %w", err)
	}

	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	next := target
	if next == "" {
		next = current.Status
	}
	return nil, fmt.Errorf("%w: %s -> %s", domain.ErrStatusTransition, current.Status, next)
}
