package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/ids"
)

var errMissingIDProvider = errors.New("audit: id provider is required")

// Entry is the caller-facing shape of one audit event. Field snapshots are
// serialized to JSON on write.
type Entry struct {
	ActorID       string
	Action        Action
	EntityKind    string
	EntityID      string
	Description   string
	Severity      Severity
	OldValues     map[string]any
	NewValues     map[string]any
	ChangedFields []string
}

// RecorderConfig describes the dependencies of the audit recorder.
type RecorderConfig struct {
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Recorder appends audit records. Writes happen on the transaction the
// caller supplies so a mutation and its audit trail commit together or not
// at all; a failed append escalates as an internal error.
type Recorder struct {
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewRecorder constructs a Recorder.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{idProvider: cfg.IDProvider, clock: clock, logger: logger}, nil
}

// Append writes one record on tx.
func (r *Recorder) Append(ctx context.Context, tx *gorm.DB, entry Entry) error {
	id, err := r.idProvider.NewID()
	if err != nil {
		return apperr.Internal("audit id generation failed", err)
	}

	severity := entry.Severity
	if severity == "" {
		severity = SeverityLow
	}

	record := Record{
		ID:          id,
		ActorID:     entry.ActorID,
		Action:      entry.Action,
		EntityKind:  entry.EntityKind,
		EntityID:    entry.EntityID,
		Description: entry.Description,
		Severity:    severity,
		CreatedAt:   r.clock().UTC(),
	}

	if record.OldValues, err = marshalValues(entry.OldValues); err != nil {
		return apperr.Internal("audit old values serialization failed", err)
	}
	if record.NewValues, err = marshalValues(entry.NewValues); err != nil {
		return apperr.Internal("audit new values serialization failed", err)
	}
	if len(entry.ChangedFields) > 0 {
		encoded, err := json.Marshal(entry.ChangedFields)
		if err != nil {
			return apperr.Internal("audit changed fields serialization failed", err)
		}
		record.ChangedFields = string(encoded)
	}

	if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
		r.logger.Error("audit append failed",
			zap.String("action", string(entry.Action)),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err))
		return apperr.Internal(fmt.Sprintf("audit append failed for %s", entry.Action), err)
	}
	return nil
}

func marshalValues(values map[string]any) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
