package task

import (
	"context"
	"encoding/json"
	"time"

	"TrainAI/internal/storage"
	"TrainAI/model"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dispatcher records tasks and enqueues them for the worker.
type Dispatcher struct {
	db     *gorm.DB
	pub    Publisher
	logger *zap.Logger
}

func NewDispatcher(db *gorm.DB, pub Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{db: db, pub: pub, logger: logger}
}

// EnqueueCleanup creates a cleanup task for the chunk objects under prefix
// and publishes it.
func (d *Dispatcher) EnqueueCleanup(ctx context.Context, ownerID, sessionID, prefix, reason string) (*model.CleanupTask, error) {
	task := &model.CleanupTask{
		OwnerID:   ownerID,
		SessionID: sessionID,
		Prefix:    prefix,
		Reason:    reason,
		Status:    model.CleanupStatusPending,
	}
	if err := d.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, errors.Wrap(err, "create cleanup task")
	}
	msg := Message{
		Type:      MessageCleanup,
		TaskID:    task.ID,
		OwnerID:   ownerID,
		SessionID: sessionID,
	}
	if err := d.publish(ctx, msg); err != nil {
		_ = markCleanupFailed(d.db, task.ID, err)
		return nil, err
	}
	d.logger.Info("cleanup task enqueued",
		zap.Uint64("task_id", task.ID),
		zap.String("session_id", sessionID),
		zap.String("reason", reason),
	)
	return task, nil
}

// EnqueueVideoReady asks the worker to notify the owner about a finished
// recording. Owners without an email address are skipped.
func (d *Dispatcher) EnqueueVideoReady(ctx context.Context, sess *model.UploadSession, result *model.FinalObject) error {
	if sess.OwnerEmail == "" {
		return nil
	}
	return d.publish(ctx, Message{
		Type:       MessageVideoReady,
		OwnerID:    sess.OwnerID,
		OwnerEmail: sess.OwnerEmail,
		SessionID:  sess.SessionID,
		FileName:   sess.FileName,
		URL:        result.URL,
	})
}

func (d *Dispatcher) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := d.pub.PublishTask(ctx, body); err != nil {
		return errors.Wrap(err, "publish task")
	}
	return nil
}

// Notifier delivers the video-ready notification.
type Notifier interface {
	SendVideoReady(to, fileName, videoURL string) error
}

// Processor executes task messages inside the worker.
type Processor struct {
	db     *gorm.DB
	store  storage.Store
	notify Notifier
	logger *zap.Logger
	lease  time.Duration
	now    func() time.Time
}

// DefaultRunningLease is how long a running cleanup task stays claimed before
// another delivery may take it over.
const DefaultRunningLease = 10 * time.Minute

// NewProcessor builds a Processor. notify may be nil, in which case
// video-ready messages are dropped.
func NewProcessor(db *gorm.DB, store storage.Store, notify Notifier, logger *zap.Logger) *Processor {
	return &Processor{db: db, store: store, notify: notify, logger: logger, lease: DefaultRunningLease, now: time.Now}
}

// Process handles one message.
func (p *Processor) Process(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MessageCleanup:
		return p.processCleanup(ctx, msg.TaskID)
	case MessageVideoReady:
		return p.processVideoReady(msg)
	default:
		return errors.Wrapf(ErrUnknownMessage, "type %q", msg.Type)
	}
}

func (p *Processor) processVideoReady(msg Message) error {
	if p.notify == nil || msg.OwnerEmail == "" {
		p.logger.Debug("video ready notification skipped", zap.String("session_id", msg.SessionID))
		return nil
	}
	if err := p.notify.SendVideoReady(msg.OwnerEmail, msg.FileName, msg.URL); err != nil {
		return errors.Wrap(err, "send video ready mail")
	}
	p.logger.Info("video ready notification sent", zap.String("session_id", msg.SessionID))
	return nil
}

func (p *Processor) processCleanup(ctx context.Context, taskID uint64) error {
	var task model.CleanupTask
	if err := p.db.WithContext(ctx).Where("id = ?", taskID).First(&task).Error; err != nil {
		return err
	}
	if task.Status == model.CleanupStatusCompleted {
		return nil
	}
	startedAt := p.now()
	staleBefore := startedAt.Add(-p.lease)
	res := p.db.WithContext(ctx).Model(&model.CleanupTask{}).
		Where("id = ? AND (status IN ? OR (status = ? AND started_at < ?))",
			taskID,
			[]string{model.CleanupStatusPending, model.CleanupStatusRetrying},
			model.CleanupStatusRunning,
			staleBefore,
		).
		Updates(map[string]interface{}{
			"status":     model.CleanupStatusRunning,
			"started_at": &startedAt,
			"error_msg":  "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	removed, err := p.removeChunks(ctx, task.Prefix)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// give the claim back so the requeued delivery can take it
			p.releaseClaim(context.WithoutCancel(ctx), taskID, err)
		}
		return err
	}

	finishedAt := p.now()
	p.logger.Info("cleanup task completed",
		zap.Uint64("task_id", taskID),
		zap.Int("removed", removed),
	)
	return p.db.WithContext(ctx).Model(&task).Updates(map[string]interface{}{
		"status":      model.CleanupStatusCompleted,
		"removed":     removed,
		"finished_at": &finishedAt,
	}).Error
}

func (p *Processor) removeChunks(ctx context.Context, prefix string) (int, error) {
	objects, err := p.store.ListObjects(ctx, prefix)
	if err != nil {
		return 0, errors.Wrap(err, "list chunk objects")
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		// only chunk keys; the assembled object never matches
		if _, ok := model.ParseChunkIndex(prefix, obj.Key); ok {
			keys = append(keys, obj.Key)
		}
	}
	if len(keys) > 0 {
		if err := p.store.RemoveObjects(ctx, keys); err != nil {
			return 0, errors.Wrap(err, "remove chunk objects")
		}
	}
	return len(keys), nil
}

func (p *Processor) releaseClaim(ctx context.Context, taskID uint64, cause error) {
	err := p.db.WithContext(ctx).Model(&model.CleanupTask{}).
		Where("id = ? AND status = ?", taskID, model.CleanupStatusRunning).
		Updates(map[string]interface{}{
			"status":    model.CleanupStatusRetrying,
			"error_msg": cause.Error(),
		}).Error
	if err != nil {
		p.logger.Warn("release cleanup claim failed", zap.Uint64("task_id", taskID), zap.Error(err))
	}
}

// MarkRetrying records a failed attempt that will be retried at nextRetryAt.
// Non-cleanup messages carry no row and are ignored.
func (p *Processor) MarkRetrying(ctx context.Context, msg Message, attempt int, nextRetryAt time.Time, procErr error) error {
	if msg.Type != MessageCleanup {
		return nil
	}
	return p.db.WithContext(ctx).Model(&model.CleanupTask{}).
		Where("id = ?", msg.TaskID).
		Updates(map[string]interface{}{
			"status":        model.CleanupStatusRetrying,
			"error_msg":     procErr.Error(),
			"retry_count":   attempt,
			"next_retry_at": &nextRetryAt,
		}).Error
}

// MarkFailed records a permanently failed message.
func (p *Processor) MarkFailed(ctx context.Context, msg Message, procErr error) error {
	if msg.Type != MessageCleanup {
		return nil
	}
	return markCleanupFailed(p.db.WithContext(ctx), msg.TaskID, procErr)
}

func markCleanupFailed(db *gorm.DB, taskID uint64, err error) error {
	finishedAt := time.Now()
	return db.Model(&model.CleanupTask{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"status":      model.CleanupStatusFailed,
			"error_msg":   err.Error(),
			"finished_at": &finishedAt,
		}).Error
}
