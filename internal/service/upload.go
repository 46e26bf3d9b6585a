package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"time"

	"TrainAI/config"
	"TrainAI/internal/apperr"
	"TrainAI/internal/dto"
	"TrainAI/internal/repo"
	"TrainAI/internal/storage"
	"TrainAI/model"
	"TrainAI/utils"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const (
	chunkRoute       = "/upload/chunk"
	chunkContentType = "application/octet-stream"
)

// AssetRepository persists finalized recordings.
type AssetRepository interface {
	Record(ctx context.Context, asset *model.VideoAsset) error
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.VideoAsset, error)
}

// TaskQueue hands background work to the worker.
type TaskQueue interface {
	EnqueueCleanup(ctx context.Context, ownerID, sessionID, prefix, reason string) (*model.CleanupTask, error)
	EnqueueVideoReady(ctx context.Context, sess *model.UploadSession, result *model.FinalObject) error
}

type Options struct {
	MaxUploadSize int64
	SessionTTL    time.Duration
	LockTTL       time.Duration
	WaitInterval  time.Duration
	// ChunkEndpoint is returned to clients as both uploadUrl and chunkEndpoint.
	ChunkEndpoint string
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		MaxUploadSize: cfg.MaxUploadSize,
		SessionTTL:    cfg.UploadSessionTTL,
		LockTTL:       cfg.FinalizeLockTTL,
		WaitInterval:  cfg.FinalizeWaitInterval,
		ChunkEndpoint: cfg.PublicAPIBase + chunkRoute,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxUploadSize <= 0 {
		o.MaxUploadSize = config.DefaultMaxUploadSize
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 24 * time.Hour
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 2 * time.Minute
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = 250 * time.Millisecond
	}
	if o.ChunkEndpoint == "" {
		o.ChunkEndpoint = chunkRoute
	}
	return o
}

// UploadService runs the init, chunk and finalize lifecycle of chunked uploads.
// It holds no per-session state; sessions live in the SessionStore and
// finalize is serialized through the Locker.
type UploadService struct {
	store    storage.Store
	sessions repo.SessionStore
	locker   repo.Locker
	assets   AssetRepository
	tasks    TaskQueue
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewUploadService wires the service. tasks may be nil, in which case cleanup
// and notification tasks are only logged.
func NewUploadService(
	store storage.Store,
	sessions repo.SessionStore,
	locker repo.Locker,
	assets AssetRepository,
	tasks TaskQueue,
	opts Options,
	logger *zap.Logger,
) *UploadService {
	return &UploadService{
		store:    store,
		sessions: sessions,
		locker:   locker,
		assets:   assets,
		tasks:    tasks,
		opts:     opts.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

func finalizeLockKey(ownerID, sessionID string) string {
	return "lock:finalize:" + ownerID + ":" + sessionID
}

// InitSession opens a new upload session for owner.
func (s *UploadService) InitSession(ctx context.Context, owner model.Owner, req dto.InitUploadRequest) (*dto.InitUploadResponse, error) {
	if owner.ID == "" {
		return nil, apperr.Authf("unauthorized")
	}
	switch {
	case req.FileName == "":
		return nil, apperr.Validationf("fileName is required")
	case req.FileType == "":
		return nil, apperr.Validationf("fileType is required")
	case req.FileSize <= 0:
		return nil, apperr.Validationf("fileSize is required")
	case !utils.ValidUploadID(req.UploadID):
		return nil, apperr.Validationf("uploadId is invalid")
	case req.TotalChunks < 0:
		return nil, apperr.Validationf("totalChunks must be at least 0")
	}
	if req.FileSize > s.opts.MaxUploadSize {
		return nil, apperr.SizeLimitf("file size %d exceeds the %d byte limit", req.FileSize, s.opts.MaxUploadSize)
	}

	now := s.now()
	sessionID := fmt.Sprintf("session-%s-%d", req.UploadID, now.UnixMilli())
	sess := &model.UploadSession{
		SessionID:   sessionID,
		OwnerID:     owner.ID,
		OwnerEmail:  owner.Email,
		UploadID:    req.UploadID,
		UploadPath:  model.UploadPath(owner.ID, sessionID),
		FileName:    req.FileName,
		FileSize:    req.FileSize,
		FileType:    req.FileType,
		TotalChunks: req.TotalChunks,
		Status:      model.UploadStatusUploading,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.opts.SessionTTL),
	}
	if err := s.sessions.Create(ctx, sess, s.opts.SessionTTL); err != nil {
		if errors.Is(err, repo.ErrSessionExists) {
			return nil, apperr.Conflictf("upload session %s already exists", sessionID)
		}
		return nil, apperr.StorageErr(err, "create upload session")
	}

	s.logger.Info("upload session created",
		zap.String("owner_id", owner.ID),
		zap.String("session_id", sessionID),
		zap.Int64("file_size", req.FileSize),
	)
	return &dto.InitUploadResponse{
		SessionID:     sessionID,
		UploadPath:    sess.UploadPath,
		UploadURL:     s.opts.ChunkEndpoint,
		ChunkEndpoint: s.opts.ChunkEndpoint,
		ExpiresAt:     sess.ExpiresAt,
	}, nil
}

func (s *UploadService) loadSession(ctx context.Context, ownerID, sessionID string) (*model.UploadSession, error) {
	sess, err := s.sessions.Get(ctx, ownerID, sessionID)
	if errors.Is(err, repo.ErrSessionNotFound) {
		return nil, apperr.NotFoundf("upload session %s not found", sessionID)
	}
	if err != nil {
		return nil, apperr.StorageErr(err, "load upload session")
	}
	return sess, nil
}

// ReceiveChunk stores one chunk. Re-sending an index overwrites the previous payload.
func (s *UploadService) ReceiveChunk(ctx context.Context, owner model.Owner, sessionID string, index int, size int64, body io.Reader) (*dto.ChunkResponse, error) {
	if owner.ID == "" {
		return nil, apperr.Authf("unauthorized")
	}
	if !utils.ValidSessionID(sessionID) {
		return nil, apperr.Validationf("sessionId is malformed")
	}
	if index < 0 {
		return nil, apperr.Validationf("chunkIndex must be at least 0")
	}
	if size > s.opts.MaxUploadSize {
		return nil, apperr.SizeLimitf("chunk size %d exceeds the %d byte limit", size, s.opts.MaxUploadSize)
	}

	sess, err := s.loadSession(ctx, owner.ID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.UploadStatusFinalized {
		return nil, apperr.Conflictf("upload session %s is already finalized", sessionID)
	}
	if sess.TotalChunks > 0 && index >= sess.TotalChunks {
		return nil, apperr.Validationf("chunkIndex %d is out of range for %d chunks", index, sess.TotalChunks)
	}

	key := model.ChunkPath(owner.ID, sessionID, index)
	if err := s.store.PutObject(ctx, key, body, size, storage.PutOptions{
		ContentType: chunkContentType,
		Overwrite:   true,
	}); err != nil {
		return nil, apperr.StorageErr(err, "store chunk")
	}
	if err := s.sessions.MarkChunk(ctx, sess, index); err != nil {
		if errors.Is(err, repo.ErrSessionNotFound) {
			return nil, apperr.NotFoundf("upload session %s not found", sessionID)
		}
		return nil, apperr.StorageErr(err, "record chunk")
	}

	s.logger.Debug("chunk stored",
		zap.String("session_id", sessionID),
		zap.Int("chunk_index", index),
		zap.Int64("size", size),
	)
	return &dto.ChunkResponse{Success: true, ChunkIndex: index, ChunkPath: key}, nil
}

// Finalize assembles the chunks of a session into the final recording.
// Concurrent calls for one session collapse into one assembly; the others
// wait for it and return its stored result.
func (s *UploadService) Finalize(ctx context.Context, owner model.Owner, sessionID string) (*model.FinalObject, error) {
	if owner.ID == "" {
		return nil, apperr.Authf("unauthorized")
	}
	if !utils.ValidSessionID(sessionID) {
		return nil, apperr.Validationf("sessionId is malformed")
	}

	sess, err := s.loadSession(ctx, owner.ID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.UploadStatusFinalized && sess.Result != nil {
		return sess.Result, nil
	}

	lock := s.locker.NewLock(finalizeLockKey(owner.ID, sessionID), s.opts.LockTTL)
	for {
		err := lock.Lock(ctx)
		if err == nil {
			break
		}
		if !errors.Is(err, repo.ErrLockBusy) {
			return nil, apperr.StorageErr(err, "acquire finalize lock")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.WaitInterval):
		}
		sess, err = s.loadSession(ctx, owner.ID, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.Status == model.UploadStatusFinalized && sess.Result != nil {
			return sess.Result, nil
		}
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release finalize lock failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()

	// another caller may have finished between the first read and the lock
	sess, err = s.loadSession(ctx, owner.ID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.UploadStatusFinalized && sess.Result != nil {
		return sess.Result, nil
	}
	return s.finalizeLocked(ctx, sess)
}

type chunkRef struct {
	index int
	key   string
	size  int64
}

func (s *UploadService) finalizeLocked(ctx context.Context, sess *model.UploadSession) (*model.FinalObject, error) {
	sess.Status = model.UploadStatusFinalizing
	if err := s.sessions.Save(ctx, sess); err != nil {
		if errors.Is(err, repo.ErrSessionNotFound) {
			return nil, apperr.NotFoundf("upload session %s not found", sess.SessionID)
		}
		return nil, apperr.StorageErr(err, "update upload session")
	}

	result, chunks, err := s.assemble(ctx, sess)
	if err != nil {
		s.resetStatus(ctx, sess)
		return nil, err
	}

	asset := &model.VideoAsset{
		OwnerID:     sess.OwnerID,
		SessionID:   sess.SessionID,
		ObjectPath:  result.Path,
		PublicURL:   result.URL,
		FileName:    sess.FileName,
		ContentType: result.ContentType,
		Size:        result.Size,
		ChunkCount:  result.ChunksProcessed,
		Checksum:    result.Checksum,
	}
	if err := s.assets.Record(ctx, asset); err != nil {
		s.resetStatus(ctx, sess)
		return nil, errors.Wrap(err, "record video asset")
	}

	// object and asset row are already written; a retried finalize reassembles
	sess.Status = model.UploadStatusFinalized
	sess.Result = result
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Warn("mark session finalized failed",
			zap.String("session_id", sess.SessionID),
			zap.Error(err),
		)
	}

	s.logger.Info("upload finalized",
		zap.String("owner_id", sess.OwnerID),
		zap.String("session_id", sess.SessionID),
		zap.Int64("size", result.Size),
		zap.Int("chunks", result.ChunksProcessed),
	)

	s.removeChunks(ctx, sess, chunks)
	if s.tasks != nil {
		if err := s.tasks.EnqueueVideoReady(ctx, sess, result); err != nil {
			s.logger.Warn("enqueue video ready notification failed", zap.String("session_id", sess.SessionID), zap.Error(err))
		}
	}
	return result, nil
}

// assemble concatenates the chunks in numeric index order and publishes the
// final object. Nothing is published when any chunk read fails.
func (s *UploadService) assemble(ctx context.Context, sess *model.UploadSession) (*model.FinalObject, []chunkRef, error) {
	prefix := model.ChunkPrefix(sess.OwnerID, sess.SessionID)
	objects, err := s.store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, nil, apperr.StorageErr(err, "list chunks")
	}
	chunks := make([]chunkRef, 0, len(objects))
	var total int64
	for _, obj := range objects {
		index, ok := model.ParseChunkIndex(prefix, obj.Key)
		if !ok {
			continue
		}
		chunks = append(chunks, chunkRef{index: index, key: obj.Key, size: obj.Size})
		total += obj.Size
	}
	if len(chunks) == 0 {
		return nil, nil, apperr.NotFoundf("no chunks found for session %s", sess.SessionID)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].index < chunks[j].index })

	if sess.TotalChunks > 0 {
		if err := checkComplete(chunks, sess.TotalChunks); err != nil {
			return nil, nil, err
		}
	}
	if total > s.opts.MaxUploadSize {
		return nil, nil, apperr.SizeLimitf("assembled size %d exceeds the %d byte limit", total, s.opts.MaxUploadSize)
	}

	buf := bytes.NewBuffer(make([]byte, 0, total))
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return nil, nil, err
	}
	w := io.MultiWriter(buf, hasher)
	for _, c := range chunks {
		if err := s.copyChunk(ctx, w, c.key); err != nil {
			return nil, nil, err
		}
	}

	finalKey := model.FinalPath(sess.OwnerID, sess.SessionID)
	size := int64(buf.Len())
	if err := s.store.PutObject(ctx, finalKey, bytes.NewReader(buf.Bytes()), size, storage.PutOptions{
		ContentType: model.FinalContentType,
		Overwrite:   true,
	}); err != nil {
		return nil, nil, apperr.StorageErr(err, "store final object")
	}
	url, err := s.store.PublicURL(ctx, finalKey)
	if err != nil {
		return nil, nil, apperr.StorageErr(err, "resolve public url")
	}
	return &model.FinalObject{
		Path:            finalKey,
		URL:             url,
		Size:            size,
		ContentType:     model.FinalContentType,
		ChunksProcessed: len(chunks),
		Checksum:        hex.EncodeToString(hasher.Sum(nil)),
	}, chunks, nil
}

func (s *UploadService) copyChunk(ctx context.Context, w io.Writer, key string) error {
	rc, _, err := s.store.GetObject(ctx, key)
	if err != nil {
		return apperr.StorageErr(err, "read chunk "+key)
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return apperr.StorageErr(err, "read chunk "+key)
	}
	return nil
}

// checkComplete requires indices 0..total-1 exactly. chunks must be sorted.
func checkComplete(chunks []chunkRef, total int) error {
	present := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		if c.index >= total {
			return apperr.Conflictf("unexpected chunk %d for %d declared chunks", c.index, total)
		}
		present[c.index] = true
	}
	var missing []int
	for i := 0; i < total; i++ {
		if !present[i] {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return apperr.Conflictf("missing chunks %v of %d", missing, total)
	}
	return nil
}

// resetStatus returns a failed finalize to uploading so the client can retry.
func (s *UploadService) resetStatus(ctx context.Context, sess *model.UploadSession) {
	sess.Status = model.UploadStatusUploading
	if err := s.sessions.Save(context.WithoutCancel(ctx), sess); err != nil && !errors.Is(err, repo.ErrSessionNotFound) {
		s.logger.Warn("reset upload session failed", zap.String("session_id", sess.SessionID), zap.Error(err))
	}
}

// removeChunks deletes chunk objects. Failures are logged and handed to the
// cleanup worker, never returned.
func (s *UploadService) removeChunks(ctx context.Context, sess *model.UploadSession, chunks []chunkRef) {
	keys := make([]string, 0, len(chunks))
	for _, c := range chunks {
		keys = append(keys, c.key)
	}
	err := s.store.RemoveObjects(ctx, keys)
	if err == nil {
		return
	}
	s.logger.Warn("remove chunks failed",
		zap.String("session_id", sess.SessionID),
		zap.Int("chunks", len(keys)),
		zap.Error(err),
	)
	s.enqueueCleanup(context.WithoutCancel(ctx), sess.OwnerID, sess.SessionID, model.CleanupReasonFinalize)
}

func (s *UploadService) enqueueCleanup(ctx context.Context, ownerID, sessionID, reason string) {
	if s.tasks == nil {
		s.logger.Warn("no task queue, chunk cleanup skipped", zap.String("session_id", sessionID))
		return
	}
	prefix := model.ChunkPrefix(ownerID, sessionID)
	if _, err := s.tasks.EnqueueCleanup(ctx, ownerID, sessionID, prefix, reason); err != nil {
		s.logger.Error("enqueue chunk cleanup failed",
			zap.String("session_id", sessionID),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

// HandleSessionExpired schedules removal of chunks left by a session whose
// TTL elapsed.
func (s *UploadService) HandleSessionExpired(ctx context.Context, ownerID, sessionID string) {
	s.enqueueCleanup(ctx, ownerID, sessionID, model.CleanupReasonExpired)
}

// Status reports the progress of a session.
func (s *UploadService) Status(ctx context.Context, owner model.Owner, sessionID string) (*dto.StatusResponse, error) {
	if owner.ID == "" {
		return nil, apperr.Authf("unauthorized")
	}
	sess, err := s.loadSession(ctx, owner.ID, sessionID)
	if err != nil {
		return nil, err
	}
	received, err := s.sessions.ReceivedChunks(ctx, owner.ID, sessionID)
	if err != nil {
		return nil, apperr.StorageErr(err, "load received chunks")
	}
	resp := &dto.StatusResponse{
		SessionID:      sess.SessionID,
		Status:         sess.Status,
		ReceivedChunks: received,
		TotalChunks:    sess.TotalChunks,
		ExpiresAt:      sess.ExpiresAt,
	}
	if sess.TotalChunks > 0 {
		progress := len(received) * 100 / sess.TotalChunks
		if progress > 100 {
			progress = 100
		}
		resp.Progress = &progress
	}
	if sess.Result != nil {
		r := dto.NewFinalizeResponse(sess.Result)
		resp.Result = &r
	}
	return resp, nil
}
