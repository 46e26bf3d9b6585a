package repo

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"TrainAI/model"
	"TrainAI/utils"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "upload:session:"
	chunkSetPrefix   = "upload:chunks:"
)

var (
	ErrSessionNotFound = errors.New("upload session not found")
	ErrSessionExists   = errors.New("upload session already exists")
)

// SessionStore keeps upload sessions with a TTL, keyed by owner and session id.
type SessionStore interface {
	// Create stores a new session. It fails with ErrSessionExists on collision.
	Create(ctx context.Context, s *model.UploadSession, ttl time.Duration) error
	Get(ctx context.Context, ownerID, sessionID string) (*model.UploadSession, error)
	// Save overwrites an existing session without extending its TTL.
	Save(ctx context.Context, s *model.UploadSession) error
	MarkChunk(ctx context.Context, s *model.UploadSession, index int) error
	ReceivedChunks(ctx context.Context, ownerID, sessionID string) ([]int, error)
}

// SessionKey is the store key of one session. Session ids never contain ':'.
func SessionKey(ownerID, sessionID string) string {
	return sessionKeyPrefix + ownerID + ":" + sessionID
}

func chunkSetKey(ownerID, sessionID string) string {
	return chunkSetPrefix + ownerID + ":" + sessionID
}

// ParseSessionKey splits a session key back into owner and session id.
func ParseSessionKey(key string) (ownerID, sessionID string, ok bool) {
	rest, found := strings.CutPrefix(key, sessionKeyPrefix)
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

type RedisSessionStore struct {
	rdb   *redis.Client
	cache *utils.RedisCache
}

func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, cache: utils.NewRedisCache(rdb)}
}

func (s *RedisSessionStore) Create(ctx context.Context, sess *model.UploadSession, ttl time.Duration) error {
	ok, err := s.cache.SetNX(ctx, SessionKey(sess.OwnerID, sess.SessionID), sess, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, ownerID, sessionID string) (*model.UploadSession, error) {
	var sess model.UploadSession
	err := s.cache.Get(ctx, SessionKey(ownerID, sessionID), &sess)
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, sess *model.UploadSession) error {
	ok, err := s.cache.Replace(ctx, SessionKey(sess.OwnerID, sess.SessionID), sess)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

func (s *RedisSessionStore) MarkChunk(ctx context.Context, sess *model.UploadSession, index int) error {
	key := chunkSetKey(sess.OwnerID, sess.SessionID)
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key, index)
	pipe.ExpireAt(ctx, key, sess.ExpiresAt)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisSessionStore) ReceivedChunks(ctx context.Context, ownerID, sessionID string) ([]int, error) {
	members, err := s.rdb.SMembers(ctx, chunkSetKey(ownerID, sessionID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(members))
	for _, m := range members {
		i, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

// MemorySessionStore is a process-local SessionStore. Expired entries are
// dropped on access.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memSession
	chunks   map[string]map[int]struct{}
	now      func() time.Time
}

type memSession struct {
	session model.UploadSession
	expires time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memSession),
		chunks:   make(map[string]map[int]struct{}),
		now:      time.Now,
	}
}

// lookup returns a live entry; the caller holds mu.
func (s *MemorySessionStore) lookup(key string) (memSession, bool) {
	entry, ok := s.sessions[key]
	if !ok {
		return memSession{}, false
	}
	if !s.now().Before(entry.expires) {
		delete(s.sessions, key)
		delete(s.chunks, key)
		return memSession{}, false
	}
	return entry, true
}

func (s *MemorySessionStore) Create(ctx context.Context, sess *model.UploadSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := SessionKey(sess.OwnerID, sess.SessionID)
	if _, ok := s.lookup(key); ok {
		return ErrSessionExists
	}
	s.sessions[key] = memSession{session: copySession(sess), expires: s.now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, ownerID, sessionID string) (*model.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.lookup(SessionKey(ownerID, sessionID))
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess := copySession(&entry.session)
	return &sess, nil
}

func (s *MemorySessionStore) Save(ctx context.Context, sess *model.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := SessionKey(sess.OwnerID, sess.SessionID)
	entry, ok := s.lookup(key)
	if !ok {
		return ErrSessionNotFound
	}
	entry.session = copySession(sess)
	s.sessions[key] = entry
	return nil
}

func (s *MemorySessionStore) MarkChunk(ctx context.Context, sess *model.UploadSession, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := SessionKey(sess.OwnerID, sess.SessionID)
	if _, ok := s.lookup(key); !ok {
		return ErrSessionNotFound
	}
	set, ok := s.chunks[key]
	if !ok {
		set = make(map[int]struct{})
		s.chunks[key] = set
	}
	set[index] = struct{}{}
	return nil
}

func (s *MemorySessionStore) ReceivedChunks(ctx context.Context, ownerID, sessionID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := SessionKey(ownerID, sessionID)
	if _, ok := s.lookup(key); !ok {
		return []int{}, nil
	}
	out := make([]int, 0, len(s.chunks[key]))
	for i := range s.chunks[key] {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

func copySession(sess *model.UploadSession) model.UploadSession {
	c := *sess
	if sess.Result != nil {
		r := *sess.Result
		c.Result = &r
	}
	return c
}
