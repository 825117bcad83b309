package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	data map[string]string
	sets map[string]map[string]struct{}
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		data: make(map[string]string),
		sets: make(map[string]map[string]struct{}),
	}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeRedis) SAdd(ctx context.Context, key string, members ...any) error {
	set, ok := f.sets[key]
	if !ok {
		set = make(map[string]struct{})
		f.sets[key] = set
	}
	for _, member := range members {
		set[fmt.Sprint(member)] = struct{}{}
	}
	return nil
}

func (f *fakeRedis) SRem(ctx context.Context, key string, members ...any) error {
	for _, member := range members {
		delete(f.sets[key], fmt.Sprint(member))
	}
	return nil
}

func (f *fakeRedis) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	for member := range f.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (f *fakeRedis) SessionKey(sessionID string) string {
	return "posgrid:session:" + sessionID
}

func (f *fakeRedis) UserSessionIndexKey(userID string) string {
	return "posgrid:session:user:" + userID
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	store, err := NewRedisStore(fake, time.Hour)
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	userID := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)

	sess := &Session{
		ID:             "sess-1",
		UserID:         userID,
		Device:         DeviceInfo{IPAddress: "10.0.0.9", UserAgent: "register-3"},
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(time.Hour),
		Active:         true,
	}
	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != userID {
		t.Fatalf("expected user %s, got %s", userID, got.UserID)
	}
	if got.Device.UserAgent != "register-3" {
		t.Fatalf("device info lost: %+v", got.Device)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatalf("expiry mismatch %v vs %v", got.ExpiresAt, sess.ExpiresAt)
	}

	sessions, err := store.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "sess-1" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}

	if err := store.Delete(ctx, sess); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "sess-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	sessions, err = store.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected empty index, got %+v", sessions)
	}
}

func TestRedisStoreSnapshotReturnsSentinel(t *testing.T) {
	store, err := NewRedisStore(newFakeRedis(), time.Hour)
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}

	_, err = store.Snapshot(context.Background())
	if !errors.Is(err, ErrSnapshotUnsupported) {
		t.Fatalf("expected ErrSnapshotUnsupported, got %v", err)
	}

	// Stats and Sweep run over Snapshot and must surface the same
	// sentinel instead of reporting an empty registry.
	registry, err := NewRegistry(store, time.Hour)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := registry.Stats(context.Background()); !errors.Is(err, ErrSnapshotUnsupported) {
		t.Fatalf("Stats error = %v, want ErrSnapshotUnsupported", err)
	}
	if _, err := registry.Sweep(context.Background()); !errors.Is(err, ErrSnapshotUnsupported) {
		t.Fatalf("Sweep error = %v, want ErrSnapshotUnsupported", err)
	}
}

func TestRedisStorePrunesDanglingIndexEntries(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	store, err := NewRedisStore(fake, time.Hour)
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	userID := uuid.New()

	// Index references a session whose record key already expired.
	indexKey := fake.UserSessionIndexKey(userID.String())
	if err := fake.SAdd(ctx, indexKey, "gone"); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	sessions, err := store.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %+v", sessions)
	}
	if _, ok := fake.sets[indexKey]["gone"]; ok {
		t.Fatal("expected dangling index entry pruned")
	}
}
