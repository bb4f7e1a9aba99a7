package credstore

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/tienchanhtri/aoxam-web/internal/testutil"
	"github.com/zalando/go-keyring"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteKV(t *testing.T) *GormKV {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	kv, err := NewGormKV(db)
	if err != nil {
		t.Fatalf("NewGormKV failed: %v", err)
	}
	return kv
}

func TestKV_Backends(t *testing.T) {
	keyring.MockInit()

	backends := []struct {
		name string
		new  func(t *testing.T) KV
	}{
		{name: "memory", new: func(*testing.T) KV { return NewMemoryKV() }},
		{name: "redis", new: func(t *testing.T) KV {
			_, client := testutil.NewRedis(t)
			return NewRedisKV(client, "aoxam")
		}},
		{name: "keyring", new: func(*testing.T) KV { return NewKeyringKV("aoxam-web-test") }},
		{name: "sqlite", new: func(t *testing.T) KV { return newSQLiteKV(t) }},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			kv := b.new(t)

			if _, ok, err := kv.Get(ctx, KeyAccessToken); err != nil || ok {
				t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
			}

			if err := kv.Set(ctx, KeyAccessToken, "v1"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := kv.Set(ctx, KeyAccessToken, "v2"); err != nil {
				t.Fatalf("overwrite failed: %v", err)
			}

			v, ok, err := kv.Get(ctx, KeyAccessToken)
			if err != nil || !ok || v != "v2" {
				t.Fatalf("expected v2, got %q ok=%v err=%v", v, ok, err)
			}

			if err := kv.Delete(ctx, KeyAccessToken); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if err := kv.Delete(ctx, KeyAccessToken); err != nil {
				t.Fatalf("deleting a missing key should succeed: %v", err)
			}
			if _, ok, _ := kv.Get(ctx, KeyAccessToken); ok {
				t.Error("expected key to be deleted")
			}
		})
	}
}

func TestRedisKV_Prefix(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	kv := NewRedisKV(client, "tab")

	if err := kv.Set(context.Background(), KeyIDToken, "id-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := mr.Get("tab:" + KeyIDToken)
	if err != nil || got != "id-1" {
		t.Errorf("expected prefixed key, got %q err=%v", got, err)
	}
}

func TestRedisBroadcaster_CrossProcessPropagation(t *testing.T) {
	ctx := context.Background()
	mr, clientA := testutil.NewRedis(t)
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = clientB.Close() })

	tabA := New(NewRedisKV(clientA, "aoxam"), WithBroadcaster(NewRedisBroadcaster(clientA)))
	tabB := New(NewRedisKV(clientB, "aoxam"), WithBroadcaster(NewRedisBroadcaster(clientB)))

	sub, err := tabB.Changes(ctx, KeyAccessToken)
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}
	defer sub.Close()

	if c := nextChange(t, sub); c.Present {
		t.Fatalf("expected initial absent value, got %+v", c)
	}

	if err := tabA.Set(ctx, BrowserTab{}, KeyAccessToken, "from-a"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if c := nextChange(t, sub); c.Value != "from-a" {
		t.Fatalf("expected from-a, got %+v", c)
	}
}

func TestRedisBroadcaster_SubscribeFailure(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	mr.Close()

	s := New(nil, WithBroadcaster(NewRedisBroadcaster(client)))
	if _, err := s.Changes(context.Background(), KeyAccessToken); err == nil {
		t.Fatal("expected subscribe error when redis is down")
	}
	if s.Listening() {
		t.Error("failed subscribe must not leave a registration")
	}
}
