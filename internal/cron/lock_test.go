package cron

import (
	"context"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
)

type fakeRedisStore struct {
	values map[string]string
}

func (f *fakeRedisStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedisStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	if f.values[key] != value {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func TestRedisLockExcludesSecondHolder(t *testing.T) {
	store := &fakeRedisStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "inv:lock:cron", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "inv:lock:cron", time.Second)
	ctx := context.Background()

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected first acquire, got %v %v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatalf("second holder acquired a held lock")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.values["inv:lock:cron"]; !held {
		t.Fatalf("non-owner release removed the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatalf("expected lock to be free after release")
	}
}

type fakeZKConn struct {
	nodes map[string][]byte
}

func (f *fakeZKConn) Create(path string, data []byte, _ int32, _ []zk.ACL) (string, error) {
	if _, ok := f.nodes[path]; ok {
		return "", zk.ErrNodeExists
	}
	f.nodes[path] = data
	return path, nil
}

func (f *fakeZKConn) Get(path string) ([]byte, *zk.Stat, error) {
	data, ok := f.nodes[path]
	if !ok {
		return nil, nil, zk.ErrNoNode
	}
	return data, &zk.Stat{Version: 0}, nil
}

func (f *fakeZKConn) Delete(path string, _ int32) error {
	if _, ok := f.nodes[path]; !ok {
		return zk.ErrNoNode
	}
	delete(f.nodes, path)
	return nil
}

func TestZooKeeperLockCreatesRootAndExcludes(t *testing.T) {
	conn := &fakeZKConn{nodes: map[string][]byte{}}
	first, err := NewZooKeeperLock(conn, "/inventory/locks/", "cron")
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewZooKeeperLock(conn, "inventory/locks", "cron")
	ctx := context.Background()

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected first acquire, got %v %v", ok, err)
	}
	for _, p := range []string{"/inventory", "/inventory/locks", "/inventory/locks/cron"} {
		if _, ok := conn.nodes[p]; !ok {
			t.Fatalf("expected node %s", p)
		}
	}
	if ok, err := second.Acquire(ctx); err != nil || ok {
		t.Fatalf("second holder acquired a held lock: %v %v", ok, err)
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := conn.nodes["/inventory/locks/cron"]; ok {
		t.Fatalf("lock node not removed")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}
}

func TestZooKeeperLockRejectsEmptyRoot(t *testing.T) {
	if _, err := NewZooKeeperLock(&fakeZKConn{}, "/", "cron"); err == nil {
		t.Fatal("expected error for empty root")
	}
}
