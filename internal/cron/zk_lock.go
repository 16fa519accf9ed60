package cron

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-zookeeper/zk"
	"github.com/google/uuid"
)

// zkConn is the subset of *zk.Conn used by ZooKeeperLock.
type zkConn interface {
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Delete(path string, version int32) error
}

// ZooKeeperLock implements Lock with an ephemeral znode. The node disappears
// with the holder's session, so a crashed worker never blocks later cycles.
type ZooKeeperLock struct {
	conn  zkConn
	root  string
	node  string
	owner string
}

func NewZooKeeperLock(conn zkConn, root, name string) (*ZooKeeperLock, error) {
	if conn == nil {
		return nil, errors.New("zookeeper connection required for lock")
	}
	root = "/" + strings.Trim(strings.TrimSpace(root), "/")
	if root == "/" {
		return nil, errors.New("lock root is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("lock name is required")
	}
	return &ZooKeeperLock{conn: conn, root: root, node: path.Join(root, name)}, nil
}

func (l *ZooKeeperLock) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := l.ensureRoot(); err != nil {
		return false, err
	}
	owner := uuid.NewString()
	_, err := l.conn.Create(l.node, []byte(owner), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNodeExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create lock node: %w", err)
	}
	l.owner = owner
	return true, nil
}

func (l *ZooKeeperLock) Release(context.Context) error {
	if l.owner == "" {
		return nil
	}
	data, stat, err := l.conn.Get(l.node)
	if errors.Is(err, zk.ErrNoNode) {
		l.owner = ""
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lock node: %w", err)
	}
	if string(data) != l.owner {
		l.owner = ""
		return nil
	}
	if err := l.conn.Delete(l.node, stat.Version); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("delete lock node: %w", err)
	}
	l.owner = ""
	return nil
}

// ensureRoot creates the persistent parents of the lock node.
func (l *ZooKeeperLock) ensureRoot() error {
	current := ""
	for _, part := range strings.Split(strings.Trim(l.root, "/"), "/") {
		current += "/" + part
		_, err := l.conn.Create(current, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("create lock root %s: %w", current, err)
		}
	}
	return nil
}
