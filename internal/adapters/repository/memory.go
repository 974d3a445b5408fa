package repository

import (
	"context"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/okian/chorus/pkg/metrics"
)

// Memory is an in-process Store. Objects live in a map; a treap keyed by
// path keeps prefix listings ordered without sorting on every call.
type Memory struct {
	cfg  config
	mu   sync.RWMutex
	root *node
	objs map[string]Object
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory(opts ...Option) *Memory {
	cfg := defaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Memory{cfg: cfg, objs: make(map[string]Object)}
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, p string, data []byte, contentType string) (string, error) {
	p, err := CleanPath(p)
	if err != nil {
		metrics.RecordStoreOp("put", "invalid")
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	url := m.URL(p)
	obj := Object{
		ObjectInfo: info("", p, m.cfg.now(), int64(len(data)), contentType, url),
		Data:       slices.Clone(data),
	}

	m.mu.Lock()
	if old, ok := m.objs[p]; ok {
		obj.CreatedAt = old.CreatedAt
	} else {
		m.root = insert(m.root, p, rand.Uint64())
	}
	m.objs[p] = obj
	m.mu.Unlock()

	metrics.RecordStoreOp("put", "ok")
	return url, nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, p string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	m.mu.RLock()
	obj, ok := m.objs[p]
	m.mu.RUnlock()
	if !ok {
		metrics.RecordStoreOp("get", "not_found")
		return Object{}, ErrNotFound
	}
	obj.Data = slices.Clone(obj.Data)
	metrics.RecordStoreOp("get", "ok")
	return obj, nil
}

// List implements Store.
func (m *Memory) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ObjectInfo
	collectPrefix(m.root, prefix, func(p string) {
		o := m.objs[p].ObjectInfo
		o.Name = strings.TrimPrefix(p, prefix)
		out = append(out, o)
	})
	metrics.RecordStoreOp("list", "ok")
	return out, nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, paths ...string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range paths {
		if _, ok := m.objs[p]; !ok {
			continue
		}
		delete(m.objs, p)
		m.root = deleteNode(m.root, p)
		n++
	}
	metrics.RecordStoreOp("delete", "ok")
	return n, nil
}

// URL implements Store.
func (m *Memory) URL(p string) string { return objectURL(m.cfg.publicURL, p) }

// Len is the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objs)
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// treap node ordered by path with a random heap priority.
type node struct {
	path  string
	prio  uint64
	left  *node
	right *node
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	return y
}

func insert(n *node, p string, prio uint64) *node {
	if n == nil {
		return &node{path: p, prio: prio}
	}
	if p < n.path {
		n.left = insert(n.left, p, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, p, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	return n
}

func deleteNode(n *node, p string) *node {
	if n == nil {
		return nil
	}
	switch {
	case p < n.path:
		n.left = deleteNode(n.left, p)
	case p > n.path:
		n.right = deleteNode(n.right, p)
	default:
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, p)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, p)
		}
	}
	return n
}

// collectPrefix visits paths starting with prefix in order. Subtrees that
// sort entirely before or after the prefix range are skipped.
func collectPrefix(n *node, prefix string, visit func(string)) {
	if n == nil {
		return
	}
	if n.path >= prefix {
		collectPrefix(n.left, prefix, visit)
	}
	if strings.HasPrefix(n.path, prefix) {
		visit(n.path)
	}
	if n.path < prefix || strings.HasPrefix(n.path, prefix) {
		collectPrefix(n.right, prefix, visit)
	}
}
