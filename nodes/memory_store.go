package nodes

import (
	"context"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memoryStore serializes all writers with one lock.
type memoryStore struct {
	mu    sync.RWMutex
	nodes map[primitive.ObjectID]*Node
}

func NewMemoryStore() Store {
	return &memoryStore{
		nodes: make(map[primitive.ObjectID]*Node),
	}
}

func (s *memoryStore) Get(ctx context.Context, id primitive.ObjectID) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	n := *node
	return &n, nil
}

func (s *memoryStore) GetByPath(ctx context.Context, owner string, p string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node := s.byPath(owner, path.Clean("/"+p))
	if node == nil {
		return nil, ErrNodeNotFound
	}
	n := *node
	return &n, nil
}

func (s *memoryStore) byPath(owner string, p string) *Node {
	for _, node := range s.nodes {
		if node.Owner == owner && node.Path == p {
			return node
		}
	}
	return nil
}

func (s *memoryStore) Ancestors(ctx context.Context, id primitive.ObjectID) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	ancestors := make([]Node, 0)
	for !node.ParentDir.IsZero() {
		node, ok = s.nodes[node.ParentDir]
		if !ok {
			break
		}
		ancestors = append(ancestors, *node)
	}
	return ancestors, nil
}

func (s *memoryStore) Children(ctx context.Context, id primitive.ObjectID) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	children := make([]Node, 0)
	for _, node := range s.nodes {
		if node.ParentDir == id && !id.IsZero() {
			children = append(children, *node)
		}
	}
	slices.SortFunc(children, func(a, b Node) int {
		return strings.Compare(a.Path, b.Path)
	})
	return children, nil
}

func (s *memoryStore) Create(ctx context.Context, node *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.create(node.Owner, path.Clean("/"+node.Path), node)
	*node = *created
	return nil
}

func (s *memoryStore) create(owner string, p string, template *Node) *Node {
	if existing := s.byPath(owner, p); existing != nil {
		n := *existing
		return &n
	}
	node := &Node{
		Id:      primitive.NewObjectID(),
		Owner:   owner,
		Path:    p,
		IsDir:   true,
		Etag:    NewEtag(),
		ModTime: time.Now().Unix(),
	}
	if template != nil {
		node.IsDir = template.IsDir
		node.Size = template.Size
		if template.Etag != "" {
			node.Etag = template.Etag
		}
		if template.ModTime != 0 {
			node.ModTime = template.ModTime
		}
	}
	if p != "/" {
		parent := s.create(owner, path.Dir(p), nil)
		node.ParentDir = parent.Id
	}
	s.nodes[node.Id] = node
	n := *node
	return &n
}

func (s *memoryStore) Move(ctx context.Context, id primitive.ObjectID, newParent primitive.ObjectID, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	parent, ok := s.nodes[newParent]
	if !ok {
		return ErrNodeNotFound
	}
	oldPath := node.Path
	newPath := path.Join(parent.Path, newName)
	for _, n := range s.nodes {
		if n.Owner == node.Owner && strings.HasPrefix(n.Path, oldPath+"/") {
			n.Path = newPath + strings.TrimPrefix(n.Path, oldPath)
		}
	}
	node.Path = newPath
	node.ParentDir = newParent
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	for nid, n := range s.nodes {
		if n.Owner == node.Owner && strings.HasPrefix(n.Path, node.Path+"/") {
			delete(s.nodes, nid)
		}
	}
	delete(s.nodes, id)
	return nil
}

func (s *memoryStore) ApplyDelta(ctx context.Context, ids []primitive.ObjectID, sizeDelta int64, etag string, modTime int64) error {
	s.update(ids, func(n *Node) {
		n.Size += sizeDelta
		n.Etag = etag
		n.ModTime = modTime
	})
	return nil
}

func (s *memoryStore) BumpEtag(ctx context.Context, ids []primitive.ObjectID, etag string, modTime int64) error {
	s.update(ids, func(n *Node) {
		n.Etag = etag
		n.ModTime = modTime
	})
	return nil
}

func (s *memoryStore) MarkNeedsRecount(ctx context.Context, ids []primitive.ObjectID, etag string, modTime int64) error {
	s.update(ids, func(n *Node) {
		if n.IsDir {
			n.NeedsRecount = true
		}
		n.Etag = etag
		n.ModTime = modTime
	})
	return nil
}

func (s *memoryStore) update(ids []primitive.ObjectID, fn func(*Node)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if n, ok := s.nodes[id]; ok {
			fn(n)
		}
	}
}

func (s *memoryStore) CorrectFolderSize(ctx context.Context, id primitive.ObjectID) (int64, error) {
	children, err := s.Children(ctx, id)
	if err != nil {
		return 0, err
	}
	size, err := sumChildren(ctx, s, children)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return 0, ErrNodeNotFound
	}
	node.Size = size
	node.NeedsRecount = false
	return size, nil
}

func (s *memoryStore) FolderSize(ctx context.Context, id primitive.ObjectID) (int64, error) {
	return folderSize(ctx, s, id)
}

func (s *memoryStore) IsAncestor(ctx context.Context, ancestor primitive.ObjectID, id primitive.ObjectID) (bool, error) {
	return isAncestor(ctx, s, ancestor, id)
}
