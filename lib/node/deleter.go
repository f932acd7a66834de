package node

import (
	"context"

	"github.com/ValentinKolb/dTree/lib/backend"
)

// deleteNode removes the record at p and all its dedicated descendants. The parent
// record is not changed. The caller must hold an exclusive lock covering p.
func (s *Storage) deleteNode(ctx context.Context, p string) error {
	paths, err := s.backend.DescendantsOf(ctx, p)
	if err != nil {
		return wrapError(p, "failed to list descendants", err)
	}
	paths = append(paths, p)
	if err := backend.RemoveMultiple(ctx, s.backend, paths); err != nil {
		return wrapError(p, "failed to remove records", err)
	}
	recordsRemoved.Add(len(paths))
	return nil
}
