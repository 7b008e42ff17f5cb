package workspace

import (
	"path"

	"github.com/starford/folio/internal/models"
)

// The Apply helpers patch the snapshot after a successful single-file write
// so no rescan is needed. Each is a no-op when projectKey is not the live
// workspace. The cache is updated in the background.

// ApplyAdded appends doc, replacing any post already at its path.
func (s *Store) ApplyAdded(projectKey string, doc models.Document) {
	s.applyPosts(projectKey, func(posts []models.Document) []models.Document {
		out := make([]models.Document, 0, len(posts)+1)
		for _, p := range posts {
			if p.Path != doc.Path {
				out = append(out, p)
			}
		}
		return append(out, doc)
	})
}

// ApplyUpdated replaces the post at doc.Path in place, appending it when the
// path is not known yet.
func (s *Store) ApplyUpdated(projectKey string, doc models.Document) {
	s.applyPosts(projectKey, func(posts []models.Document) []models.Document {
		out := make([]models.Document, 0, len(posts)+1)
		found := false
		for _, p := range posts {
			if p.Path == doc.Path {
				p = doc
				found = true
			}
			out = append(out, p)
		}
		if !found {
			out = append(out, doc)
		}
		return out
	})
}

// ApplyDeleted removes the post at p.
func (s *Store) ApplyDeleted(projectKey, p string) {
	s.applyPosts(projectKey, func(posts []models.Document) []models.Document {
		out := make([]models.Document, 0, len(posts))
		for _, d := range posts {
			if d.Path != p {
				out = append(out, d)
			}
		}
		return out
	})
}

// ApplyPathChanged moves the post at oldPath to newPath, keeping its
// position. A post already at newPath is dropped.
func (s *Store) ApplyPathChanged(projectKey, oldPath, newPath string) {
	s.applyPosts(projectKey, func(posts []models.Document) []models.Document {
		out := make([]models.Document, 0, len(posts))
		for _, d := range posts {
			switch d.Path {
			case newPath:
				continue
			case oldPath:
				d.Path = newPath
				d.Name = path.Base(newPath)
			}
			out = append(out, d)
		}
		return out
	})
}

func (s *Store) applyPosts(projectKey string, fn func([]models.Document) []models.Document) {
	var posts []models.Document
	if s.updateIf(projectKey, func(st *models.WorkspaceState) {
		st.Posts = fn(st.Posts)
		posts = st.Posts
	}) {
		s.persist(projectKey, posts, nil)
	}
}
