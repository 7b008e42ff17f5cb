// Package scanner turns a directory handle, or a flat remote listing, into
// the ordered Markdown file tree the workspace works from.
package scanner

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/storage"
)

// ignorePatterns covers dependency, build, env, log, coverage, editor, OS,
// cache and VCS artifacts.
var ignorePatterns = []string{
	"node_modules", "bower_components", "vendor",
	"dist", "build", "out", ".next", ".nuxt", ".output", "target",
	".env", ".env.*",
	"*.log", "logs",
	"coverage", ".nyc_output",
	".idea", ".vscode", "*.swp", "*~",
	".DS_Store", "Thumbs.db",
	".cache", ".parcel-cache", ".turbo",
	".git", ".svn", ".hg",
}

// matchName reports whether a single path segment hits the ignore list.
func matchName(name string) bool {
	for _, p := range ignorePatterns {
		if p == name {
			return true
		}
		if strings.ContainsAny(p, "*?[") {
			if ok, _ := path.Match(p, name); ok {
				return true
			}
		}
	}
	return false
}

// IsIgnored reports whether p, or any of its segments, matches an ignore rule.
func IsIgnored(p string) bool {
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if seg != "" && matchName(seg) {
			return true
		}
	}
	return false
}

// IsMarkdown reports whether name has a Markdown extension.
func IsMarkdown(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".md" || ext == ".markdown"
}

// Scan enumerates dir depth-first and returns its Markdown tree. relativePath
// is the path of dir below the workspace root ("" for the root). A branch
// that cannot be enumerated fails the whole call.
func Scan(ctx context.Context, dir storage.Dir, relativePath string, includeEmptyDirs bool) ([]models.FileTreeNode, error) {
	entries, err := dir.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner: list %q: %w", relativePath, err)
	}

	nodes := make([]models.FileTreeNode, 0, len(entries))
	for _, e := range entries {
		p := joinPath(relativePath, e.Name)
		if matchName(e.Name) || IsIgnored(p) {
			continue
		}
		if e.IsDir() {
			sub, err := dir.Dir(ctx, e.Name, false)
			if err != nil {
				return nil, fmt.Errorf("scanner: open %q: %w", p, err)
			}
			children, err := Scan(ctx, sub, p, includeEmptyDirs)
			if err != nil {
				return nil, err
			}
			if len(children) == 0 && !includeEmptyDirs {
				continue
			}
			nodes = append(nodes, models.FileTreeNode{
				Name: e.Name, Path: p, IsDirectory: true, Children: children,
			})
			continue
		}
		if IsMarkdown(e.Name) {
			nodes = append(nodes, models.FileTreeNode{Name: e.Name, Path: p})
		}
	}
	sortNodes(nodes)
	return nodes, nil
}

// BuildTree builds the same ordered tree from a flat list of root-relative
// paths, as returned by a repository listing. A path ending in "/" names a
// directory, which only matters when includeEmptyDirs is set.
func BuildTree(paths []string, includeEmptyDirs bool) []models.FileTreeNode {
	root := &treeBuilder{children: map[string]*treeBuilder{}}
	for _, raw := range paths {
		isDir := strings.HasSuffix(raw, "/")
		p := strings.Trim(raw, "/")
		if p == "" || IsIgnored(p) {
			continue
		}
		if !isDir && !IsMarkdown(path.Base(p)) {
			continue
		}
		segs := strings.Split(p, "/")
		n := root
		for i, seg := range segs {
			last := i == len(segs)-1
			child, ok := n.children[seg]
			if !ok {
				child = &treeBuilder{
					name:     seg,
					path:     strings.Join(segs[:i+1], "/"),
					dir:      !last || isDir,
					children: map[string]*treeBuilder{},
				}
				n.children[seg] = child
			}
			n = child
		}
	}
	return root.build(includeEmptyDirs)
}

type treeBuilder struct {
	name     string
	path     string
	dir      bool
	children map[string]*treeBuilder
}

func (b *treeBuilder) build(includeEmptyDirs bool) []models.FileTreeNode {
	nodes := make([]models.FileTreeNode, 0, len(b.children))
	for _, c := range b.children {
		if !c.dir {
			nodes = append(nodes, models.FileTreeNode{Name: c.name, Path: c.path})
			continue
		}
		children := c.build(includeEmptyDirs)
		if len(children) == 0 && !includeEmptyDirs {
			continue
		}
		nodes = append(nodes, models.FileTreeNode{
			Name: c.name, Path: c.path, IsDirectory: true, Children: children,
		})
	}
	sortNodes(nodes)
	return nodes
}

// Flatten returns the file nodes of the tree depth-first, in tree order.
func Flatten(nodes []models.FileTreeNode) []models.FileTreeNode {
	var out []models.FileTreeNode
	var walk func([]models.FileTreeNode)
	walk = func(ns []models.FileTreeNode) {
		for _, n := range ns {
			if n.IsDirectory {
				walk(n.Children)
				continue
			}
			out = append(out, n)
		}
	}
	walk(nodes)
	return out
}

// sortNodes orders directories first, then by name under the root locale.
// A collator is not safe for concurrent use, so each call builds its own.
func sortNodes(nodes []models.FileTreeNode) {
	c := collate.New(language.Und)
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.IsDirectory != b.IsDirectory {
			return a.IsDirectory
		}
		if r := c.CompareString(a.Name, b.Name); r != 0 {
			return r < 0
		}
		return a.Name < b.Name
	})
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
