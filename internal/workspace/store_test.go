package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/testutil"
)

// recorder collects every snapshot delivered to a subscriber.
type recorder struct {
	mu    sync.Mutex
	snaps []models.WorkspaceState
}

func (r *recorder) listen(s models.WorkspaceState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []models.WorkspaceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.WorkspaceState(nil), r.snaps...)
}

func paths(posts []models.Document) string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Path
	}
	return strings.Join(out, ",")
}

func memRoot() *storage.MemDir {
	return storage.NewMemDir("blog").
		AddFile("one.md", "---\ntitle: One\n---\nfirst").
		AddFile("two.md", "---\ntitle: Two\n---\nsecond").
		AddFile("three.md", "---\ntitle: Three\n---\nthird")
}

func TestRefreshSkipsUnreadableFile(t *testing.T) {
	root := memRoot()
	root.FailRead("two.md", errors.New("read error"))
	s := New(nil, testutil.DiscardLogger())

	if err := s.Initialize(context.Background(), root); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	snap := s.Snapshot()
	if got := paths(snap.Posts); got != "one.md,three.md" {
		t.Errorf("posts = %s", got)
	}
	if snap.IsLoading || snap.IsLoadingTree {
		t.Errorf("loading flags left set: %+v", snap)
	}
	if snap.Posts[0].Title() != "One" || snap.Posts[1].Body != "third" {
		t.Errorf("unexpected documents: %+v", snap.Posts)
	}
}

func TestSubscribeNotificationOrder(t *testing.T) {
	s := New(nil, testutil.DiscardLogger())
	rec := &recorder{}
	unsubscribe := s.Subscribe(rec.listen)

	if got := rec.all(); len(got) != 1 || got[0].ProjectKey != "" {
		t.Fatalf("initial delivery = %+v", got)
	}
	if err := s.Initialize(context.Background(), memRoot()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	snaps := rec.all()
	last := snaps[len(snaps)-1]
	if last.IsLoading || len(last.Posts) != 3 {
		t.Fatalf("final snapshot = %+v", last)
	}

	treeAt, postsAt := -1, -1
	withPosts := 0
	for i, sn := range snaps {
		if treeAt < 0 && len(sn.FileTree) > 0 {
			treeAt = i
		}
		if len(sn.Posts) > 0 {
			withPosts++
			if postsAt < 0 {
				postsAt = i
			}
		}
	}
	if treeAt < 0 || treeAt >= postsAt {
		t.Errorf("tree should be published before posts: tree=%d posts=%d", treeAt, postsAt)
	}
	if withPosts != 1 {
		t.Errorf("posts published %d times, want once", withPosts)
	}

	unsubscribe()
	n := len(rec.all())
	s.ApplyDeleted("blog", "one.md")
	if len(rec.all()) != n {
		t.Error("listener called after unsubscribe")
	}
}

func TestApplyHelpersStaleGuard(t *testing.T) {
	s := New(nil, testutil.DiscardLogger())
	if err := s.Initialize(context.Background(), memRoot()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	before := s.Snapshot()
	rec := &recorder{}
	s.Subscribe(rec.listen)

	doc := models.Document{Name: "x.md", Path: "x.md", Attributes: models.NewAttributes()}
	s.ApplyAdded("other", doc)
	s.ApplyUpdated("other", doc)
	s.ApplyDeleted("other", "one.md")
	s.ApplyPathChanged("other", "one.md", "moved.md")

	if len(rec.all()) != 1 {
		t.Errorf("stale mutations notified %d times", len(rec.all())-1)
	}
	if paths(s.Snapshot().Posts) != paths(before.Posts) {
		t.Errorf("stale mutation changed posts: %s", paths(s.Snapshot().Posts))
	}
}

func TestApplyHelpers(t *testing.T) {
	s := New(nil, testutil.DiscardLogger())
	if err := s.Initialize(context.Background(), memRoot()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	before := s.Snapshot().Posts

	s.ApplyPathChanged("blog", "two.md", "posts/2.md")
	if got := paths(s.Snapshot().Posts); got != "one.md,three.md,posts/2.md" {
		t.Errorf("after rename = %s", got)
	}
	if p, ok := s.Post("posts/2.md"); !ok || p.Name != "2.md" {
		t.Errorf("renamed post = %+v, %v", p, ok)
	}

	s.ApplyAdded("blog", models.Document{Name: "new.md", Path: "new.md", Attributes: models.NewAttributes()})
	s.ApplyDeleted("blog", "one.md")
	got := s.Snapshot().Posts
	if len(got) != 3 || got[len(got)-1].Path != "new.md" {
		t.Errorf("after add/delete = %s", paths(got))
	}
	if len(before) != 3 || before[0].Path == "posts/2.md" {
		t.Error("earlier snapshot was mutated in place")
	}
}

// baseDir aliases storage.Dir so wrappers can embed it without the field
// name shadowing the interface's Dir method.
type baseDir = storage.Dir

// gateDir blocks root enumeration until released and counts calls.
type gateDir struct {
	baseDir
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gateDir) Entries(ctx context.Context) ([]storage.Entry, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
	}
	<-g.release
	return g.baseDir.Entries(ctx)
}

func TestRefreshSingleFlight(t *testing.T) {
	root := &gateDir{baseDir: memRoot(), entered: make(chan struct{}), release: make(chan struct{})}
	s := New(nil, testutil.DiscardLogger())
	ctx := context.Background()

	errs := make(chan error, 2)
	go func() { errs <- s.Refresh(ctx, root, nil) }()
	<-root.entered
	go func() { errs <- s.Refresh(ctx, root, nil) }()
	time.Sleep(50 * time.Millisecond)
	close(root.release)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Refresh: %v", err)
		}
	}
	if n := root.calls.Load(); n != 1 {
		t.Errorf("root scanned %d times, want 1", n)
	}
}

// overlapDir holds every file open until want opens are in flight at once
// (or a timeout passes) and records the peak overlap.
type overlapDir struct {
	baseDir
	want     int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (d *overlapDir) File(ctx context.Context, name string, create bool) (storage.File, error) {
	f, err := d.baseDir.File(ctx, name, create)
	if err != nil {
		return nil, err
	}
	return &overlapFile{File: f, d: d}, nil
}

type overlapFile struct {
	storage.File
	d *overlapDir
}

func (f *overlapFile) Open(ctx context.Context) (io.ReadCloser, error) {
	n := f.d.inFlight.Add(1)
	defer f.d.inFlight.Add(-1)
	for p := f.d.peak.Load(); n > p && !f.d.peak.CompareAndSwap(p, n); p = f.d.peak.Load() {
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for f.d.inFlight.Load() < f.d.want && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return f.File.Open(ctx)
}

func TestRefreshReadsConcurrently(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		files int
	}{
		{"limit 2", 2, 6},
		{"limit 4", 4, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMemDir("blog")
			for i := 0; i < tt.files; i++ {
				mem.AddFile(fmt.Sprintf("p%d.md", i), "body")
			}
			root := &overlapDir{baseDir: mem, want: int32(tt.limit)}
			s := New(nil, testutil.DiscardLogger(), WithReadConcurrency(tt.limit))

			if err := s.Refresh(context.Background(), root, nil); err != nil {
				t.Fatalf("Refresh: %v", err)
			}
			if got := len(s.Snapshot().Posts); got != tt.files {
				t.Fatalf("posts = %d, want %d", got, tt.files)
			}
			if peak := root.peak.Load(); peak != int32(tt.limit) {
				t.Errorf("peak concurrent reads = %d, want %d", peak, tt.limit)
			}
		})
	}
}

func TestRefreshWithPrecomputedTree(t *testing.T) {
	ctx := context.Background()
	root := memRoot()
	s := New(nil, testutil.DiscardLogger())
	if err := s.Initialize(ctx, root); err != nil {
		t.Fatal(err)
	}
	root.FailList("", errors.New("must not scan"))
	tree := []models.FileTreeNode{{Name: "three.md", Path: "three.md"}, {Name: "one.md", Path: "one.md"}}

	if err := s.Refresh(ctx, root, tree); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	snap := s.Snapshot()
	if got := paths(snap.Posts); got != "three.md,one.md" {
		t.Errorf("posts = %s", got)
	}
	if len(snap.FileTree) != 2 || snap.FileTree[0].Path != "three.md" {
		t.Errorf("tree = %+v", snap.FileTree)
	}
}

func TestInitializePermission(t *testing.T) {
	ctx := context.Background()

	denied := memRoot()
	denied.SetPermission(storage.PermissionPrompt, storage.PermissionDenied)
	s := New(nil, testutil.DiscardLogger())
	if err := s.Initialize(ctx, denied); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if s.Snapshot().ProjectKey != "" {
		t.Error("denied root became the workspace")
	}

	granted := memRoot()
	granted.SetPermission(storage.PermissionPrompt, storage.PermissionGranted)
	if err := s.Initialize(ctx, granted); err != nil {
		t.Fatalf("Initialize after prompt: %v", err)
	}
}

func TestInitializeSwitchResetsState(t *testing.T) {
	ctx := context.Background()
	s := New(nil, testutil.DiscardLogger())
	if err := s.Initialize(ctx, memRoot()); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	s.Subscribe(rec.listen)

	other := storage.NewMemDir("notes").AddFile("n.md", "note")
	if err := s.Initialize(ctx, other); err != nil {
		t.Fatal(err)
	}
	for _, sn := range rec.all()[1:] {
		if sn.ProjectKey != "notes" {
			t.Fatalf("snapshot under old key after switch: %+v", sn)
		}
		if strings.Contains(paths(sn.Posts), "one.md") {
			t.Fatalf("previous workspace posts leaked: %s", paths(sn.Posts))
		}
	}
	if got := paths(s.Snapshot().Posts); got != "n.md" {
		t.Errorf("posts = %s", got)
	}
}

func TestCacheHydrationAndPersistence(t *testing.T) {
	ctx := context.Background()
	c := testutil.TestCache(t)
	cached := models.Document{Name: "cached.md", Path: "cached.md", Attributes: models.NewAttributes()}
	cached.Attributes.Set(models.KeyTitle, models.String("Cached"))
	c.SavePosts(ctx, "blog", []models.Document{cached})

	s := New(c, testutil.DiscardLogger())
	rec := &recorder{}
	s.Subscribe(rec.listen)
	if err := s.Initialize(ctx, memRoot()); err != nil {
		t.Fatal(err)
	}

	sawCached := false
	for _, sn := range rec.all() {
		if paths(sn.Posts) == "cached.md" {
			sawCached = true
		}
	}
	if !sawCached {
		t.Error("cached posts were never shown")
	}

	s.Close()
	posts, ok := c.LoadPosts(ctx, "blog")
	if !ok || len(posts) != 3 {
		t.Errorf("persisted posts = %s, %v", paths(posts), ok)
	}
	if tree, ok := c.LoadTree(ctx, "blog"); !ok || len(tree) != 3 {
		t.Errorf("persisted tree = %+v, %v", tree, ok)
	}
}

func TestInitializeSameWorkspaceKeepsLiveSnapshot(t *testing.T) {
	ctx := context.Background()
	c := testutil.TestCache(t)
	root := memRoot()
	s := New(c, testutil.DiscardLogger())
	if err := s.Initialize(ctx, root); err != nil {
		t.Fatal(err)
	}
	s.Close()

	stale := models.Document{Name: "stale.md", Path: "stale.md", Attributes: models.NewAttributes()}
	c.SavePosts(ctx, "blog", []models.Document{stale})

	rec := &recorder{}
	s.Subscribe(rec.listen)
	if err := s.Initialize(ctx, root); err != nil {
		t.Fatal(err)
	}
	for _, sn := range rec.all() {
		if strings.Contains(paths(sn.Posts), "stale.md") {
			t.Fatalf("cached posts replaced the live snapshot: %s", paths(sn.Posts))
		}
	}
	if got := paths(s.Snapshot().Posts); got != "one.md,three.md,two.md" {
		t.Errorf("posts = %s", got)
	}
}

func TestWriteHelpers(t *testing.T) {
	ctx := context.Background()
	dir, root := testutil.TestRoot(t, map[string]string{
		"posts/a.md": "---\ntitle: A\nweight: 3\n---\nbody a",
	})
	s := New(nil, testutil.DiscardLogger())
	if err := s.Initialize(ctx, root); err != nil {
		t.Fatal(err)
	}
	key := root.Name()

	updates := models.NewAttributes()
	updates.Set(models.KeyTags, models.Strings("go"))
	doc, err := s.UpdateAttributes(ctx, root, "posts/a.md", updates)
	if err != nil {
		t.Fatalf("UpdateAttributes: %v", err)
	}
	if w, _ := doc.Attributes.Get("weight"); w.Num() != 3 {
		t.Errorf("custom field lost: %v", doc.Attributes.Keys())
	}
	raw, _ := os.ReadFile(filepath.Join(dir, "posts", "a.md"))
	if !strings.Contains(string(raw), "weight: 3") || !strings.Contains(string(raw), "- go") {
		t.Errorf("file content = %q", raw)
	}

	attrs := models.NewAttributes()
	attrs.Set(models.KeyAuthor, models.String("me"))
	created, err := s.CreatePost(ctx, root, "posts/new-post.md", attrs, "hello")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if created.Title() != "new-post" || created.Body != "hello" {
		t.Errorf("created = %+v", created)
	}
	if _, err := s.CreatePost(ctx, root, "posts/new-post.md", nil, ""); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v", err)
	}
	if _, err := s.CreatePost(ctx, root, "posts/image.png", nil, ""); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("non-markdown create err = %v", err)
	}

	if err := s.RenamePost(ctx, root, "posts/new-post.md", "drafts/renamed.md"); err != nil {
		t.Fatalf("RenamePost: %v", err)
	}
	if _, ok := s.Post("drafts/renamed.md"); !ok {
		t.Error("renamed post missing from snapshot")
	}
	if err := s.DeletePost(ctx, root, "posts/a.md"); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}

	snap := s.Snapshot()
	if snap.ProjectKey != key || paths(snap.Posts) != "drafts/renamed.md" {
		t.Errorf("posts = %s", paths(snap.Posts))
	}
	if len(snap.FileTree) != 1 || snap.FileTree[0].Name != "drafts" {
		t.Errorf("tree not rescanned: %+v", snap.FileTree)
	}
	if _, err := os.Stat(filepath.Join(dir, "posts", "a.md")); !os.IsNotExist(err) {
		t.Errorf("deleted file still on disk: %v", err)
	}
}
