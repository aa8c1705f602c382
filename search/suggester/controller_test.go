package suggester

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/noelzubin/notes_switcher/search"
	"github.com/noelzubin/notes_switcher/search/fuzzy_indexer"
	"github.com/noelzubin/notes_switcher/search/synchronizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSource struct {
	mu     sync.Mutex
	inputs []string
}

func (s *recordingSource) Suggest(input string) []search.Result {
	s.mu.Lock()
	s.inputs = append(s.inputs, input)
	s.mu.Unlock()
	return []search.Result{{Item: search.NewCandidate(input, "md")}}
}

func (s *recordingSource) Commit(context.Context, *search.Result, string, bool) (Outcome, error) {
	return Outcome{}, nil
}

func (s *recordingSource) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

type fakeStorage struct {
	parent  string
	folders map[string]bool
	created []string
	mkdirs  []string
	err     error
}

func (s *fakeStorage) Create(_ context.Context, p, _ string) (*search.File, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, p)
	return search.NewFile(p), nil
}

func (s *fakeStorage) Exists(_ context.Context, p string) (bool, error) {
	return s.folders[p], nil
}

func (s *fakeStorage) CreateFolder(_ context.Context, p string) error {
	s.mkdirs = append(s.mkdirs, p)
	return nil
}

func (s *fakeStorage) NewFileParent() string { return s.parent }

type fakeWorkspace struct {
	opened []string
	tabs   []bool
	err    error
}

func (w *fakeWorkspace) Open(_ context.Context, f *search.File, newTab bool) error {
	if w.err != nil {
		return w.err
	}
	w.opened = append(w.opened, f.Path)
	w.tabs = append(w.tabs, newTab)
	return nil
}

type fakeMetadata struct {
	unresolved []string
}

func (m *fakeMetadata) Aliases(string) []string   { return nil }
func (m *fakeMetadata) UnresolvedLinks() []string { return m.unresolved }

type fixture struct {
	sync      *synchronizer.Synchronizer
	storage   *fakeStorage
	workspace *fakeWorkspace
	ctrl      *Controller
}

func newFixture(t *testing.T, paths ...string) *fixture {
	t.Helper()
	meta := &fakeMetadata{}
	s := synchronizer.New(fuzzy_indexer.New(search.DefaultFileOptions()), meta, synchronizer.Options{UnresolvedLinks: true}, nil, nil)
	files := make([]search.SearchFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, search.Classify(search.NewFile(p), nil))
	}
	s.Load(files)

	storage := &fakeStorage{folders: map[string]bool{}}
	workspace := &fakeWorkspace{}
	fs := NewFileSuggester(s, storage, workspace, 20, nil)
	ctrl := NewController(fs, fs, 0, nil)
	t.Cleanup(ctrl.Close)
	return &fixture{sync: s, storage: storage, workspace: workspace, ctrl: ctrl}
}

func TestControllerDebounce(t *testing.T) {
	src := &recordingSource{}
	ctrl := NewController(src, src, 20*time.Millisecond, nil)
	defer ctrl.Close()

	done := make(chan Update, 4)
	ctrl.OnUpdate(func(u Update) {
		if u.State == StateShowing {
			done <- u
		}
	})

	ctrl.SetInput("g")
	ctrl.SetInput("ga")
	ctrl.SetInput("gar")
	assert.Equal(t, StateQuerying, ctrl.State())

	select {
	case u := <-done:
		assert.Equal(t, "gar", u.Input)
		require.Len(t, u.Results, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no suggestions published")
	}
	assert.Equal(t, []string{"gar"}, src.calls())
}

func TestControllerDismissCancelsPendingQuery(t *testing.T) {
	src := &recordingSource{}
	ctrl := NewController(src, src, 20*time.Millisecond, nil)
	defer ctrl.Close()

	ctrl.SetInput("draft")
	ctrl.Dismiss()
	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, src.calls())
	assert.Equal(t, StateIdle, ctrl.State())
	assert.Equal(t, "draft", ctrl.Input())
}

func TestControllerFlush(t *testing.T) {
	src := &recordingSource{}
	ctrl := NewController(src, src, time.Hour, nil)
	defer ctrl.Close()

	ctrl.SetInput("plan")
	ctrl.Flush()
	assert.Equal(t, StateShowing, ctrl.State())
	assert.Equal(t, []string{"plan"}, src.calls())

	// Nothing pending.
	ctrl.Flush()
	assert.Len(t, src.calls(), 1)
}

func TestControllerEmptyInput(t *testing.T) {
	f := newFixture(t, "Garden.md")

	f.ctrl.SetInput("gar")
	assert.Equal(t, StateShowing, f.ctrl.State())

	f.ctrl.SetInput("")
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.Empty(t, f.ctrl.Results())
}

func TestControllerFallbackCandidate(t *testing.T) {
	f := newFixture(t, "Garden.md")

	f.ctrl.SetInput("Foo")
	require.Equal(t, StateShowing, f.ctrl.State())
	results := f.ctrl.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "Foo.md", results[0].Item.Name)
	assert.False(t, results[0].Item.IsCreated)
	assert.False(t, results[0].Item.IsUnresolved)
}

func TestControllerNoFallbackForOtherTypes(t *testing.T) {
	f := newFixture(t, "Garden.md", "scan.pdf")

	f.ctrl.SetInput("pdf")
	require.True(t, f.ctrl.ActivateFilter())

	f.ctrl.SetInput("Foo")
	assert.Equal(t, StateEmpty, f.ctrl.State())
	assert.Empty(t, f.ctrl.Results())
}

func TestControllerNavigationWraps(t *testing.T) {
	f := newFixture(t, "alpha.md", "alpine.md", "alps.md")

	f.ctrl.SetInput("alp")
	require.Len(t, f.ctrl.Results(), 3)

	f.ctrl.Prev()
	last, ok := f.ctrl.Selected()
	require.True(t, ok)
	assert.Equal(t, f.ctrl.Results()[2].Item.Path, last.Item.Path)

	f.ctrl.Next()
	first, _ := f.ctrl.Selected()
	assert.Equal(t, f.ctrl.Results()[0].Item.Path, first.Item.Path)
}

func TestControllerFilter(t *testing.T) {
	f := newFixture(t, "Garden.md", "scan.pdf", "Garden plan.pdf")

	f.ctrl.SetInput("xyz")
	assert.False(t, f.ctrl.ActivateFilter())

	f.ctrl.SetInput("PDF")
	require.True(t, f.ctrl.ActivateFilter())
	assert.Equal(t, search.Filter("pdf"), f.ctrl.Filter())
	assert.Equal(t, search.Filter("pdf"), f.sync.Filter())
	assert.Equal(t, "", f.ctrl.Input())

	f.ctrl.SetInput("garden")
	for _, r := range f.ctrl.Results() {
		assert.Equal(t, "pdf", r.Item.Extension)
	}

	// Backspace with text only edits the text.
	assert.False(t, f.ctrl.Backspace())

	f.ctrl.SetInput("")
	assert.True(t, f.ctrl.Backspace())
	assert.Equal(t, search.NoFilter, f.ctrl.Filter())
	assert.Equal(t, search.NoFilter, f.sync.Filter())

	assert.False(t, f.ctrl.Backspace())
}

func TestCommitOpensCreatedFile(t *testing.T) {
	f := newFixture(t, "Garden.md", "Note.md")
	ctx := context.Background()

	f.ctrl.SetInput("garden")
	committed, err := f.ctrl.Commit(ctx, true)
	require.NoError(t, err)
	assert.True(t, committed)

	assert.Equal(t, []string{"Garden.md"}, f.workspace.opened)
	assert.Equal(t, []bool{true}, f.workspace.tabs)
	assert.Empty(t, f.storage.created)
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.Equal(t, "", f.ctrl.Input())
}

func TestCommitWithoutSuggestionsDoesNothing(t *testing.T) {
	f := newFixture(t, "Garden.md")

	committed, err := f.ctrl.Commit(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, committed)
	assert.Empty(t, f.workspace.opened)
	assert.Empty(t, f.storage.created)
}

func TestCommitCreatesCandidate(t *testing.T) {
	f := newFixture(t, "Garden.md")
	f.storage.parent = "inbox"

	f.ctrl.SetInput("Fresh idea")
	committed, err := f.ctrl.Commit(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, committed)

	assert.Equal(t, []string{"inbox/Fresh idea.md"}, f.storage.created)
	assert.Equal(t, []string{"inbox/Fresh idea.md"}, f.workspace.opened)
}

func TestCommitCreatesUnresolvedTarget(t *testing.T) {
	f := newFixture(t, "Garden.md")
	meta := &fakeMetadata{unresolved: []string{"projects/new idea.md"}}
	s := synchronizer.New(fuzzy_indexer.New(search.DefaultFileOptions()), meta, synchronizer.Options{UnresolvedLinks: true}, nil, nil)
	require.Equal(t, 1, s.Resolve())
	fs := NewFileSuggester(s, f.storage, f.workspace, 20, nil)
	ctrl := NewController(fs, fs, 0, nil)
	defer ctrl.Close()

	ctrl.SetInput("new idea")
	selected, ok := ctrl.Selected()
	require.True(t, ok)
	require.True(t, selected.Item.IsUnresolved)

	committed, err := ctrl.Commit(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, []string{"projects"}, f.storage.mkdirs)
	assert.Equal(t, []string{"projects/new idea.md"}, f.storage.created)
	assert.Equal(t, []string{"projects/new idea.md"}, f.workspace.opened)
}

func TestCommitSkipsExistingFolder(t *testing.T) {
	f := newFixture(t)
	f.storage.folders["projects"] = true
	fs := NewFileSuggester(f.sync, f.storage, f.workspace, 20, nil)

	sel := &search.Result{Item: search.SynthesizeUnresolved("projects/plan.md")}
	out, err := fs.Commit(context.Background(), sel, "plan", false)
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Empty(t, f.storage.mkdirs)
}

func TestCreateSwitchesToExistingNote(t *testing.T) {
	f := newFixture(t, "notes/Garden.md")

	f.ctrl.SetInput("Garden")
	committed, err := f.ctrl.Create(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, committed)

	assert.Empty(t, f.storage.created)
	assert.Equal(t, []string{"notes/Garden.md"}, f.workspace.opened)
}

func TestCreateRejectsEmptyInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Create(context.Background(), false)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, f.storage.created)
}

func TestCommitErrorKeepsState(t *testing.T) {
	f := newFixture(t, "Garden.md")
	f.workspace.err = errors.New("editor crashed")

	f.ctrl.SetInput("garden")
	_, err := f.ctrl.Commit(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, f.workspace.err)
	assert.Equal(t, StateShowing, f.ctrl.State())
	assert.Equal(t, "garden", f.ctrl.Input())
}

func TestCommitStorageError(t *testing.T) {
	f := newFixture(t)
	f.storage.err = errors.New("read-only vault")

	f.ctrl.SetInput("Fresh")
	_, err := f.ctrl.Commit(context.Background(), false)
	assert.ErrorIs(t, err, f.storage.err)
	assert.Empty(t, f.workspace.opened)
}

func TestImageSuggester(t *testing.T) {
	s := NewImageSynchronizer(nil, nil)
	s.Load([]search.SearchFile{
		search.Classify(search.NewFile("assets/cat.png"), nil),
		search.Classify(search.NewFile("assets/dog.jpg"), nil),
		search.Classify(search.NewFile("cat notes.md"), nil),
	})
	is := NewImageSuggester(s)
	ctrl := NewController(is, is, 0, nil)
	defer ctrl.Close()

	ctrl.SetInput("cat")
	results := ctrl.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "assets/cat.png", results[0].Item.Path)

	// Images are never filtered by the user.
	ctrl.SetInput("png")
	assert.False(t, ctrl.ActivateFilter())

	ctrl.SetInput("cat")
	committed, err := ctrl.Commit(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, "assets/cat.png", ctrl.Input())
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestImageCommitWithoutSelection(t *testing.T) {
	s := NewImageSynchronizer(nil, nil)
	s.Load([]search.SearchFile{search.Classify(search.NewFile("assets/cat.png"), nil)})
	is := NewImageSuggester(s)
	ctrl := NewController(is, is, 0, nil)
	defer ctrl.Close()

	ctrl.SetInput("zzzz")
	require.Equal(t, StateEmpty, ctrl.State())

	committed, err := ctrl.Commit(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, committed)
	assert.Equal(t, "zzzz", ctrl.Input())
}

type blockingCommitter struct {
	started chan struct{}
	release chan struct{}
}

func (c *blockingCommitter) Commit(context.Context, *search.Result, string, bool) (Outcome, error) {
	close(c.started)
	<-c.release
	return Outcome{}, nil
}

func TestCommitKeepsInputTypedMeanwhile(t *testing.T) {
	src := &recordingSource{}
	committer := &blockingCommitter{started: make(chan struct{}), release: make(chan struct{})}
	ctrl := NewController(src, committer, 0, nil)
	defer ctrl.Close()

	ctrl.SetInput("first")
	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Commit(context.Background(), false)
		done <- err
	}()

	<-committer.started
	ctrl.SetInput("second")
	close(committer.release)
	require.NoError(t, <-done)

	assert.Equal(t, "second", ctrl.Input())
	assert.Equal(t, StateShowing, ctrl.State())
	require.Len(t, ctrl.Results(), 1)
	assert.Equal(t, "second", ctrl.Results()[0].Item.Basename)
}

func TestCreateKeepsLiteralName(t *testing.T) {
	f := newFixture(t)

	f.ctrl.SetInput("Trailing ")
	committed, err := f.ctrl.Create(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, []string{"Trailing .md"}, f.storage.created)

	f.ctrl.SetInput("   ")
	_, err = f.ctrl.Create(context.Background(), false)
	assert.ErrorIs(t, err, ErrEmptyInput)
}
