package host

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeanpaulrichter/phasorviz/capability"
	"github.com/jeanpaulrichter/phasorviz/directive"
	"github.com/jeanpaulrichter/phasorviz/gate"
	"github.com/jeanpaulrichter/phasorviz/menu"
	"github.com/jeanpaulrichter/phasorviz/storage"
	"github.com/jeanpaulrichter/phasorviz/uistate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePlatform struct {
	loop *uistate.Loop

	mu        sync.Mutex
	bindings  Bindings
	url       string
	delivered []string
	menus     []string
	notices   []string
	confirms  []string
	answer    bool
	selected  string
	closed    bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{loop: uistate.NewLoop()}
}

func (p *fakePlatform) Init(b Bindings) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindings = b
	return nil
}

func (p *fakePlatform) Run(ctx context.Context) error { return p.loop.Run(ctx) }

func (p *fakePlatform) Navigate(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil
}

func (p *fakePlatform) Deliver(d directive.Directive) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered = append(p.delivered, d.Render())
	return nil
}

func (p *fakePlatform) UpdateMenu(menuJSON string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.menus = append(p.menus, menuJSON)
}

func (p *fakePlatform) Notify(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, msg)
}

func (p *fakePlatform) Confirm(_ context.Context, title, message string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirms = append(p.confirms, title+": "+message)
	return p.answer, nil
}

func (p *fakePlatform) SelectFile(context.Context) (string, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected == "" {
		return "", 0, ErrNoSelection
	}
	fi, err := os.Stat(p.selected)
	if err != nil {
		return "", 0, err
	}
	return p.selected, fi.Size(), nil
}

func (p *fakePlatform) DispatchToMain(fn func()) { p.loop.Dispatch(fn) }

func (p *fakePlatform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePlatform) deliveries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.delivered...)
}

func (p *fakePlatform) noticeList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notices...)
}

func (p *fakePlatform) menuList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.menus...)
}

func (p *fakePlatform) call(req string) []byte {
	p.mu.Lock()
	call := p.bindings.Call
	p.mu.Unlock()
	return call([]byte(req))
}

type harness struct {
	t        *testing.T
	platform *fakePlatform
	surface  *Surface
	files    *storage.Gateway
}

func start(t *testing.T, handoff string) *harness {
	t.Helper()
	p := newFakePlatform()
	files := storage.New(storage.Config{DownloadsDir: t.TempDir(), Subdir: "phasorviz"}, nil)
	s := New(Options{
		Platform: p,
		Files:    files,
		Handoff:  handoff,
		Info:     capability.Info{Device: "box", Locale: "eng", VersionCode: 3},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "http://127.0.0.1/index.html") }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		p.mu.Lock()
		defer p.mu.Unlock()
		assert.True(t, p.closed)
		assert.Equal(t, "http://127.0.0.1/index.html", p.url)
	})

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.url != "" && len(p.menus) > 0
	}, 5*time.Second, 5*time.Millisecond)
	return &harness{t: t, platform: p, surface: s, files: files}
}

// onMain runs fn on the UI goroutine and waits for it.
func (h *harness) onMain(fn func()) {
	h.t.Helper()
	done := make(chan struct{})
	h.platform.DispatchToMain(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.t.Fatal("UI goroutine stuck")
	}
}

func (h *harness) menuState() menu.State {
	var st menu.State
	h.onMain(func() { st = h.surface.menu.State() })
	return st
}

func (h *harness) ready() {
	h.t.Helper()
	out := h.platform.call(`{"jsonrpc":"2.0","id":1,"method":"ready"}`)
	require.Contains(h.t, string(out), `"result":null`)
}

func TestStartupInit(t *testing.T) {
	h := start(t, "")
	assert.Equal(t, gate.Loading, h.surface.State())

	h.ready()
	h.ready()

	assert.Empty(t, cmp.Diff([]string{"phasorviz.init()"}, h.platform.deliveries()))
	assert.Equal(t, gate.Ready, h.surface.State())
}

func TestStartupHandoff(t *testing.T) {
	h := start(t, "https://phasorviz.example/share/ABC123")

	outcome, err := h.surface.Handoff(context.Background(), "https://phasorviz.example/share/XYZ789")
	require.NoError(t, err)
	assert.Equal(t, "queued", outcome)

	outcome, err = h.surface.Handoff(context.Background(), "https://phasorviz.example/share/abc123")
	require.NoError(t, err)
	assert.Equal(t, "ignored", outcome)

	h.ready()
	assert.Empty(t, cmp.Diff([]string{`phasorviz.download("XYZ789")`}, h.platform.deliveries()))
}

func TestHandoffAfterReadyNeedsConfirmation(t *testing.T) {
	h := start(t, "")
	h.ready()

	outcome, err := h.surface.Handoff(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "declined", outcome)

	h.platform.mu.Lock()
	h.platform.answer = true
	h.platform.mu.Unlock()

	outcome, err = h.surface.Handoff(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "delivered", outcome)

	assert.Equal(t, []string{"phasorviz.init()", `phasorviz.download("ABC123")`}, h.platform.deliveries())
	h.platform.mu.Lock()
	defer h.platform.mu.Unlock()
	assert.Equal(t, []string{"Warning: Discard current phasors?", "Warning: Discard current phasors?"}, h.platform.confirms)
}

func TestEditingTransitionsReachMenu(t *testing.T) {
	h := start(t, "")
	assert.Equal(t, menu.State{Edit: menu.Disabled, Delete: menu.Disabled, Locked: true}, h.menuState())

	h.platform.call(`{"jsonrpc":"2.0","method":"setEditingEnabled","params":[true]}`)
	assert.Equal(t, menu.Enabled, h.menuState().Edit)

	h.platform.call(`{"jsonrpc":"2.0","method":"enableButtons","params":[true]}`)
	h.platform.call(`{"jsonrpc":"2.0","method":"enableButtons","params":[false]}`)
	st := h.menuState()
	assert.Equal(t, menu.Disabled, st.Edit)
	assert.Equal(t, menu.Disabled, st.Delete)
}

func TestRebuiltMenuReplaysLastTransition(t *testing.T) {
	h := start(t, "")
	h.platform.call(`{"jsonrpc":"2.0","method":"setEditingEnabled","params":[true]}`)
	h.onMain(h.surface.BuildMenu)

	st := h.menuState()
	assert.Equal(t, menu.Enabled, st.Edit)
	assert.Equal(t, menu.Enabled, st.Delete)
}

func TestRebuiltMenuKeepsLock(t *testing.T) {
	h := start(t, "")
	h.ready()

	h.onMain(func() { h.surface.OnMenuAction(menu.ActionLock) })
	h.onMain(h.surface.BuildMenu)

	assert.False(t, h.menuState().Locked)
	assert.Equal(t, []string{"phasorviz.init()", "phasorviz.setlocked(false)"}, h.platform.deliveries())

	menus := h.platform.menuList()
	var items []menu.Item
	require.NoError(t, json.Unmarshal([]byte(menus[len(menus)-1]), &items))
	assert.Equal(t, "Lock", items[0].Title)
}

func TestReadyRendersMenuIntoNewPage(t *testing.T) {
	h := start(t, "")
	h.platform.call(`{"jsonrpc":"2.0","method":"setEditingEnabled","params":[true]}`)
	assert.Equal(t, menu.Enabled, h.menuState().Edit)

	// Everything rendered so far went to the document that was replaced.
	h.platform.mu.Lock()
	h.platform.menus = nil
	h.platform.mu.Unlock()

	h.ready()
	require.Eventually(t, func() bool { return len(h.platform.menuList()) > 0 }, 5*time.Second, 5*time.Millisecond)

	var items []menu.Item
	require.NoError(t, json.Unmarshal([]byte(h.platform.menuList()[0]), &items))
	for _, it := range items {
		if it.ID == int(menu.ActionEdit) {
			assert.True(t, it.Enabled)
		}
	}

	// A reloaded page announces itself again and gets the menu again.
	h.ready()
	require.Eventually(t, func() bool { return len(h.platform.menuList()) == 2 }, 5*time.Second, 5*time.Millisecond)
}

func TestResetBeforeReadyAsksNothing(t *testing.T) {
	h := start(t, "")
	h.platform.mu.Lock()
	h.platform.answer = true
	h.platform.mu.Unlock()

	h.onMain(func() { h.surface.OnMenuAction(menu.ActionReset) })

	h.platform.mu.Lock()
	assert.Empty(t, h.platform.confirms)
	h.platform.mu.Unlock()
	assert.Empty(t, h.platform.deliveries())
}

func TestMenuActionsBeforeReadyAreRefused(t *testing.T) {
	h := start(t, "")

	h.onMain(func() { h.surface.OnMenuAction(menu.ActionLock) })
	h.onMain(func() { h.surface.OnMenuAction(menu.ActionAdd) })

	assert.True(t, h.menuState().Locked)
	assert.Empty(t, h.platform.deliveries())
}

func TestMenuActions(t *testing.T) {
	h := start(t, "")
	h.ready()

	activate := h.platform.bindings.Menu
	activate(int(menu.ActionLock))
	activate(int(menu.ActionAdd))
	activate(int(menu.ActionSaveSVG))
	require.NoError(t, h.surface.MenuAction(context.Background(), "lock"))
	assert.Error(t, h.surface.MenuAction(context.Background(), "explode"))

	require.Eventually(t, func() bool { return len(h.platform.deliveries()) == 5 }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, cmp.Diff([]string{
		"phasorviz.init()",
		"phasorviz.setlocked(false)",
		"phasorviz.add()",
		`phasorviz.dlgSave("svg")`,
		"phasorviz.setlocked(true)",
	}, h.platform.deliveries()))
	assert.True(t, h.menuState().Locked)
}

func TestResetNeedsConfirmation(t *testing.T) {
	h := start(t, "")
	h.ready()

	h.onMain(func() { h.surface.OnMenuAction(menu.ActionReset) })
	require.Eventually(t, func() bool {
		h.platform.mu.Lock()
		defer h.platform.mu.Unlock()
		return len(h.platform.confirms) == 1
	}, 5*time.Second, 10*time.Millisecond)

	h.platform.mu.Lock()
	h.platform.answer = true
	h.platform.mu.Unlock()
	h.onMain(func() { h.surface.OnMenuAction(menu.ActionReset) })

	require.Eventually(t, func() bool { return len(h.platform.deliveries()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "phasorviz.reset()", h.platform.deliveries()[1])
}

func TestLoadJSON(t *testing.T) {
	h := start(t, "")
	h.ready()

	doc := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(doc, []byte(`{"phasors":[]}`), 0o644))
	h.platform.mu.Lock()
	h.platform.selected = doc
	h.platform.mu.Unlock()

	h.onMain(func() { h.surface.OnMenuAction(menu.ActionLoadJSON) })

	require.Eventually(t, func() bool { return len(h.platform.deliveries()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, `phasorviz.load("{\"phasors\":[]}")`, h.platform.deliveries()[1])
}

func TestLoadTooLarge(t *testing.T) {
	h := start(t, "")
	h.ready()

	big := filepath.Join(t.TempDir(), "big.json")
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat("x", 10241)), 0o644))

	err := h.surface.Load(context.Background(), big, 10241)
	assert.ErrorIs(t, err, storage.ErrTooLarge)
	assert.Equal(t, []string{"File too big"}, h.platform.noticeList())
	assert.Len(t, h.platform.deliveries(), 1)

	err = h.surface.LoadFile(filepath.Join(t.TempDir(), "missing.json"), 2)
	assert.ErrorIs(t, err, storage.ErrReadFailed)
	assert.Equal(t, []string{"File too big", "Failed to read file"}, h.platform.noticeList())
}

func TestSaveThroughBridge(t *testing.T) {
	h := start(t, "")

	out := h.platform.call(`{"jsonrpc":"2.0","id":2,"method":"saveFile","params":["a.json","{}"]}`)
	assert.Contains(t, string(out), `"result":null`)
	out = h.platform.call(`{"jsonrpc":"2.0","id":3,"method":"save","params":["a.json","[]"]}`)
	assert.Contains(t, string(out), `"code":-32603`)

	data, err := os.ReadFile(filepath.Join(h.files.Dir(), "a.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	assert.Equal(t, []string{"File saved", "File already exists"}, h.platform.noticeList())
}

func TestNoticeCeiling(t *testing.T) {
	h := start(t, "")

	h.platform.call(`{"jsonrpc":"2.0","method":"notify","params":["` + strings.Repeat("n", 128) + `"]}`)
	h.platform.call(`{"jsonrpc":"2.0","method":"showToast","params":["short"]}`)

	assert.Equal(t, []string{"short"}, h.platform.noticeList())
}
