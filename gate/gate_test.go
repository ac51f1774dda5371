package gate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeanpaulrichter/phasorviz/directive"
)

type recorder struct {
	mu   sync.Mutex
	sent []string
	fail error
}

func (r *recorder) Inject(d directive.Directive) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.sent = append(r.sent, d.Render())
	return nil
}

func (r *recorder) rendered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

type answer struct {
	ok    bool
	err   error
	asked int
}

func (a *answer) Confirm(ctx context.Context, title, message string) (bool, error) {
	a.asked++
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return a.ok, a.err
}

func TestReadyDeliversInitWithoutHandoff(t *testing.T) {
	rec := &recorder{}
	g := New(rec, &answer{}, "", nil)

	assert.Equal(t, Loading, g.State())
	require.NoError(t, g.MarkReady())
	assert.Equal(t, Ready, g.State())
	assert.Equal(t, []string{`phasorviz.init()`}, rec.rendered())
}

func TestStartupHandoff(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"https://phasorviz.de/s/ABC123", `phasorviz.download("ABC123")`},
		{"https://phasorviz.de/s/abc123", `phasorviz.init()`},
		{"https://phasorviz.de/s/ABC12", `phasorviz.init()`},
		{"https://phasorviz.de/s/ABC123');evil('", `phasorviz.init()`},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			rec := &recorder{}
			g := New(rec, &answer{}, tt.ref, nil)
			require.NoError(t, g.MarkReady())
			assert.Equal(t, []string{tt.want}, rec.rendered())
		})
	}
}

func TestExactlyOneDirectiveAtReadiness(t *testing.T) {
	rec := &recorder{}
	g := New(rec, &answer{}, "ABC123", nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		out, err := g.Handoff(ctx, "https://phasorviz.de/s/ABC123")
		require.NoError(t, err)
		assert.Equal(t, Queued, out)
	}
	require.NoError(t, g.MarkReady())
	require.NoError(t, g.MarkReady())

	if diff := cmp.Diff([]string{`phasorviz.download("ABC123")`}, rec.rendered()); diff != "" {
		t.Fatalf("directives mismatch (-want +got):\n%s", diff)
	}
}

func TestLastValidHandoffWins(t *testing.T) {
	rec := &recorder{}
	g := New(rec, &answer{}, "", nil)
	ctx := context.Background()

	_, _ = g.Handoff(ctx, "AAAAAA")
	_, _ = g.Handoff(ctx, "BBBBBB")
	out, err := g.Handoff(ctx, "not-a-code")
	require.NoError(t, err)
	assert.Equal(t, Ignored, out)

	d, ok := g.Pending()
	require.True(t, ok)
	assert.Equal(t, `phasorviz.download("BBBBBB")`, d.Render())

	require.NoError(t, g.MarkReady())
	assert.Equal(t, []string{`phasorviz.download("BBBBBB")`}, rec.rendered())
	_, ok = g.Pending()
	assert.False(t, ok)
}

func TestSendBeforeReady(t *testing.T) {
	rec := &recorder{}
	g := New(rec, &answer{}, "", nil)

	err := g.Send(directive.SetLocked(false))
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, rec.rendered())

	require.NoError(t, g.MarkReady())
	require.NoError(t, g.Send(directive.SetLocked(false)))
	assert.Equal(t, []string{`phasorviz.init()`, `phasorviz.setlocked(false)`}, rec.rendered())
}

func TestFailedDeliveryKeepsState(t *testing.T) {
	rec := &recorder{fail: errors.New("page gone")}
	g := New(rec, &answer{}, "ABC123", nil)

	require.Error(t, g.MarkReady())
	assert.Equal(t, Loading, g.State())
	d, ok := g.Pending()
	require.True(t, ok)
	assert.Equal(t, directive.KindDownload, d.Kind())

	rec.fail = nil
	require.NoError(t, g.MarkReady())
	assert.Equal(t, []string{`phasorviz.download("ABC123")`}, rec.rendered())
}

func TestHandoffAfterReady(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed", func(t *testing.T) {
		rec := &recorder{}
		ans := &answer{ok: true}
		g := New(rec, ans, "", nil)
		require.NoError(t, g.MarkReady())

		out, err := g.Handoff(ctx, "https://phasorviz.de/s/XYZ789")
		require.NoError(t, err)
		assert.Equal(t, Delivered, out)
		assert.Equal(t, 1, ans.asked)
		assert.Equal(t, []string{`phasorviz.init()`, `phasorviz.download("XYZ789")`}, rec.rendered())
	})

	t.Run("declined", func(t *testing.T) {
		rec := &recorder{}
		ans := &answer{ok: false}
		g := New(rec, ans, "", nil)
		require.NoError(t, g.MarkReady())

		out, err := g.Handoff(ctx, "XYZ789")
		require.NoError(t, err)
		assert.Equal(t, Declined, out)
		assert.Equal(t, []string{`phasorviz.init()`}, rec.rendered())
		assert.Equal(t, Ready, g.State())
		_, ok := g.Pending()
		assert.False(t, ok)
	})

	t.Run("cancelled", func(t *testing.T) {
		rec := &recorder{}
		g := New(rec, &answer{ok: true}, "", nil)
		require.NoError(t, g.MarkReady())

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		out, err := g.Handoff(cctx, "XYZ789")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, Declined, out)
		assert.Equal(t, []string{`phasorviz.init()`}, rec.rendered())
	})

	t.Run("malformed never asks", func(t *testing.T) {
		ans := &answer{ok: true}
		g := New(&recorder{}, ans, "", nil)
		require.NoError(t, g.MarkReady())

		out, err := g.Handoff(ctx, "xyz789")
		require.NoError(t, err)
		assert.Equal(t, Ignored, out)
		assert.Zero(t, ans.asked)
	})
}
