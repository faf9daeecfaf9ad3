package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/AgentOS/browserworker/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/browserworker/internal/testutil"
	"github.com/GriffinCanCode/AgentOS/browserworker/page"
	"github.com/GriffinCanCode/AgentOS/browserworker/page/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBrowser struct {
	mock.Mock
}

func (b *mockBrowser) NewPage(ctx context.Context) (page.Page, error) {
	ret := b.Called(ctx)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(page.Page), ret.Error(1)
}

func (b *mockBrowser) Close() error {
	return b.Called().Error(0)
}

func newSandboxLauncher(t *testing.T) (*Launcher, *sandbox.Browser) {
	t.Helper()
	b := sandbox.NewBrowser(sandbox.DefaultConfig())
	l := NewLauncher(b)
	t.Cleanup(func() { _ = l.Close() })
	return l, b
}

func TestLauncherCreateWorkerFromString(t *testing.T) {
	l, b := newSandboxLauncher(t)
	ctx := context.Background()

	w, err := l.CreateWorkerFromString(ctx, echoScript)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Stats()["pages"])

	messages := collect(w.Worker, EventMessage)
	require.NoError(t, w.PostMessage(ctx, "managed"))
	assert.JSONEq(t, `"managed"`, string(next(t, messages).(*MessageEvent).Data))

	// Terminate also closes the owned page
	require.NoError(t, w.Terminate(ctx))
	require.NoError(t, w.Terminate(ctx))
	assert.Equal(t, 0, b.Stats()["pages"])
	_, err = w.Page().Evaluate(ctx, "() => 1")
	assert.ErrorIs(t, err, page.ErrClosed)
}

func TestLauncherWorkersGetOwnPages(t *testing.T) {
	l, b := newSandboxLauncher(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "worker.js")
	require.NoError(t, os.WriteFile(path, []byte(echoScript), 0o644))

	a, err := l.CreateWorkerFromFile(ctx, path)
	require.NoError(t, err)
	c, err := l.CreateWorkerFromString(ctx, echoScript)
	require.NoError(t, err)
	assert.NotSame(t, a.Page(), c.Page())
	assert.Equal(t, 2, b.Stats()["pages"])

	require.NoError(t, a.Terminate(ctx))
	assert.Equal(t, 1, b.Stats()["pages"])
	require.NoError(t, c.Terminate(ctx))
}

func TestLauncherClosesPageOnFailure(t *testing.T) {
	boom := errors.New("page crashed")
	p := testutil.NewMockPage(t)
	p.ExpectedCalls = nil
	p.On("Goto", mock.Anything, "about:blank").Return(nil)
	p.On("ExposeFunction", mock.Anything, mock.Anything, mock.Anything).Return(boom)
	p.On("Close", mock.Anything).Return(nil)

	b := &mockBrowser{}
	b.On("NewPage", mock.Anything).Return(p, nil)
	b.On("Close").Return(nil)

	l := NewLauncher(b)
	_, err := l.CreateWorkerFromURL(context.Background(), "https://example.com/w.js")
	assert.ErrorIs(t, err, boom)
	p.AssertCalled(t, "Close", mock.Anything)

	require.NoError(t, l.Close())
	b.AssertCalled(t, "Close")
}

func TestLauncherNewPageFailure(t *testing.T) {
	b := &mockBrowser{}
	b.On("NewPage", mock.Anything).Return(nil, page.ErrClosed)

	_, err := NewLauncher(b).CreateWorkerFromString(context.Background(), echoScript)
	assert.ErrorIs(t, err, page.ErrClosed)
}

func TestLaunch(t *testing.T) {
	ctx := context.Background()

	t.Run("sandbox backend", func(t *testing.T) {
		cfg := config.Default()
		cfg.Browser.Backend = config.BackendSandbox
		cfg.Logging.Level = "error"

		l, err := Launch(ctx, cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = l.Close() })
		assert.IsType(t, &sandbox.Browser{}, l.Browser())

		w, err := l.CreateWorkerFromString(ctx, echoScript)
		require.NoError(t, err)
		require.NoError(t, w.Terminate(ctx))
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "worker.yaml")
		require.NoError(t, os.WriteFile(path, []byte("browser:\n  backend: sandbox\nlogging:\n  level: error\n"), 0o644))

		l, err := LaunchFromFile(ctx, path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = l.Close() })
		assert.IsType(t, &sandbox.Browser{}, l.Browser())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := config.Default()
		cfg.Browser.Backend = "firefox"

		_, err := Launch(ctx, cfg)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LaunchFromFile(ctx, filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
}
