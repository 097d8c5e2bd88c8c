package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/config"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/image"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/status"
)

const testHead = "0123456789abcdef0123456789abcdef01234567"

type mockFetcher struct {
	head        string
	validateErr error
	fetchErr    error
	fetched     []string
	headReads   int
}

func (m *mockFetcher) Validate(context.Context) (string, error) {
	if m.validateErr != nil {
		return "", m.validateErr
	}
	return m.head, nil
}

func (m *mockFetcher) Fetch(_ context.Context, dest string) error {
	m.fetched = append(m.fetched, dest)
	return m.fetchErr
}

func (m *mockFetcher) Head(string) (string, error) {
	m.headReads++
	return m.head, nil
}

type mockApp struct {
	installs, builds int
	installErr       error
	buildErr         error
}

func (m *mockApp) Install(context.Context) error {
	m.installs++
	return m.installErr
}

func (m *mockApp) Build(context.Context) error {
	m.builds++
	return m.buildErr
}

type mockImage struct {
	built    []image.Options
	logins   []string
	tags     [][2]string
	pushes   []string
	buildErr error
	pushErr  error
}

func (m *mockImage) Build(_ context.Context, opts image.Options) error {
	if m.buildErr != nil {
		return m.buildErr
	}
	m.built = append(m.built, opts)
	return nil
}

func (m *mockImage) Login(_ context.Context, registry, user, _ string) error {
	m.logins = append(m.logins, registry+"/"+user)
	return nil
}

func (m *mockImage) Tag(_ context.Context, from, to string) error {
	m.tags = append(m.tags, [2]string{from, to})
	return nil
}

func (m *mockImage) Push(_ context.Context, ref string) error {
	if m.pushErr != nil {
		return m.pushErr
	}
	m.pushes = append(m.pushes, ref)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	ws := t.TempDir()
	t.Setenv("NEXT_BUILDER_TOKEN", "t")
	t.Setenv("NEXT_BUILDER_ORG", "acme")
	t.Setenv("NEXT_BUILDER_REPO", "site")
	t.Setenv("NEXT_BUILDER_WORKSPACE", ws)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.CheckoutDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config, f *mockFetcher, a *mockApp, i *mockImage) *Pipeline {
	t.Helper()
	p := New(cfg, "t", f, a, i, status.New(cfg.Workspace.StatusDir))
	p.environ = func() []string {
		return []string{
			"NEXT_BUILDER_TOKEN=t",
			"NEXT_BUILDER_ORG=acme",
			"NEXT_PUBLIC_SITE_URL=https://x.test",
			"NEXT_PRIVATE_API_BASE=https://api.test",
		}
	}
	return p
}

func TestExecute_SuccessPath(t *testing.T) {
	cfg := testConfig(t)
	f := &mockFetcher{head: testHead}
	a := &mockApp{}
	i := &mockImage{}
	p := newTestPipeline(t, cfg, f, a, i)

	if err := p.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.State() != StateIdling {
		t.Errorf("state = %q, want %q", p.State(), StateIdling)
	}
	if a.installs != 1 || a.builds != 1 {
		t.Errorf("app builder calls: installs=%d builds=%d", a.installs, a.builds)
	}

	wantSha := "ghcr.io/acme/site:sha-0123456"
	if len(i.pushes) != 2 || i.pushes[0] != wantSha || i.pushes[1] != "ghcr.io/acme/site:latest" {
		t.Errorf("pushed refs = %v, want [%s ghcr.io/acme/site:latest]", i.pushes, wantSha)
	}
	for _, ref := range i.pushes {
		if ref == "ghcr.io/acme/site:0123456" {
			t.Error("bare short-hash tag must never be pushed")
		}
	}
	if len(i.logins) != 1 || i.logins[0] != "ghcr.io/acme" {
		t.Errorf("login = %v, want registry with org as user", i.logins)
	}

	// Env file was written into the checkout.
	b, err := os.ReadFile(filepath.Join(cfg.CheckoutDir(), ".env.production"))
	if err != nil {
		t.Fatalf("env file not written: %v", err)
	}
	if string(b) != "API_BASE=https://api.test\nNEXT_PUBLIC_SITE_URL=https://x.test\n" {
		t.Errorf("env file content: %q", b)
	}

	// Completion marker holds the pushed tag.
	tag, _, err := status.New(cfg.Workspace.StatusDir).ReadDone()
	if err != nil {
		t.Fatalf("done marker: %v", err)
	}
	if tag != wantSha {
		t.Errorf("done tag = %q, want %q", tag, wantSha)
	}

	// Head read after clone and again at signal time.
	if f.headReads != 2 {
		t.Errorf("head reads = %d, want 2", f.headReads)
	}
}

func TestExecute_ShaTagAliasesBareHash(t *testing.T) {
	cfg := testConfig(t)
	i := &mockImage{}
	p := newTestPipeline(t, cfg, &mockFetcher{head: testHead}, &mockApp{}, i)

	if err := p.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(i.tags) != 1 {
		t.Fatalf("expected exactly one tag alias, got %v", i.tags)
	}
	from, to := i.tags[0][0], i.tags[0][1]
	bareHash := strings.TrimPrefix(from, "ghcr.io/acme/site:")
	shaHash := strings.TrimPrefix(to, "ghcr.io/acme/site:sha-")
	if bareHash != shaHash {
		t.Errorf("sha- tag hash %q differs from bare hash %q", shaHash, bareHash)
	}
	if len(i.built) != 1 || i.built[0].ShortHash != bareHash {
		t.Errorf("alias must reference the built image, built=%v from=%q", i.built, from)
	}
}

func TestExecute_ControlVariablesNotInBuildArgs(t *testing.T) {
	cfg := testConfig(t)
	i := &mockImage{}
	p := newTestPipeline(t, cfg, &mockFetcher{head: testHead}, &mockApp{}, i)

	if err := p.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(i.built) != 1 {
		t.Fatalf("expected one image build, got %d", len(i.built))
	}
	for _, v := range i.built[0].BuildArgs {
		if strings.Contains(v.Name, "BUILDER") {
			t.Errorf("control variable leaked into build args: %s", v.Name)
		}
	}
	names := make(map[string]string)
	for _, v := range i.built[0].BuildArgs {
		names[v.Name] = v.Value
	}
	if names["API_BASE"] != "https://api.test" || names["NEXT_PUBLIC_SITE_URL"] != "https://x.test" {
		t.Errorf("forwarded build args wrong: %v", names)
	}
}

func TestExecute_AbortsBeforePushOnImageFailure(t *testing.T) {
	cfg := testConfig(t)
	i := &mockImage{buildErr: image.ErrDockerfileMissing}
	p := newTestPipeline(t, cfg, &mockFetcher{head: testHead}, &mockApp{}, i)

	err := p.Execute(context.Background())
	if !errors.Is(err, image.ErrDockerfileMissing) {
		t.Fatalf("expected ErrDockerfileMissing, got %v", err)
	}
	if p.State() != StateAborted {
		t.Errorf("state = %q, want %q", p.State(), StateAborted)
	}
	if len(i.pushes) != 0 || len(i.logins) != 0 {
		t.Error("no push or login may happen after a failed image build")
	}

	// None of the image/publish status files may exist.
	for _, name := range []string{"current-hash", "registry-path", "last-pushed-tag", "done"} {
		if _, err := os.Stat(filepath.Join(cfg.Workspace.StatusDir, name)); err == nil {
			t.Errorf("status file %q must not exist after abort", name)
		}
	}
}

func TestExecute_AuthFailureAbortsBeforeFetch(t *testing.T) {
	cfg := testConfig(t)
	f := &mockFetcher{head: testHead, validateErr: errors.New("bad credentials")}
	p := newTestPipeline(t, cfg, f, &mockApp{}, &mockImage{})

	if err := p.Execute(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if p.State() != StateAborted {
		t.Errorf("state = %q, want %q", p.State(), StateAborted)
	}
	if len(f.fetched) != 0 {
		t.Error("fetch must not run after failed validation")
	}
}

func TestExecute_AppBuildFailureStopsPipeline(t *testing.T) {
	cfg := testConfig(t)
	i := &mockImage{}
	a := &mockApp{buildErr: errors.New("next build exited 1")}
	p := newTestPipeline(t, cfg, &mockFetcher{head: testHead}, a, i)

	err := p.Execute(context.Background())
	if !errors.Is(err, ErrAppBuildFailed) {
		t.Fatalf("expected ErrAppBuildFailed, got %v", err)
	}
	if len(i.built) != 0 {
		t.Error("image build must not run after a failed app build")
	}
}
