// Package pipeline orchestrates the build-and-publish run: fetch the
// source, materialize the env file, build the application, build the
// image, push it, and record completion. Values flow between steps
// through the in-memory Run context; status files are written alongside
// for external watchers only.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/config"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/envfile"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/errs"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/image"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/source"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/status"
)

var (
	ErrFetchFailed     = errors.New("pipeline: source fetch failed")
	ErrConfigureFailed = errors.New("pipeline: env materialization failed")
	ErrAppBuildFailed  = errors.New("pipeline: application build failed")
	ErrImageFailed     = errors.New("pipeline: image build failed")
	ErrPushFailed      = errors.New("pipeline: image push failed")
	ErrSignalFailed    = errors.New("pipeline: completion signal failed")
)

// Fetcher obtains and inspects the working copy.
type Fetcher interface {
	Validate(ctx context.Context) (string, error)
	Fetch(ctx context.Context, dest string) error
	Head(dest string) (string, error)
}

// AppBuilder installs dependencies and runs the production build.
type AppBuilder interface {
	Install(ctx context.Context) error
	Build(ctx context.Context) error
}

// ImageEngine builds, tags and publishes the container image.
type ImageEngine interface {
	Build(ctx context.Context, opts image.Options) error
	Login(ctx context.Context, registry, user, token string) error
	Tag(ctx context.Context, from, to string) error
	Push(ctx context.Context, ref string) error
}

// Run is the context threaded through the steps of one pipeline
// invocation. It replaces reading values back out of status files.
type Run struct {
	ID        uuid.UUID
	StartedAt time.Time

	Hash      string
	ShortHash string
	Registry  string
	PushedTag string

	CompletedAt time.Time
}

type Pipeline struct {
	cfg     *config.Config
	token   string
	fetcher Fetcher
	app     AppBuilder
	img     ImageEngine
	store   *status.Store

	// environ is swappable so tests can inject a synthetic environment.
	environ func() []string

	state State
	run   Run
}

func New(cfg *config.Config, token string, fetcher Fetcher, app AppBuilder, img ImageEngine, store *status.Store) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		token:   token,
		fetcher: fetcher,
		app:     app,
		img:     img,
		store:   store,
		environ: os.Environ,
		state:   StateStart,
	}
}

func (p *Pipeline) State() State { return p.state }
func (p *Pipeline) Run() Run     { return p.run }

// Execute walks the linear state sequence. The first failing step aborts
// the run; there is no retry or resume at this level.
func (p *Pipeline) Execute(ctx context.Context) error {
	p.run = Run{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		Registry:  p.cfg.RegistryPath(),
	}
	log := slog.Default().With("run", p.run.ID.String())
	log.Info("pipeline starting",
		"org", p.cfg.GitHub.Org,
		"repo", p.cfg.GitHub.Repo,
		"branch", p.cfg.GitHub.Branch,
		"network", p.cfg.Agent.Network,
	)

	steps := []struct {
		next State
		fn   func(context.Context) error
	}{
		{StateAuthenticated, p.authenticate},
		{StateFetched, p.fetch},
		{StateConfigured, p.configure},
		{StateAppBuilt, p.buildApp},
		{StateImageBuilt, p.buildImage},
		{StatePushed, p.push},
		{StateSignaled, p.signal},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			p.state = StateAborted
			log.Error("pipeline aborted", "at", step.next, "error", err)
			return err
		}
		p.state = step.next
		log.Info("step complete", "state", p.state)
	}

	p.state = StateIdling
	log.Info("pipeline complete", "tag", p.run.PushedTag, "took", time.Since(p.run.StartedAt))
	return nil
}

// authenticate resolves the branch head up front; a bad credential or a
// missing branch fails here, before anything touches the filesystem.
func (p *Pipeline) authenticate(ctx context.Context) error {
	head, err := p.fetcher.Validate(ctx)
	if err != nil {
		return err
	}
	slog.Info("branch validated", "head", source.Short(head))
	return nil
}

func (p *Pipeline) fetch(ctx context.Context) error {
	dest := p.cfg.CheckoutDir()
	if err := p.fetcher.Fetch(ctx, dest); err != nil {
		return errs.Wrap(ErrFetchFailed, err)
	}
	hash, err := p.fetcher.Head(dest)
	if err != nil {
		return errs.Wrap(ErrFetchFailed, err)
	}
	p.run.Hash = hash
	p.run.ShortHash = source.Short(hash)
	slog.Info("checkout ready", "commit", p.run.ShortHash)
	return nil
}

func (p *Pipeline) configure(context.Context) error {
	vars := envfile.Collect(p.environ())
	path := filepath.Join(p.cfg.CheckoutDir(), envfile.FileName)
	if err := envfile.Write(path, vars); err != nil {
		return errs.Wrap(ErrConfigureFailed, err)
	}
	slog.Info("env file materialized", "path", path, "variables", len(vars))
	return nil
}

func (p *Pipeline) buildApp(ctx context.Context) error {
	if err := p.app.Install(ctx); err != nil {
		return errs.Wrap(ErrAppBuildFailed, err)
	}
	if err := p.app.Build(ctx); err != nil {
		return errs.Wrap(ErrAppBuildFailed, err)
	}
	return nil
}

func (p *Pipeline) buildImage(ctx context.Context) error {
	// Build args are re-derived from the live environment on purpose,
	// not read back from the file written in the configure step.
	opts := image.Options{
		Ref:        p.run.Registry,
		ShortHash:  p.run.ShortHash,
		Target:     p.cfg.Registry.TargetStage,
		ContextDir: p.cfg.CheckoutDir(),
		BuildArgs:  envfile.Collect(p.environ()),
	}
	if err := p.img.Build(ctx, opts); err != nil {
		return errs.Wrap(ErrImageFailed, err)
	}
	if err := p.store.WriteCurrentHash(p.run.ShortHash); err != nil {
		return errs.Wrap(ErrImageFailed, err)
	}
	if err := p.store.WriteRegistryPath(p.run.Registry); err != nil {
		return errs.Wrap(ErrImageFailed, err)
	}
	return nil
}

// push publishes exactly two tags: the sha-prefixed alias of the short
// hash, and latest. The bare short-hash tag built earlier never leaves
// the local engine.
func (p *Pipeline) push(ctx context.Context) error {
	if err := p.img.Login(ctx, p.cfg.Registry.Host, p.cfg.GitHub.Org, p.token); err != nil {
		return errs.Wrap(ErrPushFailed, err)
	}
	bare := p.run.Registry + ":" + p.run.ShortHash
	pushed := p.run.Registry + ":" + image.PushedTagPrefix + p.run.ShortHash
	if err := p.img.Tag(ctx, bare, pushed); err != nil {
		return errs.Wrap(ErrPushFailed, err)
	}
	if err := p.img.Push(ctx, pushed); err != nil {
		return errs.Wrap(ErrPushFailed, err)
	}
	if err := p.img.Push(ctx, p.run.Registry+":latest"); err != nil {
		return errs.Wrap(ErrPushFailed, err)
	}
	p.run.PushedTag = pushed
	if err := p.store.WriteLastPushedTag(pushed); err != nil {
		return errs.Wrap(ErrPushFailed, err)
	}
	return nil
}

// signal re-reads the checkout head, records the built commit and writes
// the completion marker an external watcher polls for.
func (p *Pipeline) signal(context.Context) error {
	hash, err := p.fetcher.Head(p.cfg.CheckoutDir())
	if err != nil {
		return errs.Wrap(ErrSignalFailed, err)
	}
	if hash != p.run.Hash {
		slog.Warn("checkout moved during run", "was", p.run.Hash, "now", hash)
	}
	if err := p.store.WriteLastBuiltCommit(hash); err != nil {
		return errs.Wrap(ErrSignalFailed, err)
	}

	tag, err := p.store.ReadLastPushedTag()
	if err != nil {
		return errs.Wrap(ErrSignalFailed, err)
	}
	registry, err := p.store.ReadRegistryPath()
	if err != nil {
		return errs.Wrap(ErrSignalFailed, err)
	}

	p.run.CompletedAt = time.Now()
	if err := p.store.WriteDone(tag, p.run.CompletedAt); err != nil {
		return errs.Wrap(ErrSignalFailed, err)
	}
	slog.Info("completion recorded", "registry", registry, "tag", tag)
	return nil
}
