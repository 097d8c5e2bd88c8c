package appbuild

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/errs"
)

var (
	ErrInstallFailed = errors.New("appbuild: install failed")
	ErrBuildFailed   = errors.New("appbuild: build failed")
	ErrPipeFailed    = errors.New("appbuild: pipe setup failed")
)

// Runner installs dependencies and runs the framework's production build
// inside the checkout. The generated env file must already be in place;
// `next build` picks it up from the working directory.
type Runner struct {
	dir    string
	logger *slog.Logger
}

func NewRunner(dir string) *Runner {
	return &Runner{
		dir:    dir,
		logger: slog.Default().With("step", "appbuild"),
	}
}

// Install runs the lockfile-respecting install of the detected package
// manager. Anything looser would defeat reproducible builds.
func (r *Runner) Install(ctx context.Context) error {
	manager := r.detectManager()
	args := installArgs(manager)
	r.logger.Info("installing dependencies", "manager", manager)

	if err := r.exec(ctx, manager, args...); err != nil {
		return errs.WrapMsg(ErrInstallFailed, manager, err)
	}
	return nil
}

// Build runs the production build script.
func (r *Runner) Build(ctx context.Context) error {
	manager := r.detectManager()
	r.logger.Info("running production build", "manager", manager)

	if err := r.exec(ctx, manager, "run", "build"); err != nil {
		return errs.WrapMsg(ErrBuildFailed, manager, err)
	}
	return nil
}

func (r *Runner) exec(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errs.Wrap(ErrPipeFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errs.Wrap(ErrPipeFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	// Drain both pipes fully before Wait closes them, so trailing
	// build output is never dropped.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.logPipe(ctx, stdout, slog.LevelInfo)
	}()
	go func() {
		defer wg.Done()
		r.logPipe(ctx, stderr, slog.LevelWarn)
	}()
	wg.Wait()

	return cmd.Wait()
}

func (r *Runner) detectManager() string {
	checks := []struct{ file, name string }{
		{"pnpm-lock.yaml", "pnpm"},
		{"yarn.lock", "yarn"},
		{"package-lock.json", "npm"},
	}
	for _, m := range checks {
		if _, err := os.Stat(filepath.Join(r.dir, m.file)); err == nil {
			return m.name
		}
	}
	return "npm"
}

// installArgs returns the exact-install invocation per manager.
func installArgs(manager string) []string {
	switch manager {
	case "pnpm":
		return []string{"install", "--frozen-lockfile"}
	case "yarn":
		return []string{"install", "--frozen-lockfile"}
	default:
		return []string{"ci"}
	}
}

func (r *Runner) logPipe(ctx context.Context, rc io.ReadCloser, level slog.Level) {
	defer rc.Close()
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		r.logger.Log(ctx, level, scanner.Text())
	}
}
