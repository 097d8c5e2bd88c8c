package image

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/envfile"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/errs"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/execx"
)

// PushedTagPrefix is prepended to the short hash for the tag that
// actually gets pushed; the bare-hash tag stays local.
const PushedTagPrefix = "sha-"

var (
	ErrDockerfileMissing = errors.New("image: Dockerfile not found at checkout root")
	ErrBuildFailed       = errors.New("image: build failed")
	ErrLoginFailed       = errors.New("image: registry login failed")
	ErrTagFailed         = errors.New("image: tag failed")
	ErrPushFailed        = errors.New("image: push failed")
)

// Options describes one image build. Ref is the registry path without a
// tag (<host>/<org>/<repo>); BuildArgs are re-derived from the live
// environment, not read back from the generated env file.
type Options struct {
	Ref        string
	ShortHash  string
	Target     string
	ContextDir string
	BuildArgs  []envfile.Variable
}

// Engine drives the docker CLI. Retry applies to pushes only; builds are
// local and never transient.
type Engine struct {
	Retry bool
}

// Build produces a single image tagged with both the short hash and
// "latest". The Dockerfile is pre-checked so a missing build description
// fails with a clear diagnostic instead of a generic tool error.
func (e *Engine) Build(ctx context.Context, opts Options) error {
	dockerfile := filepath.Join(opts.ContextDir, "Dockerfile")
	if st, err := os.Stat(dockerfile); err != nil || st.IsDir() {
		return errs.WrapMsg(ErrDockerfileMissing, dockerfile, nil)
	}

	args := buildCommand(opts)
	slog.Info("building image",
		"ref", opts.Ref,
		"tag", opts.ShortHash,
		"target", opts.Target,
		"cmd", "docker "+execx.Quote(redactBuildArgs(args)),
	)
	if err := execx.Run(ctx, opts.ContextDir, "docker", args...); err != nil {
		return errs.Wrap(ErrBuildFailed, err)
	}
	return nil
}

// buildCommand assembles the docker build argument vector: both tags on
// the single build, the target stage, and one --build-arg per forwarded
// variable under its emitted name.
func buildCommand(opts Options) []string {
	args := []string{"build", "--progress=plain"}
	args = append(args, "-t", opts.Ref+":"+opts.ShortHash)
	args = append(args, "-t", opts.Ref+":latest")
	if opts.Target != "" {
		args = append(args, "--target", opts.Target)
	}
	for _, v := range opts.BuildArgs {
		args = append(args, "--build-arg", v.Name+"="+v.Value)
	}
	return append(args, ".")
}

// Login authenticates to the registry with the organization name as
// username. The token goes in via stdin, never as an argument.
func (e *Engine) Login(ctx context.Context, registry, user, token string) error {
	slog.Info("logging in to registry", "registry", registry, "user", user)
	err := execx.RunWithStdin(ctx, "", strings.NewReader(token),
		"docker", "login", registry, "-u", user, "--password-stdin")
	if err != nil {
		return errs.Wrap(ErrLoginFailed, err)
	}
	return nil
}

// Tag aliases an existing local image; no rebuild happens, both refs
// point at the same content.
func (e *Engine) Tag(ctx context.Context, from, to string) error {
	if err := execx.Run(ctx, "", "docker", "tag", from, to); err != nil {
		return errs.Wrap(ErrTagFailed, err)
	}
	return nil
}

// Push publishes one fully-qualified ref.
func (e *Engine) Push(ctx context.Context, ref string) error {
	op := func() error {
		slog.Info("pushing image", "ref", ref)
		return execx.Run(ctx, "", "docker", "push", ref)
	}
	if e.Retry {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = time.Second
		bo.MaxInterval = 10 * time.Second
		if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx)); err != nil {
			return errs.Wrap(ErrPushFailed, err)
		}
		return nil
	}
	if err := op(); err != nil {
		return errs.Wrap(ErrPushFailed, err)
	}
	return nil
}

// redactBuildArgs masks values of secret-looking build args in logged
// command lines. The real invocation keeps them intact.
func redactBuildArgs(args []string) []string {
	sus := func(k string) bool {
		k = strings.ToUpper(k)
		return strings.Contains(k, "TOKEN") ||
			strings.Contains(k, "SECRET") ||
			strings.Contains(k, "PASSWORD") ||
			strings.Contains(k, "KEY")
	}
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] != "--build-arg" {
			continue
		}
		if name, value, ok := strings.Cut(out[i+1], "="); ok && sus(name) && value != "" {
			out[i+1] = name + "=REDACTED"
		}
	}
	return out
}
