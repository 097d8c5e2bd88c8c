// Package envfile materializes build-time configuration for the Next.js
// application from the process environment.
//
// Selection rules:
//   - variables starting with ForwardPrefix are forwarded;
//   - variables starting with config.ControlPrefix are never forwarded,
//     even though they also match ForwardPrefix;
//   - variables starting with PrivatePrefix have that prefix stripped
//     from the emitted name, everything else is forwarded unchanged.
package envfile

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/config"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/errs"
)

const (
	ForwardPrefix = "NEXT_"
	PrivatePrefix = "NEXT_PRIVATE_"

	// FileName is the build-time env file Next.js reads during
	// `next build` for a production build.
	FileName = ".env.production"
)

var (
	ErrWriteFailed   = errors.New("envfile: write failed")
	ErrUnsafeValue   = errors.New("envfile: value contains a newline")
	ErrNameCollision = errors.New("envfile: rewritten name collides")
)

// Variable is a single name=value pair destined for the env file and the
// image build arguments.
type Variable struct {
	Name  string
	Value string
}

// Collect filters environ (entries in "name=value" form) down to the
// forwarded set, applying the private-prefix rewrite. Only the first '='
// separates name from value, so values may contain '=' freely. The result
// is sorted by emitted name so repeated materialization is byte-identical.
func Collect(environ []string) []Variable {
	var vars []Variable
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if !strings.HasPrefix(name, ForwardPrefix) {
			continue
		}
		if strings.HasPrefix(name, config.ControlPrefix) {
			continue
		}
		if strings.HasPrefix(name, PrivatePrefix) {
			name = strings.TrimPrefix(name, PrivatePrefix)
			if name == "" {
				continue
			}
		}
		vars = append(vars, Variable{Name: name, Value: value})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars
}

// Write truncates path and emits one name=value line per variable. Values
// are written verbatim except that embedded newlines are rejected outright:
// they would silently split into bogus entries otherwise.
func Write(path string, vars []Variable) error {
	var b strings.Builder
	seen := make(map[string]struct{}, len(vars))
	for _, v := range vars {
		if strings.ContainsAny(v.Value, "\n\r") {
			return errs.WrapMsg(ErrUnsafeValue, v.Name, nil)
		}
		if _, dup := seen[v.Name]; dup {
			return errs.WrapMsg(ErrNameCollision, v.Name, nil)
		}
		seen[v.Name] = struct{}{}
		fmt.Fprintf(&b, "%s=%s\n", v.Name, v.Value)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errs.Wrap(ErrWriteFailed, err)
	}
	return nil
}
