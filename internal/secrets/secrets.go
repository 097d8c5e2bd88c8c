// Package secrets resolves the pipeline credential. The token normally
// arrives through the environment; when a secret id is configured instead,
// it is fetched from AWS Secrets Manager at startup.
package secrets

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/errs"
)

var (
	ErrConfigFailed = errors.New("secrets: aws config load failed")
	ErrGetSecret    = errors.New("secrets: failed to get secret")
	ErrEmptySecret  = errors.New("secrets: secret has no value")
)

// TokenProvider yields the bearer credential used for both the source
// host and the container registry.
type TokenProvider func(ctx context.Context) (string, error)

// Static wraps an environment-supplied token.
func Static(token string) TokenProvider {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// FromSecretsManager fetches the named secret on every call.
func FromSecretsManager(secretID string) TokenProvider {
	return func(ctx context.Context) (string, error) {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return "", errs.Wrap(ErrConfigFailed, err)
		}
		client := secretsmanager.NewFromConfig(cfg)
		out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretID),
		})
		if err != nil {
			return "", errs.WrapMsg(ErrGetSecret, secretID, err)
		}
		if out.SecretString != nil {
			return *out.SecretString, nil
		}
		if out.SecretBinary != nil {
			return base64.StdEncoding.EncodeToString(out.SecretBinary), nil
		}
		return "", errs.WrapMsg(ErrEmptySecret, secretID, nil)
	}
}
