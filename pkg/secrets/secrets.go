// Package secrets loads AWS Secrets Manager secrets into a flat key/value
// map, optionally exporting them as process environment variables.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/opscribe/opscribe/pkg/retry"
)

// api is the slice of the Secrets Manager client the loader depends on.
type api interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Options configures the loader. Region is required. Static credentials are
// optional; the default chain (env, shared config, instance role) applies
// otherwise.
type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Retry           retry.Policy
}

type Loader struct {
	client api
	policy retry.Policy
}

// NewLoader builds a loader against the real AWS API. Fails fast on missing
// region or unloadable ambient configuration.
func NewLoader(ctx context.Context, opts Options) (*Loader, error) {
	if opts.Region == "" {
		return nil, fmt.Errorf("secrets: region is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("secrets: load aws config: %w", err)
	}

	return &Loader{
		client: secretsmanager.NewFromConfig(cfg),
		policy: opts.Retry,
	}, nil
}

// NewLoaderWithClient injects a client. For tests.
func NewLoaderWithClient(client api, policy retry.Policy) *Loader {
	return &Loader{client: client, policy: policy}
}

// Load fetches each named secret through the retry helper and merges the
// results. JSON key/value secrets are flattened into the result; plain
// string secrets are stored under the secret's own name. Later names win on
// key collisions.
func (l *Loader) Load(ctx context.Context, names ...string) (map[string]string, error) {
	out := make(map[string]string)
	for _, name := range names {
		values, err := l.fetch(ctx, name)
		if err != nil {
			return nil, err
		}
		for k, v := range values {
			out[k] = v
		}
	}
	return out, nil
}

// Export loads the named secrets and sets each key as a process environment
// variable.
func (l *Loader) Export(ctx context.Context, names ...string) error {
	values, err := l.Load(ctx, names...)
	if err != nil {
		return err
	}
	for k, v := range values {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("secrets: set env %s: %w", k, err)
		}
	}
	return nil
}

func (l *Loader) fetch(ctx context.Context, name string) (map[string]string, error) {
	result, err := retry.DoValue(ctx, l.policy, func(ctx context.Context) (*secretsmanager.GetSecretValueOutput, error) {
		return l.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(name),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("secrets: get %s: %w", name, err)
	}

	var raw string
	switch {
	case result.SecretString != nil:
		raw = *result.SecretString
	case len(result.SecretBinary) > 0:
		raw = string(result.SecretBinary)
	default:
		return nil, fmt.Errorf("secrets: %s has no value", name)
	}

	var keyVal map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &keyVal); err != nil {
		// Plain string secret.
		return map[string]string{name: raw}, nil
	}
	out := make(map[string]string, len(keyVal))
	for k, v := range keyVal {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out, nil
}
