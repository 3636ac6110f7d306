package secrets

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscribe/opscribe/pkg/retry"
)

type fakeAPI struct {
	secrets  map[string]string
	failures int
	calls    int
}

func (f *fakeAPI) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("throttled")
	}
	raw, ok := f.secrets[aws.ToString(params.SecretId)]
	if !ok {
		return nil, errors.New("secret not found")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(raw)}, nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestLoadFlattensJSONSecret(t *testing.T) {
	client := &fakeAPI{secrets: map[string]string{
		"app/prod": `{"DB_USER":"admin","DB_PASS":"s3cret","PORT":8080}`,
	}}
	l := NewLoaderWithClient(client, fastPolicy())

	values, err := l.Load(context.Background(), "app/prod")
	require.NoError(t, err)
	assert.Equal(t, "admin", values["DB_USER"])
	assert.Equal(t, "s3cret", values["DB_PASS"])
	assert.Equal(t, "8080", values["PORT"])
}

func TestLoadPlainStringSecretKeyedByName(t *testing.T) {
	client := &fakeAPI{secrets: map[string]string{"api-token": "tok-123"}}
	l := NewLoaderWithClient(client, fastPolicy())

	values, err := l.Load(context.Background(), "api-token")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", values["api-token"])
}

func TestLoadRetriesTransientFailures(t *testing.T) {
	client := &fakeAPI{
		secrets:  map[string]string{"s": `{"K":"v"}`},
		failures: 2,
	}
	l := NewLoaderWithClient(client, fastPolicy())

	values, err := l.Load(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, "v", values["K"])
	assert.Equal(t, 3, client.calls)
}

func TestLoadExhaustionSurfacesTypedError(t *testing.T) {
	client := &fakeAPI{failures: 10}
	l := NewLoaderWithClient(client, fastPolicy())

	_, err := l.Load(context.Background(), "missing")
	require.Error(t, err)
	var exhausted *retry.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestLoadMergesMultipleSecrets(t *testing.T) {
	client := &fakeAPI{secrets: map[string]string{
		"a": `{"SHARED":"first","A_ONLY":"1"}`,
		"b": `{"SHARED":"second","B_ONLY":"2"}`,
	}}
	l := NewLoaderWithClient(client, fastPolicy())

	values, err := l.Load(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "1", values["A_ONLY"])
	assert.Equal(t, "2", values["B_ONLY"])
	assert.Equal(t, "second", values["SHARED"])
}

func TestExportSetsEnvironment(t *testing.T) {
	client := &fakeAPI{secrets: map[string]string{
		"env": `{"OPSCRIBE_TEST_SECRET":"from-sm"}`,
	}}
	l := NewLoaderWithClient(client, fastPolicy())

	t.Setenv("OPSCRIBE_TEST_SECRET", "placeholder")
	require.NoError(t, l.Export(context.Background(), "env"))

	assert.Equal(t, "from-sm", os.Getenv("OPSCRIBE_TEST_SECRET"))
}
