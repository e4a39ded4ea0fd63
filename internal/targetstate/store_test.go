package targetstate

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	puts    int
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data := f.objects[*params.Bucket+"/"+*params.Key]
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Bucket+"/"+*params.Key] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

type staticLocator struct {
	bucket, key string
}

func (l staticLocator) SourceLocation(context.Context) (string, string, error) {
	return l.bucket, l.key, nil
}

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestStore_LoadMergeSaveRoundTrip(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		AccountsConfigFile:     accountsYAML,
		OrganizationConfigFile: organizationYAML,
		"replacements.yaml":    "globalReplacements: {}\n",
	})
	client := &fakeS3{objects: map[string][]byte{"config-bucket/source/aws-accelerator-config.zip": archive}}
	store := NewStore(client, staticLocator{bucket: "config-bucket", key: "source/aws-accelerator-config.zip"})

	bundle, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, bundle.Accounts)
	require.NotNil(t, bundle.Organization)

	require.NoError(t, bundle.Organization.ValidatePlacement("Workloads"))
	require.NoError(t, bundle.Accounts.Merge(AccountEntry{
		Name:               "Research",
		Email:              "aws+Research@example.com",
		OrganizationalUnit: "Workloads",
	}, false))
	require.NoError(t, store.Save(context.Background(), bundle))
	assert.Equal(t, 1, client.puts)

	// Reload and confirm the new entry and the untouched file survived.
	bundle2, err := store.Load(context.Background())
	require.NoError(t, err)

	entry, ok := bundle2.Accounts.Lookup("Research")
	require.True(t, ok)
	assert.Equal(t, "Workloads", entry.OrganizationalUnit)

	names := make([]string, 0, len(bundle2.files))
	for _, f := range bundle2.files {
		names = append(names, f.name)
	}
	assert.Contains(t, names, "replacements.yaml")
}

func TestStore_LoadMissingAccountsConfig(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		OrganizationConfigFile: organizationYAML,
	})
	client := &fakeS3{objects: map[string][]byte{"b/k": archive}}
	store := NewStore(client, staticLocator{bucket: "b", key: "k"})

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), AccountsConfigFile)
}
