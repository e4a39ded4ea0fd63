package targetstate

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SourceLocator resolves the S3 location of the deployment pipeline's
// configuration source artifact.
type SourceLocator interface {
	SourceLocation(ctx context.Context) (bucket, key string, err error)
}

// Store reads and writes the configuration bundle: a zip archive in S3 that
// the deployment pipeline uses as its source.
type Store struct {
	s3      S3API
	locator SourceLocator
}

// NewStore creates a Store.
func NewStore(client S3API, locator SourceLocator) *Store {
	return &Store{s3: client, locator: locator}
}

type zipFile struct {
	name string
	data []byte
}

// Bundle is one loaded configuration archive. All archive entries are
// retained so a Save round-trips everything except the accounts document,
// which is re-serialized from the in-memory state.
type Bundle struct {
	Accounts     *AccountsDocument
	Organization *OrganizationConfig

	bucket string
	key    string
	files  []zipFile
}

// Load fetches and parses the configuration bundle.
func (s *Store) Load(ctx context.Context) (*Bundle, error) {
	bucket, key, err := s.locator.SourceLocation(ctx)
	if err != nil {
		return nil, fmt.Errorf("locate config source: %w", err)
	}

	obj, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch config archive s3://%s/%s: %w", bucket, key, err)
	}
	defer obj.Body.Close()

	raw, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read config archive: %w", err)
	}

	return parseBundle(raw, bucket, key)
}

func parseBundle(raw []byte, bucket, key string) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open config archive: %w", err)
	}

	b := &Bundle{bucket: bucket, key: key}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in archive: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s in archive: %w", f.Name, err)
		}
		b.files = append(b.files, zipFile{name: f.Name, data: data})

		switch f.Name {
		case AccountsConfigFile:
			if b.Accounts, err = ParseAccountsDocument(data); err != nil {
				return nil, err
			}
		case OrganizationConfigFile:
			if b.Organization, err = ParseOrganizationConfig(data); err != nil {
				return nil, err
			}
		}
	}

	if b.Accounts == nil {
		return nil, fmt.Errorf("config archive is missing %s", AccountsConfigFile)
	}
	if b.Organization == nil {
		return nil, fmt.Errorf("config archive is missing %s", OrganizationConfigFile)
	}
	return b, nil
}

// Save re-archives the bundle with the current accounts document and uploads
// it back to the pipeline source location.
func (s *Store) Save(ctx context.Context, b *Bundle) error {
	accountsData, err := b.Accounts.Marshal()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range b.files {
		data := f.data
		if f.name == AccountsConfigFile {
			data = accountsData
		}
		w, err := zw.Create(f.name)
		if err != nil {
			return fmt.Errorf("write %s to archive: %w", f.name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write %s to archive: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize config archive: %w", err)
	}

	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("upload config archive s3://%s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}
