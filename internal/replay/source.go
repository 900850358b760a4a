// Package replay feeds archived CloudTrail log files through the pipeline.
package replay

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source lists and opens CloudTrail log files.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// List returns the keys of every log file, in a stable order.
	List(ctx context.Context) ([]string, error)
	// Open opens one log file returned by List.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// digestMarker appears in the key of CloudTrail digest files, which hold no events.
const digestMarker = "CloudTrail-Digest"

func isLogFile(name string) bool {
	if strings.Contains(name, digestMarker) || strings.HasSuffix(name, "/") {
		return false
	}
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz") || strings.HasSuffix(name, ".gz")
}

// FileSource reads log files from a local file or directory tree.
type FileSource struct {
	root string
}

// NewFileSource creates a source rooted at path. A file is replayed as-is whatever
// its name; a directory is walked for .json and .gz files.
func NewFileSource(path string) *FileSource {
	return &FileSource{root: path}
}

// Name returns the root path.
func (f *FileSource) Name() string {
	return f.root
}

// List returns the files under the root.
func (f *FileSource) List(ctx context.Context) ([]string, error) {
	info, err := os.Stat(f.root)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if !info.IsDir() {
		return []string{f.root}, nil
	}

	var files []string
	err = filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() && isLogFile(filepath.ToSlash(path)) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay: failed to walk %s: %w", f.root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Open opens a file.
func (f *FileSource) Open(_ context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(key)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return file, nil
}

// S3API is the part of the S3 client used by S3Source.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads log files from an S3 bucket, typically a trail's delivery bucket.
type S3Source struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Source creates a source for every object under prefix in bucket.
func NewS3Source(client S3API, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

// Name returns the s3:// location.
func (s *S3Source) Name() string {
	return "s3://" + s.bucket + "/" + s.prefix
}

// List pages through the objects under the prefix.
func (s *S3Source) List(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("replay: failed to list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); isLogFile(key) {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Open downloads one object.
func (s *S3Source) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("replay: failed to download s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Body, nil
}

// ParseS3URL splits s3://bucket/prefix. ok is false for anything that is not an
// s3:// location.
func ParseS3URL(location string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(location, "s3://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, prefix, true
}
