package nativedeps

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectPutter is the subset of the S3 client the publisher uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads packages to an S3-compatible bucket.
type Publisher struct {
	Client objectPutter
	Bucket string
	Prefix string
}

// NewPublisher builds an S3 client from the publish section. Static
// credentials are used when both keys are set; otherwise the default AWS
// credential chain applies.
func NewPublisher(ctx context.Context, pc PublishConfig, verbose bool) (*Publisher, error) {
	if pc.Bucket == "" {
		return nil, fmt.Errorf("publish.bucket is not set in the configuration")
	}

	var options []func(*config.LoadOptions) error
	if pc.Region != "" {
		options = append(options, config.WithRegion(pc.Region))
	}
	if pc.AccessKeyID != "" && pc.SecretAccessKey != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(pc.AccessKeyID, pc.SecretAccessKey, "")))
	}
	if verbose {
		options = append(options, config.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if pc.Endpoint != "" {
			o.BaseEndpoint = aws.String(pc.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Publisher{Client: client, Bucket: pc.Bucket, Prefix: pc.Prefix}, nil
}

// Key is the object key a local file is stored under.
func (p *Publisher) Key(name string) string {
	if p.Prefix == "" {
		return name
	}
	return path.Join(strings.Trim(p.Prefix, "/"), name)
}

// UploadFile stores one local file.
func (p *Publisher) UploadFile(ctx context.Context, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	_, err = p.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.Bucket),
		Key:           aws.String(p.Key(filepath.Base(localPath))),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentTypeFor(localPath)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	return nil
}

// PublishPackages uploads every archive in dir together with its sidecar.
// An archive without a sidecar is refused.
func (p *Publisher) PublishPackages(ctx context.Context, dir string, console *Console) (int, error) {
	archives, err := packageFiles(dir)
	if err != nil {
		return 0, err
	}
	if len(archives) == 0 {
		return 0, fmt.Errorf("no packages found in %s, run the package command first", dir)
	}
	uploaded := 0
	for _, a := range archives {
		sidecar := a + ".b3"
		if !fileExists(sidecar) {
			return uploaded, fmt.Errorf("%s has no %s sidecar", a, filepath.Base(sidecar))
		}
		for _, f := range []string{a, sidecar} {
			console.Arrowf(colSuccess, "Uploading %s to s3://%s/%s", filepath.Base(f), p.Bucket, p.Key(filepath.Base(f)))
			if err := p.UploadFile(ctx, f); err != nil {
				return uploaded, err
			}
			uploaded++
		}
	}
	return uploaded, nil
}

func packageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "nativedeps-") || strings.HasSuffix(e.Name(), ".b3") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(name, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(name, ".xz"):
		return "application/x-xz"
	case strings.HasSuffix(name, ".zip"):
		return "application/zip"
	case strings.HasSuffix(name, ".b3"):
		return "text/plain"
	}
	return "application/octet-stream"
}
