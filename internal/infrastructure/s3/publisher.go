package s3

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

const keyPrefix = "vimagine"

// Publisher uploads composed videos to an S3 bucket and returns their
// public download URL.
type Publisher struct {
	bucket   string
	uploader *manager.Uploader
	client   *http.Client
	logger   *log.Logger
}

// NewPublisher creates an S3 adapter using the default AWS credential chain.
func NewPublisher(ctx context.Context, bucket, region string, logger *log.Logger) (*Publisher, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(cfg)
	return &Publisher{
		bucket:   bucket,
		uploader: manager.NewUploader(client),
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
	}, nil
}

// PublishFile uploads a local file under a unique generated key and returns
// the public URL. The local file is removed after a successful upload.
func (p *Publisher) PublishFile(ctx context.Context, localPath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(localPath))
	if ext == "" {
		ext = ".mp4"
	}
	key := objectKey(ext)

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = p.uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentTypeFor(ext)),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	url := fmt.Sprintf("https://%s.s3.amazonaws.com/%s", p.bucket, key)
	p.logger.Printf("uploaded %s (%s)", key, url)

	if err := os.Remove(localPath); err != nil {
		p.logger.Printf("could not remove local file %s: %v", localPath, err)
	}

	return url, nil
}

// PublishURL downloads a remote file and republishes it under the bucket.
// The key keeps the source URL's extension, defaulting to .mp4.
func (p *Publisher) PublishURL(ctx context.Context, remoteURL string) (string, error) {
	ext := extensionFromURL(remoteURL)

	p.logger.Printf("downloading %s file from %s", ext, remoteURL)
	localPath, err := downloadTemp(ctx, p.client, remoteURL, ext)
	if err != nil {
		return "", err
	}

	publicURL, err := p.PublishFile(ctx, localPath)
	if err != nil {
		_ = os.Remove(localPath)
		return "", err
	}
	return publicURL, nil
}

func extensionFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ".mp4"
	}
	ext := path.Ext(parsed.Path)
	if ext == "" || ext == "." {
		return ".mp4"
	}
	return ext
}

// downloadTemp fetches rawURL into a temp file whose name keeps ext, so the
// upload derives the right content type from it.
func downloadTemp(ctx context.Context, client *http.Client, rawURL, ext string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	file, err := os.CreateTemp("", "publish-*"+ext)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}

	return file.Name(), nil
}

const keySuffixChars = "abcdefghijklmnopqrstuvwxyz0123456789"

func objectKey(ext string) string {
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = keySuffixChars[rand.Intn(len(keySuffixChars))]
	}
	return fmt.Sprintf("%s-%s-%s%s", keyPrefix, time.Now().Format("20060102150405"), suffix, ext)
}

func contentTypeFor(ext string) string {
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
