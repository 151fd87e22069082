package s3client

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
)

// Publisher copies run reports such as the manifest to an S3 location
type Publisher struct {
	client *Client
	bucket string
	prefix string
}

// NewPublisher creates a publisher for an s3://bucket/prefix URI
func NewPublisher(client *Client, uri string) (*Publisher, error) {
	bucket, prefix, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, bucket: bucket, prefix: prefix}, nil
}

// PublishFile uploads a local file under <prefix><runID>/ and returns its URI
func (p *Publisher) PublishFile(ctx context.Context, fs afero.Fs, localPath, runID string) (string, error) {
	body, err := afero.ReadFile(fs, localPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}
	return p.Publish(ctx, localPath, runID, body)
}

// Publish uploads body under <prefix><runID>/<base name of name> and returns its URI
func (p *Publisher) Publish(ctx context.Context, name, runID string, body []byte) (string, error) {
	key := ObjectKey(p.prefix, runID, name)
	if err := p.client.PutObject(ctx, p.bucket, key, body, guessContentType(name)); err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", p.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}
