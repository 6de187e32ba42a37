package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3Scheme = "s3"

var pemMarker = []byte("-----BEGIN ")

type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// KeySource resolves the configured signing key reference into PEM bytes.
// Objects is only needed for s3:// references.
type KeySource struct {
	Objects ObjectGetter
}

func IsS3URI(ref string) bool {
	return strings.HasPrefix(ref, s3Scheme+"://")
}

// Resolve returns the PEM bytes named by ref. Inline PEM is returned as
// given; surrounding whitespace only matters for s3 and base64 references.
func (s KeySource) Resolve(ctx context.Context, ref string) ([]byte, error) {
	trimmed := strings.TrimSpace(ref)

	if trimmed == "" {
		return nil, fmt.Errorf("signing key reference is empty")
	}

	if IsS3URI(trimmed) {
		return s.fetchObject(ctx, trimmed)
	}

	if strings.Contains(trimmed, string(pemMarker)) {
		return []byte(ref), nil
	}

	decoded, err := base64.StdEncoding.DecodeString(trimmed)

	if err != nil {
		return nil, fmt.Errorf("signing key is neither PEM, base64 PEM nor an s3 uri: %w", err)
	}

	if !bytes.Contains(decoded, pemMarker) {
		return nil, fmt.Errorf("decoded signing key does not contain a PEM block")
	}

	return decoded, nil
}

func (s KeySource) fetchObject(ctx context.Context, ref string) ([]byte, error) {
	if s.Objects == nil {
		return nil, fmt.Errorf("no object store configured for %s", ref)
	}

	u, err := url.Parse(ref)

	if err != nil {
		return nil, fmt.Errorf("invalid s3 uri %s: %w", ref, err)
	}

	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")

	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 uri %s must name a bucket and an object key", ref)
	}

	out, err := s.Objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		return nil, fmt.Errorf("failed to fetch signing key from %s: %w", ref, err)
	}

	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)

	if err != nil {
		return nil, fmt.Errorf("failed to read signing key from %s: %w", ref, err)
	}

	return body, nil
}
