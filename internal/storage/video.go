package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/supabase-go"
)

var ErrEmptyPath = errors.New("video path is empty")

// signFunc asks the storage API for a signed URL valid for expiresIn seconds
type signFunc func(bucket, path string, expiresIn int) (string, error)

// VideoSigner issues signed URLs for objects in the private lesson video bucket
type VideoSigner struct {
	bucket  string
	baseURL string
	sign    signFunc
}

func NewVideoSigner(client *supabase.Client, supabaseURL, bucket string) *VideoSigner {
	return newVideoSigner(supabaseURL, bucket, func(bucket, path string, expiresIn int) (string, error) {
		resp, err := client.Storage.CreateSignedUrl(bucket, path, expiresIn)
		if err != nil {
			return "", err
		}
		return resp.SignedURL, nil
	})
}

func newVideoSigner(supabaseURL, bucket string, sign signFunc) *VideoSigner {
	return &VideoSigner{
		bucket:  bucket,
		baseURL: strings.TrimRight(supabaseURL, "/") + "/storage/v1",
		sign:    sign,
	}
}

// SignedURL returns an absolute URL for path that expires after expiresIn
func (s *VideoSigner) SignedURL(ctx context.Context, path string, expiresIn time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	// Paths are stored with or without the bucket name
	path = strings.TrimPrefix(path, s.bucket+"/")
	if path == "" {
		return "", ErrEmptyPath
	}

	seconds := int(expiresIn / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	signed, err := s.sign(s.bucket, path, seconds)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s/%s: %w", s.bucket, path, err)
	}
	if signed == "" {
		return "", fmt.Errorf("storage returned an empty signed url for %s/%s", s.bucket, path)
	}

	// Some storage API versions answer with a path relative to /storage/v1
	if strings.HasPrefix(signed, "/") {
		signed = s.baseURL + signed
	}
	return signed, nil
}
