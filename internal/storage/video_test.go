package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signCall struct {
	bucket, path string
	expiresIn    int
}

func TestVideoSigner(t *testing.T) {
	var calls []signCall
	signer := newVideoSigner("https://abc.supabase.co/", "course-videos", func(bucket, path string, expiresIn int) (string, error) {
		calls = append(calls, signCall{bucket, path, expiresIn})
		return "/object/sign/" + bucket + "/" + path + "?token=t", nil
	})

	url, err := signer.SignedURL(context.Background(), "/course-videos/go/ders-1.mp4", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://abc.supabase.co/storage/v1/object/sign/course-videos/go/ders-1.mp4?token=t", url)
	require.Len(t, calls, 1)
	assert.Equal(t, signCall{"course-videos", "go/ders-1.mp4", 3600}, calls[0])
}

func TestVideoSignerKeepsAbsoluteURLs(t *testing.T) {
	signer := newVideoSigner("https://abc.supabase.co", "course-videos", func(bucket, path string, expiresIn int) (string, error) {
		return "https://cdn.example/signed", nil
	})

	url, err := signer.SignedURL(context.Background(), "intro.mp4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/signed", url)
}

func TestVideoSignerErrors(t *testing.T) {
	signer := newVideoSigner("https://abc.supabase.co", "course-videos", func(bucket, path string, expiresIn int) (string, error) {
		return "", errors.New("object not found")
	})

	_, err := signer.SignedURL(context.Background(), "  ", time.Hour)
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = signer.SignedURL(context.Background(), "missing.mp4", time.Hour)
	assert.ErrorContains(t, err, "object not found")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = signer.SignedURL(ctx, "intro.mp4", time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
