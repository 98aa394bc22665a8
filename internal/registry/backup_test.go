package registry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/clientops/internal/model"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestBackup_Run(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	_, err := r.Upsert(ctx, "acme", func(c *model.Client) error { return nil })
	require.NoError(t, err)

	putter := &fakePutter{}
	b := NewBackup(putter, "ops-backups", zerolog.Nop())
	b.now = func() time.Time { return time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC) }

	key, err := b.Run(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "registry/20261014T083000Z.yml", key)
	assert.Equal(t, "ops-backups", aws.ToString(putter.input.Bucket))
	assert.Contains(t, string(putter.body), "acme:")
}

func TestBackup_UploadError(t *testing.T) {
	b := NewBackup(&fakePutter{err: errors.New("403")}, "ops-backups", zerolog.Nop())
	_, err := b.Upload(context.Background(), []byte("x"))
	assert.ErrorContains(t, err, "upload registry backup")
}
