package storage

import (
	"context"
	"fmt"

	"github.com/fruitsalade/dirsync/internal/config"
	"github.com/fruitsalade/dirsync/internal/storage/local"
	s3backend "github.com/fruitsalade/dirsync/internal/storage/s3"
)

// New creates the Backend selected by the server configuration.
func New(ctx context.Context, cfg *config.ServerConfig) (Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendLocal, "":
		return local.New(local.Config{RootPath: cfg.UploadDir, CreateDirs: true})
	case config.BackendS3:
		s3cfg := cfg.Storage.S3
		return s3backend.New(ctx, s3backend.Config{
			Endpoint:  s3cfg.Endpoint,
			Bucket:    s3cfg.Bucket,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			Region:    s3cfg.Region,
			Prefix:    s3cfg.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Storage.Backend)
	}
}
