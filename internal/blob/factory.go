package blob

import (
	"context"
	"fmt"
	"os"

	"github.com/MetaCell/sckan-composer-sub001/internal/infra/blob/fs"
	"github.com/MetaCell/sckan-composer-sub001/internal/infra/blob/memory"
	"github.com/MetaCell/sckan-composer-sub001/internal/infra/blob/s3"
)

// NewFilesystem constructs a filesystem-backed Store rooted at the provided
// path.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory constructs an in-memory Store.
func NewMemory() Store {
	return memory.New()
}

// Open selects a Store implementation using environment variables.
//
//	COMPOSER_BLOB_DRIVER: fs|s3|memory (default fs)
//	COMPOSER_BLOB_FS_ROOT: directory root when driver=fs (default ./artifacts)
//	(S3 specific variables documented in the s3 package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("COMPOSER_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("COMPOSER_BLOB_FS_ROOT")
		return NewFilesystem(root)
	case DriverS3:
		return s3.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
