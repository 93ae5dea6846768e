package blob

import (
	"context"
	"fmt"
	"os"
)

// Open selects an artifact store from process environment:
//
//	METAFLUX_BLOB_DRIVER=fs|s3|memory (default fs)
//	METAFLUX_BLOB_FS_ROOT             (fs root directory, default ./artifacts)
//
// The s3 driver reads the METAFLUX_BLOB_S3_* variables documented on
// OpenS3FromEnv.
func Open(ctx context.Context) (Store, error) {
	driver := Driver(os.Getenv("METAFLUX_BLOB_DRIVER"))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("METAFLUX_BLOB_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}
