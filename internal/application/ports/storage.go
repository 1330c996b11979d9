package ports

import (
	"context"
	"io"
)

// Uploader streams a granule's bytes to the configured object-store
// bucket, verifying the upstream checksum server-side (spec.md §4.3 step
// 5, §6 Object store).
type Uploader interface {
	// Upload stores the object under key in bucket, setting a
	// client-declared Content-MD5 derived from checksumHex so the store
	// rejects a mismatched body. Returns the bucket/key location string
	// to persist as uploaded_granule_file_location.
	Upload(ctx context.Context, bucket, key string, body io.Reader, checksumHex string) (string, error)
}
