package storage

import "context"

// Uploader copies a local file into an object store bucket. It is the only
// external side effect of the training job besides the job directory, so it
// stays narrow enough to substitute in tests.
type Uploader interface {
	Upload(ctx context.Context, bucket, object, localPath string) error
}
