package objectstore

import "context"

// Store is the thin key/blob contract the pipeline depends on. Keys
// are paths inside a single pre-provisioned bucket.
type Store interface {
	// Exists reports whether an object is present at key.
	Exists(ctx context.Context, key string) (bool, error)
	// Download fetches the object at key into the local file at path.
	// A missing key is an error; callers that tolerate absence check
	// Exists first.
	Download(ctx context.Context, key, path string) error
	// Upload stores the local file at path under key, overwriting any
	// existing object.
	Upload(ctx context.Context, path, key string) error
}
