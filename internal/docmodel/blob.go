package docmodel

import "context"

// BlobStore is the slice of the object store the data model needs to mirror
// itself to the cloud. *blobstore.Store satisfies it.
type BlobStore interface {
	UploadBlob(ctx context.Context, container, blob, localPath string) (string, error)
	DownloadBlob(ctx context.Context, container, blob, localPath string) error
	ListBlobs(ctx context.Context, container, prefix string) ([]string, error)
}

func joinBlob(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
