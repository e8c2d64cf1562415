// Package staging moves data between the local filesystem and cluster
// storage.
//
// Uploads go through an intermediate copy inside the coordinator container
// because the storage CLI only reads container-local paths. Every upload and
// download is confirmed by an independent existence check rather than by the
// exit code of the transfer itself. Downloads are written atomically and may
// prepend a fixed CSV header to the retrieved rows.
package staging
