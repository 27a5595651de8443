// Package publish implements the UPLOADING-state provider.
//
// Uploader reads the rendered clip and its metadata artifact and hands both
// to a Backend. Two backends exist: a stub that copies the clip into
// storage/published and an S3 backend built on minio-go. Both return the
// platform id and URL recorded on the job.
package publish
