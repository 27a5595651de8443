// Package media implements the pipeline providers that stage sources and
// shell out to ffmpeg and ffprobe.
//
// Every provider writes its artifact under storage_dir, one directory per
// artifact kind, named after the job id so retries overwrite their own
// partial output. Commands run through a Runner so tests can substitute a
// fake that never touches real binaries.
package media
