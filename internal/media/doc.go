// Package media owns the on-disk video store: the deterministic course or
// chapter directory layout, ffprobe duration probing, ffmpeg HLS
// segmentation, and the ingestion pipeline that ties them together.
package media
