// Package workers executes registry tasks across a bounded worker pool.
//
// The dispatcher claims pending tasks in priority order, keeps queue
// partitions serial, retries failed attempts with backoff, and hands
// permanently failed tasks to the lifecycle failure handler. The executor
// set maps each task kind to its implementation: indexing sources, checking
// directories, copying channel images, fetching metadata and thumbnails,
// downloading media, and triggering media server rescans.
package workers
