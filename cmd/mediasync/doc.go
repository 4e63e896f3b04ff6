// Command mediasync is the management CLI: it registers sources and media
// servers, inspects media items and the task registry, and maintains the
// configuration file. Mutations made here run the same lifecycle rules as
// daemon mutations, so adding a source from the CLI schedules its initial
// work immediately.
package main
