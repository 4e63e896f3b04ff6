// Package textutil sanitizes names for safe filesystem use. Source display
// names become download directory segments, so they pass through here before
// touching the disk.
package textutil
