// Package fileutil provides the crash-safe file primitives shared by the
// reconcilers: atomic replacement through a same-directory temporary file and
// an advisory flock held for the duration of a read-modify-write.
package fileutil
