/*
Package delivery applies one-off files the control plane queues for a
device.

Each device-file entry names a remote URL and a local path. An entry is
applied when it is active, has not been applied yet and its validity date
has not passed. The file is downloaded and installed atomically; an entry
with an empty remote URL deletes the local file instead. Applied entries are
acknowledged with a PATCH so the next pass skips them.
*/
package delivery
