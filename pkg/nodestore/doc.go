/*
Package nodestore maintains the tunnel nodes inside the passwall2 UCI file.

The file is a sequence of blocks. A managed block starts with the header

	config nodes 'lFQCkuzv'

and continues over the indented option and list lines that follow it.
Everything else is foreign content and is carried through byte for byte, in
order.

Managed blocks are keyed by their uuid option. Upsert replaces the block with
the same uuid where it stands, or appends a new one, and drops any later
duplicate of that uuid. Options are always rendered in the same order so that
rewriting an unchanged node produces identical bytes, and FileStore skips the
write entirely in that case.
*/
package nodestore
