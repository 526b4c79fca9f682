// Package edzip provides random access into ZIP archives whose central
// directory has been replaced by an external, durable index.
//
// An archive is scanned once, front to back, producing one Entry per member.
// Entries are persisted into a Directory (for example the SQLite store in
// store/sqlite). Later read sessions look entries up by name and fetch only
// the byte range backing a single member, so archives with millions of
// entries can be read without loading their central directory into memory
// and without downloading the archive wholesale.
//
// The build pass is forward-only streaming: it never seeks, which makes it
// usable on sources whose full length is not known in advance. The read path
// needs only a ranged ByteSource, such as a local file or an HTTP object
// supporting range requests.
package edzip
