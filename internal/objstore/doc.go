// Package objstore is the object-storage boundary used by the batch path.
//
// Objects are addressed by bucket and key, keys use "/" separators. [FSStore]
// maps them onto a local directory tree, which is also how a mounted bucket
// or a spool directory shared with the batch facility is consumed.
// [MemStore] keeps everything in memory and is meant for tests.
//
// A missing object is reported with an error wrapping [ErrNotFound].
package objstore
