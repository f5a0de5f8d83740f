// Package ttscache is the content-addressed narration audio cache.
//
// Every asset is keyed by the md5 of text, language, and speed and stored as
// <digest>.mp3. Resolve is the only way in: a hit returns immediately, a miss
// synthesizes baseline audio, retimes it with atempo when the speed differs
// from 1.0 by more than SpeedTolerance, and probes the final duration.
// Concurrent resolutions of one key share a single in-flight call inside a
// process and serialize on a per-key lock file across processes, so the daemon
// preview path and the render job can share the directory. Files appear via
// rename, so a reader never sees a partial asset.
//
// The cache is unbounded; nothing is evicted.
package ttscache
