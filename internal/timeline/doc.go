// Package timeline holds the persisted timeline document and reconciles the
// visual scene timeline with the narration timeline into one frame count.
//
// Compose is the single place the composition length is computed; the
// preview endpoint and the render job both call it.
package timeline
