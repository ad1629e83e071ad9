// Package source fetches snapshots of entities for reconciliation.
//
// FileSource reads snapshot documents from a file, a directory, or a
// doublestar glob. Each document is JSON or YAML:
//
//	complete: true
//	entities:
//	  - id: vid-1
//	    created_at: 1690000000
//	    payload: {title: First}
//
// A snapshot assembled from several documents is complete only when every
// document says so. A bare list of entities is read as an incomplete
// snapshot.
package source
