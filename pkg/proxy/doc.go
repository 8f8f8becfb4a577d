// Package proxy mirrors remote directory objects on the client.
//
// A Factory opens an object in three dependent steps (open, object info,
// attributes) and hands back an Object whose attributes can be read and
// edited locally. Edits are written back asynchronously once the object is
// initialized; multivalue attributes are coalesced by a Debouncer. Objects
// of the same (type, base type) pair share one Class from the ClassCache.
//
// Push notifications arrive through a Bus and refresh or close the matching
// object.
package proxy
