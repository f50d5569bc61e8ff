/*
Package types holds the data structures and contracts shared across tiercache
packages.

Entry is the unit of caching: a 64-bit identity plus opaque bytes. Identities
are unique across the whole cache, not just within one tier.

Cache is the contract the displacement engine satisfies. Recorder is the hook
through which the engine reports operations, displacements and discards to a
metrics backend without depending on one.
*/
package types
