// Package nodehash provides the domain separated hash primitive shared by the
// mountain range and sparse tree accumulators.
//
// Every hash input is prefixed with a single tag byte so that a leaf can never
// be confused with an interior node, a bagged peak or a key address:
//
//	HashLeaf(p)    = H( 0x00 || p )
//	HashNode(l, r) = H( 0x01 || l || r )
//	HashBag(l, r)  = H( 0x02 || l || r )
//	HashKey(k)     = H( 0x03 || k )
//
// Digests are always 32 bytes. BLAKE2b-256 is the default algorithm and
// SHA-256 is available for interop.
package nodehash
