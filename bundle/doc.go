/*
Package bundle decodes ANS-104 bundles, the binary format used to pack many
signed data items into the payload of a single Arweave transaction.

A bundle begins with a header giving the number of items, followed by one
entry per item with the item's length in bytes and its 32 byte id. The items
follow the header, back to back, in header order:

	count       4 bytes little endian, then 28 reserved bytes
	entry       4 bytes little endian size, 28 reserved bytes, 32 byte id
	...         (count entries)
	item        size bytes
	...         (count items)

Each item has the layout

	signature type   2 bytes little endian, 1..8
	signature        length fixed by the signature type
	owner            length fixed by the signature type
	target           presence byte (0 or 1), then 0 or 32 bytes
	anchor           presence byte (0 or 1), then 0 or 32 bytes
	tag count        8 bytes little endian
	tag bytes        8 bytes little endian
	tags             tag bytes long, see package tags
	data             everything remaining in the item

Binary fields are reported base64url encoded without padding. Signatures are
not verified.

Items can be decoded all at once with Decode, or one at a time with a Reader.
Both use DecodeItem, so they produce the same items in the same order.

The sum of the entry sizes is not checked against the bundle length up
front. An entry which runs past the end of the input fails when its bytes are
taken, with an error wrapping ErrOutOfBounds.
*/
package bundle
