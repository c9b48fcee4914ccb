/*
Package indexer turns an ANS-104 bundle into a stored artifact.

An Indexer downloads the bundle for a transaction, decodes its items and
writes them, in header order, into a Session. The Session stages the records
in its store and only publishes them under the transaction's key when every
item has been stored. If decoding or storing fails part way the Session is
rolled back and nothing appears under the key.

The artifact is newline delimited JSON, one record per item, with the fields
id, signature, owner, target, anchor, tags and data. Target and anchor are
left out of a record when the item does not have them.

Two runs for the same key must not overlap; they would share a staging file.
IndexAll takes care of this for the ids given to it, but runs started
separately are the caller's responsibility. A run that is abandoned (for
example by a context deadline while downloading) before it has a Session
leaves nothing behind. One abandoned after that may leave its staging file.
*/
package indexer
