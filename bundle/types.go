package bundle

import (
	"encoding/base64"
	"strconv"

	"github.com/ndlib/ans104/tags"
)

// A SignatureType identifies the signing scheme of an item. It determines the
// sizes of the signature and owner fields.
type SignatureType uint16

// The signature types defined by ANS-104. The zero value is not valid.
const (
	Arweave SignatureType = iota + 1
	ED25519
	Ethereum
	Solana
	InjectedAptos
	MultiAptos
	TypedEthereum
	Starknet
)

// signature and owner lengths in bytes, indexed by signature type
var signatureSizes = [...]struct{ signature, owner int }{
	Arweave:       {512, 512},
	ED25519:       {64, 32},
	Ethereum:      {65, 65},
	Solana:        {64, 32},
	InjectedAptos: {64, 32},
	MultiAptos:    {2052, 1025},
	TypedEthereum: {65, 42},
	Starknet:      {128, 33},
}

var signatureNames = [...]string{
	Arweave:       "Arweave",
	ED25519:       "ED25519",
	Ethereum:      "Ethereum",
	Solana:        "Solana",
	InjectedAptos: "InjectedAptos",
	MultiAptos:    "MultiAptos",
	TypedEthereum: "TypedEthereum",
	Starknet:      "Starknet",
}

// Valid returns true if st is one of the defined signature types.
func (st SignatureType) Valid() bool {
	return st >= Arweave && int(st) < len(signatureSizes)
}

// Sizes returns the length of the signature and owner fields for st. The
// lengths are 0 if st is not Valid.
func (st SignatureType) Sizes() (signature, owner int) {
	if !st.Valid() {
		return 0, 0
	}
	s := signatureSizes[st]
	return s.signature, s.owner
}

func (st SignatureType) String() string {
	if !st.Valid() {
		return "SignatureType(" + strconv.Itoa(int(st)) + ")"
	}
	return signatureNames[st]
}

// A HeaderEntry locates one item inside a bundle.
type HeaderEntry struct {
	Size uint32 // length of the item in bytes
	ID   string // base64url of the 32 byte item id
}

// An Item is one decoded data item. All of the binary fields are base64url
// encoded without padding. Target and Anchor are nil when the item does not
// have them.
type Item struct {
	ID        string     `json:"id"`
	Signature string     `json:"signature"`
	Owner     string     `json:"owner"`
	Target    *string    `json:"target,omitempty"`
	Anchor    *string    `json:"anchor,omitempty"`
	Tags      []tags.Tag `json:"tags"`
	Data      string     `json:"data"`
}

// the encoding used for every binary field
var b64 = base64.RawURLEncoding

const (
	reservedSize = 28
	idSize       = 32
	linkSize     = 32 // size of target and anchor
	countSize    = 4 + reservedSize
	entrySize    = 4 + reservedSize + idSize
)
