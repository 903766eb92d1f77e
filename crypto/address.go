package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressLength is the size of a canonical address.
const AddressLength = 20

// DefaultPrefix is the human-readable part used when none is configured.
const DefaultPrefix = "eco"

var (
	ErrEmptyAddress   = errors.New("address: empty")
	ErrAddressPrefix  = errors.New("address: unexpected prefix")
	ErrAddressLength  = errors.New("address: canonical form must be 20 bytes")
	ErrInvalidAddress = errors.New("address: invalid bech32 string")
)

// Address is a 20-byte canonical address together with its human-readable
// prefix.
type Address struct {
	prefix string
	bytes  []byte
}

func NewAddress(prefix string, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("%w: got %d", ErrAddressLength, len(b))
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}, nil
}

// String renders the bech32 form, or "" when the address cannot be encoded.
// Use Encode to see the failure.
func (a Address) String() string {
	encoded, err := a.Encode()
	if err != nil {
		return ""
	}
	return encoded
}

// Encode renders the bech32 form of the address.
func (a Address) Encode() (string, error) {
	if err := checkPrefix(a.prefix); err != nil {
		return "", err
	}
	if len(a.bytes) != AddressLength {
		return "", fmt.Errorf("%w: got %d", ErrAddressLength, len(a.bytes))
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: converting bits: %v", ErrInvalidAddress, err)
	}
	encoded, err := bech32.Encode(a.prefix, conv)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return encoded, nil
}

// checkPrefix enforces the bech32 human-readable part rules: lower case
// printable ASCII, no longer than 83 characters.
func checkPrefix(prefix string) error {
	if prefix == "" || len(prefix) > 83 {
		return fmt.Errorf("%w: length %d", ErrAddressPrefix, len(prefix))
	}
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c < 33 || c > 126 || (c >= 'A' && c <= 'Z') {
			return fmt.Errorf("%w: invalid character %q", ErrAddressPrefix, c)
		}
	}
	return nil
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() string {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	trimmed := strings.TrimSpace(addrStr)
	if trimmed == "" {
		return Address{}, ErrEmptyAddress
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: converting bits: %v", ErrInvalidAddress, err)
	}
	return NewAddress(prefix, conv)
}

// Codec converts between human-readable and canonical addresses for a single
// bech32 prefix. It is the address collaborator handed to the contract engine.
type Codec struct {
	prefix string
}

// NewCodec returns a codec for prefix, falling back to DefaultPrefix.
func NewCodec(prefix string) *Codec {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Codec{prefix: prefix}
}

// Prefix returns the bech32 human-readable part handled by the codec.
func (c *Codec) Prefix() string { return c.prefix }

// Canonicalize decodes a human-readable address into its 20 canonical bytes.
func (c *Codec) Canonicalize(human string) ([]byte, error) {
	addr, err := DecodeAddress(human)
	if err != nil {
		return nil, err
	}
	if addr.Prefix() != c.prefix {
		return nil, fmt.Errorf("%w: want %q, got %q", ErrAddressPrefix, c.prefix, addr.Prefix())
	}
	return addr.Bytes(), nil
}

// Humanize encodes canonical bytes using the codec prefix.
func (c *Codec) Humanize(canonical []byte) (string, error) {
	addr, err := NewAddress(c.prefix, canonical)
	if err != nil {
		return "", err
	}
	return addr.Encode()
}
