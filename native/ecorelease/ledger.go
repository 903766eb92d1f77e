package ecorelease

import (
	"errors"

	"github.com/holiman/uint256"

	"ecorelease/storage"
)

// PrefixBalances namespaces the balance ledger inside the contract store.
var PrefixBalances = []byte("balances")

// BalanceWidth is the fixed on-disk size of a balance: an unsigned 128-bit
// integer in big-endian order.
const BalanceWidth = 16

// DecodeBalance converts a stored 16-byte value into an integer. Any other
// length is reported as corruption.
func DecodeBalance(data []byte) (*uint256.Int, error) {
	if len(data) != BalanceWidth {
		return nil, ErrCorruptedBalance
	}
	return new(uint256.Int).SetBytes16(data), nil
}

// EncodeBalance renders v as 16 big-endian bytes.
func EncodeBalance(v *uint256.Int) ([]byte, error) {
	if v == nil {
		v = new(uint256.Int)
	}
	if v.BitLen() > 128 {
		return nil, ErrBalanceOverflow
	}
	full := v.Bytes32()
	out := make([]byte, BalanceWidth)
	copy(out, full[32-BalanceWidth:])
	return out, nil
}

// readUint128 returns zero for an absent key.
func readUint128(store storage.Reader, key []byte) (*uint256.Int, error) {
	data, err := store.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeBalance(data)
}

// Ledger maps canonical addresses to accumulated balances. Entries are only
// ever credited.
type Ledger struct {
	store *storage.PrefixStore
}

// NewLedger opens the ledger namespace of store.
func NewLedger(store storage.KVStore) *Ledger {
	return &Ledger{store: storage.NewPrefixStore(store, PrefixBalances)}
}

// Balance returns the balance of addr, zero when no entry exists.
func (l *Ledger) Balance(addr []byte) (*uint256.Int, error) {
	return readUint128(l.store, addr)
}

// Credit adds amount to addr and returns the new balance.
func (l *Ledger) Credit(addr []byte, amount uint64) (*uint256.Int, error) {
	current, err := l.Balance(addr)
	if err != nil {
		return nil, err
	}
	next, overflow := new(uint256.Int).AddOverflow(current, uint256.NewInt(amount))
	if overflow {
		return nil, ErrBalanceOverflow
	}
	encoded, err := EncodeBalance(next)
	if err != nil {
		return nil, err
	}
	if err := l.store.Put(addr, encoded); err != nil {
		return nil, err
	}
	return next, nil
}

// ReadBalance reads a balance through a read-only view of the contract store.
func ReadBalance(store storage.Reader, addr []byte) (*uint256.Int, error) {
	return readUint128(storage.NewReadOnlyPrefixStore(store, PrefixBalances), addr)
}
