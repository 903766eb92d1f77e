package core

import (
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// ReceiptHash identifies a committed invocation:
// blake3(height_be64 || len(signer)_be16 || signer || msg).
func ReceiptHash(height int64, signer string, msg []byte) string {
	buf := make([]byte, 0, 8+2+len(signer)+len(msg))
	buf = binary.BigEndian.AppendUint64(buf, uint64(height))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(signer)))
	buf = append(buf, signer...)
	buf = append(buf, msg...)
	sum := blake3.Sum256(buf)
	return "0x" + hex.EncodeToString(sum[:])
}
