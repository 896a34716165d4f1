package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
)

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
