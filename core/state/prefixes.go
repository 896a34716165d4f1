package state

import "fmt"

// Raw key builders for the ledger tables. Keys are human readable here and
// keccak-hashed by the manager before storage. Tables are append-never-delete:
// closed records stay queryable but inactive.

func accountKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("account/%x", addr))
}

func vaultPoolKey() []byte {
	return []byte("vault/pool")
}

func vaultSharesKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("vault/shares/%x", addr))
}

func vaultAllowanceKey(owner, spender [20]byte) []byte {
	return []byte(fmt.Sprintf("vault/allowance/%x/%x", owner, spender))
}

func collateralRecordKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("collateral/record/%x", addr))
}

func loanPositionKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("loan/position/%x", addr))
}

func loanStatsKey() []byte {
	return []byte("loan/stats")
}

func walletRecordKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("wallet/record/%x", addr))
}
