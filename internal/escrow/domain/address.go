package escrow

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Address identifies an account: an owner wallet, an alarm record,
// a vault balance, or a penalty destination. Opaque string form.
type Address string

// BurnSink is the default sink for burned penalties.
const BurnSink Address = "1nc1nerator11111111111111111111111111111111"

const (
	seedAlarm = "alarm"
	seedVault = "vault"
)

// DeriveAlarmAddress maps (owner, alarm id) to the alarm record address.
// Pure and deterministic: the same inputs always yield the same address,
// so no external index is needed to locate a record.
func DeriveAlarmAddress(owner Address, alarmID uint64) Address {
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], alarmID)

	h := sha256.New()
	h.Write([]byte(seedAlarm))
	h.Write([]byte{0})
	h.Write([]byte(owner))
	h.Write([]byte{0})
	h.Write(id[:])
	return Address(hex.EncodeToString(h.Sum(nil)))
}

// DeriveVaultAddress maps an alarm record address to its vault balance address.
func DeriveVaultAddress(alarmAddress Address) Address {
	h := sha256.New()
	h.Write([]byte(seedVault))
	h.Write([]byte{0})
	h.Write([]byte(alarmAddress))
	return Address(hex.EncodeToString(h.Sum(nil)))
}
