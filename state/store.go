// Package state persists engine and bank state in a key/value store.
//
// Records are written field by field under readable string keys such as
// "member:0xab..:shares", so that a store can be inspected with any leveldb
// or sqlite tool. Numbers are stored as decimal strings, addresses as
// checksummed hex and booleans via strconv.
package state

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Store is the subset of axiom-kit's storage.Storage the engine needs.
// Implementations panic on I/O failure, like the leveldb backend does.
type Store interface {
	Get(key []byte) []byte
	Put(key, value []byte)
}

// Key joins parts with ':'.
func Key(parts ...string) []byte {
	return []byte(strings.Join(parts, ":"))
}

func GetString(s Store, key []byte) string {
	return string(s.Get(key))
}

func PutString(s Store, key []byte, v string) {
	s.Put(key, []byte(v))
}

func GetUint64(s Store, key []byte) uint64 {
	data := s.Get(key)
	if len(data) == 0 {
		return 0
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("state: corrupt uint64 at %q: %s", key, err))
	}
	return v
}

func PutUint64(s Store, key []byte, v uint64) {
	s.Put(key, []byte(strconv.FormatUint(v, 10)))
}

func GetInt64(s Store, key []byte) int64 {
	data := s.Get(key)
	if len(data) == 0 {
		return 0
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("state: corrupt int64 at %q: %s", key, err))
	}
	return v
}

func PutInt64(s Store, key []byte, v int64) {
	s.Put(key, []byte(strconv.FormatInt(v, 10)))
}

// GetUint256 returns zero for a missing key.
func GetUint256(s Store, key []byte) *uint256.Int {
	data := s.Get(key)
	if len(data) == 0 {
		return new(uint256.Int)
	}
	b, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		panic(fmt.Sprintf("state: corrupt uint256 at %q", key))
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		panic(fmt.Sprintf("state: uint256 overflow at %q", key))
	}
	return v
}

func PutUint256(s Store, key []byte, v *uint256.Int) {
	if v == nil {
		v = new(uint256.Int)
	}
	s.Put(key, []byte(v.ToBig().String()))
}

func GetBool(s Store, key []byte) bool {
	data := s.Get(key)
	if len(data) == 0 {
		return false
	}
	v, err := strconv.ParseBool(string(data))
	if err != nil {
		panic(fmt.Sprintf("state: corrupt bool at %q: %s", key, err))
	}
	return v
}

func PutBool(s Store, key []byte, v bool) {
	s.Put(key, []byte(strconv.FormatBool(v)))
}

// GetAddress returns the zero address for a missing key.
func GetAddress(s Store, key []byte) common.Address {
	data := s.Get(key)
	if len(data) == 0 {
		return common.Address{}
	}
	return common.HexToAddress(string(data))
}

func PutAddress(s Store, key []byte, addr common.Address) {
	s.Put(key, []byte(addr.Hex()))
}
