package path

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	// Nut13Purpose is the purpose of the paths of deterministic ecash
	// secrets, m/129372'/0'/{keyset}'/{counter}'/{0|1}.
	Nut13Purpose = 129372
	// Nip06Purpose and Nip06CoinType identify the paths of nostr keys,
	// m/44'/1237'/{account}'/0/0.
	Nip06Purpose  = 44
	Nip06CoinType = 1237

	SecretBranch   = 0
	BlindingBranch = 1
)

// DerivationPath is the data structure representing an HD path.
type DerivationPath []uint32

// ParseDerivationPath converts a derivation path in string format to a
// DerivationPath type.
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	return parseDerivationPath(strPath, false)
}

// ParseAbsoluteDerivationPath is like ParseDerivationPath but requires the
// path to start from the master key.
func ParseAbsoluteDerivationPath(strPath string) (DerivationPath, error) {
	return parseDerivationPath(strPath, true)
}

// KeysetIndex maps a hex keyset id to the hardened-range integer used in
// NUT-13 paths: the id read as a big endian integer modulo 2^31-1.
func KeysetIndex(keysetID string) (uint32, error) {
	buf, err := hex.DecodeString(keysetID)
	if err != nil || len(buf) == 0 {
		return 0, ErrInvalidKeysetID
	}
	mod := big.NewInt(math.MaxInt32)
	index := new(big.Int).Mod(new(big.Int).SetBytes(buf), mod)
	return uint32(index.Uint64()), nil
}

// Nut13Path returns the path of either the secret or the blinding factor of
// the counter-th output of the given keyset.
func Nut13Path(keysetID string, counter uint32, branch uint32) (DerivationPath, error) {
	if counter >= hdkeychain.HardenedKeyStart {
		return nil, ErrCounterOutOfRange
	}
	index, err := KeysetIndex(keysetID)
	if err != nil {
		return nil, err
	}
	return DerivationPath{
		hdkeychain.HardenedKeyStart + Nut13Purpose,
		hdkeychain.HardenedKeyStart,
		hdkeychain.HardenedKeyStart + index,
		hdkeychain.HardenedKeyStart + counter,
		branch,
	}, nil
}

// Nip06Path returns the path of the nostr key of the given account.
func Nip06Path(account uint32) DerivationPath {
	return DerivationPath{
		hdkeychain.HardenedKeyStart + Nip06Purpose,
		hdkeychain.HardenedKeyStart + Nip06CoinType,
		hdkeychain.HardenedKeyStart + account,
		0,
		0,
	}
}

func (path DerivationPath) String() string {
	if len(path) <= 0 {
		return ""
	}

	result := "m"
	for _, component := range path {
		var hardened bool
		if component >= hdkeychain.HardenedKeyStart {
			component -= hdkeychain.HardenedKeyStart
			hardened = true
		}
		result = fmt.Sprintf("%s/%d", result, component)
		if hardened {
			result += "'"
		}
	}
	return result
}

func parseDerivationPath(
	strPath string, checkAbsolutePath bool,
) (DerivationPath, error) {
	if strPath == "" {
		return nil, ErrMissingDerivationPath
	}

	elems := strings.Split(strPath, "/")
	for _, s := range elems {
		if s == "" {
			return nil, ErrMalformedDerivationPath
		}
	}
	if checkAbsolutePath && strings.TrimSpace(elems[0]) != "m" {
		return nil, ErrRequiredAbsoluteDerivationPath
	}
	if len(elems) < 2 {
		return nil, ErrMalformedDerivationPath
	}
	if strings.TrimSpace(elems[0]) == "m" {
		elems = elems[1:]
	}

	path := make(DerivationPath, 0, len(elems))
	for _, elem := range elems {
		elem = strings.TrimSpace(elem)
		var value uint32

		if strings.HasSuffix(elem, "'") {
			value = hdkeychain.HardenedKeyStart
			elem = strings.TrimSpace(strings.TrimSuffix(elem, "'"))
		}

		bigval, ok := new(big.Int).SetString(elem, 0)
		if !ok {
			return nil, fmt.Errorf("invalid elem '%s' in path", elem)
		}

		max := math.MaxUint32 - value
		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(max))) > 0 {
			if value == 0 {
				return nil, fmt.Errorf("elem %v must be in range [0, %d]", bigval, max)
			}
			return nil, fmt.Errorf("elem %v must be in hardened range [0, %d]", bigval, max)
		}
		value += uint32(bigval.Uint64())

		path = append(path, value)
	}

	return path, nil
}
