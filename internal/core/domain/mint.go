package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const (
	NutFees              = "2"
	NutMint              = "4"
	NutMelt              = "5"
	NutCheckState        = "7"
	NutRestore           = "9"
	NutSpendingCondition = "10"
	NutP2PK              = "11"
	NutDLEQ              = "12"
	NutWebSockets        = "17"
	NutClearAuth         = "21"
	NutBlindAuth         = "22"
)

type MintContact struct {
	Method string `json:"method"`
	Info   string `json:"info"`
}

// MintInfo is the capability descriptor published by a mint.
type MintInfo struct {
	Name            string                     `json:"name,omitempty"`
	Pubkey          string                     `json:"pubkey,omitempty"`
	Version         string                     `json:"version,omitempty"`
	Description     string                     `json:"description,omitempty"`
	DescriptionLong string                     `json:"description_long,omitempty"`
	Contact         []MintContact              `json:"contact,omitempty"`
	Motd            string                     `json:"motd,omitempty"`
	Nuts            map[string]json.RawMessage `json:"nuts,omitempty"`
}

// UnmarshalJSON accepts both the current list of {method, info} objects and
// the legacy list of [method, info] pairs for the contact field.
func (i *MintInfo) UnmarshalJSON(buf []byte) error {
	type alias MintInfo
	aux := struct {
		*alias
		Contact json.RawMessage `json:"contact,omitempty"`
	}{alias: (*alias)(i)}
	if err := json.Unmarshal(buf, &aux); err != nil {
		return err
	}

	i.Contact = nil
	if len(aux.Contact) == 0 {
		return nil
	}
	var contacts []MintContact
	if err := json.Unmarshal(aux.Contact, &contacts); err == nil {
		i.Contact = contacts
		return nil
	}
	var pairs [][]string
	if err := json.Unmarshal(aux.Contact, &pairs); err != nil {
		// A malformed contact list must not prevent using the mint.
		return nil
	}
	for _, p := range pairs {
		if len(p) == 2 {
			i.Contact = append(i.Contact, MintContact{Method: p[0], Info: p[1]})
		}
	}
	return nil
}

type nutSetting struct {
	Supported json.RawMessage `json:"supported"`
	Disabled  bool            `json:"disabled"`
	Methods   []struct {
		Method string `json:"method"`
		Unit   string `json:"unit"`
	} `json:"methods"`
}

// rawNut returns the settings of the given nut, published either as "7" or
// as "07".
func (i MintInfo) rawNut(nut string) (json.RawMessage, bool) {
	raw, ok := i.Nuts[nut]
	if !ok && len(nut) == 1 {
		raw, ok = i.Nuts["0"+nut]
	}
	if !ok || len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

func (i MintInfo) nut(nut string) (*nutSetting, bool) {
	raw, ok := i.rawNut(nut)
	if !ok {
		return nil, false
	}
	setting := &nutSetting{}
	if err := json.Unmarshal(raw, setting); err != nil {
		return nil, false
	}
	return setting, true
}

// IsSupported returns whether the mint advertises the given optional nut.
// The "supported" flag can either be a bool or, like for websockets, a non
// empty list of settings. Absent or malformed entries count as unsupported.
func (i MintInfo) IsSupported(nut string) bool {
	setting, ok := i.nut(nut)
	if !ok {
		return false
	}
	var flag bool
	if err := json.Unmarshal(setting.Supported, &flag); err == nil {
		return flag
	}
	var list []json.RawMessage
	if err := json.Unmarshal(setting.Supported, &list); err == nil {
		return len(list) > 0
	}
	return false
}

// SupportsMethod returns whether the mint (NUT-04) or melt (NUT-05) settings
// allow the bolt11 method for the given unit. Mints that don't publish the
// setting are assumed to allow it.
func (i MintInfo) SupportsMethod(nut, unit string) bool {
	setting, ok := i.nut(nut)
	if !ok {
		return true
	}
	if setting.Disabled {
		return false
	}
	if len(setting.Methods) == 0 {
		return true
	}
	for _, m := range setting.Methods {
		if m.Method == "bolt11" && m.Unit == unit {
			return true
		}
	}
	return false
}

func (i MintInfo) SupportsFees() bool {
	return i.IsSupported(NutFees)
}

func (i MintInfo) SupportsCheckState() bool {
	return i.IsSupported(NutCheckState)
}

func (i MintInfo) SupportsRestore() bool {
	return i.IsSupported(NutRestore)
}

func (i MintInfo) SupportsSpendingConditions() bool {
	return i.IsSupported(NutSpendingCondition) && i.IsSupported(NutP2PK)
}

func (i MintInfo) SupportsDLEQ() bool {
	return i.IsSupported(NutDLEQ)
}

func (i MintInfo) SupportsWebSockets() bool {
	return i.IsSupported(NutWebSockets)
}

// RequiresAuth returns whether any endpoint of the mint is auth gated.
func (i MintInfo) RequiresAuth() bool {
	for _, nut := range []string{NutClearAuth, NutBlindAuth} {
		raw, ok := i.rawNut(nut)
		if !ok {
			continue
		}
		var setting map[string]json.RawMessage
		if err := json.Unmarshal(raw, &setting); err == nil && len(setting) > 0 {
			return true
		}
	}
	return false
}

// Keyset is a versioned set of signing keys of a mint for a given unit.
type Keyset struct {
	ID          string            `json:"id"`
	Unit        string            `json:"unit"`
	Active      bool              `json:"active"`
	InputFeePpk uint64            `json:"input_fee_ppk,omitempty"`
	Keys        map[uint64]string `json:"keys,omitempty"`
}

// MintRecord is the persisted info about a known mint. It exists only for
// mints that have been successfully probed at least once.
type MintRecord struct {
	URL            string
	Info           MintInfo
	Units          []string
	Keysets        []Keyset
	BackupEventIDs []string
	CreatedAt      int64
	UpdatedAt      int64
}

// NewMintRecord returns a record for a mint whose info and keysets have just
// been fetched. Every unit must be backed by an active keyset.
func NewMintRecord(
	url string, info MintInfo, keysets []Keyset, units []string,
) (*MintRecord, error) {
	if url == "" {
		return nil, ErrInvalidMintURL
	}
	now := time.Now().Unix()
	r := &MintRecord{
		URL:       url,
		Info:      info,
		Keysets:   keysets,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, unit := range units {
		if err := r.AddUnit(unit); err != nil {
			return nil, err
		}
	}
	if len(r.Units) == 0 {
		return nil, fmt.Errorf("%w: no unit given", ErrInvalidUnit)
	}
	return r, nil
}

// SetKeysets replaces the known keysets.
func (r *MintRecord) SetKeysets(keysets []Keyset) {
	r.Keysets = keysets
	r.UpdatedAt = time.Now().Unix()
}

// AddUnit registers a new wallet unit for the mint.
func (r *MintRecord) AddUnit(unit string) error {
	if !r.SupportsUnit(unit) {
		return fmt.Errorf("%w: %s", ErrInvalidUnit, unit)
	}
	if r.HasUnit(unit) {
		return nil
	}
	r.Units = append(r.Units, unit)
	sort.Strings(r.Units)
	r.UpdatedAt = time.Now().Unix()
	return nil
}

// HasUnit returns whether a wallet is registered for the given unit.
func (r *MintRecord) HasUnit(unit string) bool {
	for _, u := range r.Units {
		if u == unit {
			return true
		}
	}
	return false
}

// SupportsUnit returns whether the mint has an active keyset for the unit.
func (r *MintRecord) SupportsUnit(unit string) bool {
	for _, k := range r.Keysets {
		if k.Active && k.Unit == unit {
			return true
		}
	}
	return false
}

// KeysetsForUnit returns all keysets, active or not, of the given unit.
func (r *MintRecord) KeysetsForUnit(unit string) []Keyset {
	keysets := make([]Keyset, 0)
	for _, k := range r.Keysets {
		if k.Unit == unit {
			keysets = append(keysets, k)
		}
	}
	return keysets
}

// ActiveKeyset returns the cheapest active keyset for the given unit.
func (r *MintRecord) ActiveKeyset(unit string) (*Keyset, error) {
	var best *Keyset
	for i := range r.Keysets {
		k := r.Keysets[i]
		if !k.Active || k.Unit != unit {
			continue
		}
		if best == nil || k.InputFeePpk < best.InputFeePpk {
			best = &k
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidUnit, unit)
	}
	return best, nil
}

// Keyset returns the keyset with the given id.
func (r *MintRecord) Keyset(id string) (*Keyset, bool) {
	for i := range r.Keysets {
		if r.Keysets[i].ID == id {
			k := r.Keysets[i]
			return &k, true
		}
	}
	return nil, false
}

// InputFee returns the fee the mint charges to spend the given proofs,
// ie. the sum of the per-input fees of their keysets in ppk, rounded up.
func (r *MintRecord) InputFee(proofs Proofs) uint64 {
	fees := make(map[string]uint64, len(r.Keysets))
	for _, k := range r.Keysets {
		fees[k.ID] = k.InputFeePpk
	}
	var sum uint64
	for _, p := range proofs {
		sum += fees[p.KeysetID]
	}
	return (sum + 999) / 1000
}

// WalletKeys returns the keys of the wallet instances of this mint.
func (r *MintRecord) WalletKeys() []WalletKey {
	keys := make([]WalletKey, 0, len(r.Units))
	for _, u := range r.Units {
		keys = append(keys, WalletKey{MintURL: r.URL, Unit: u})
	}
	return keys
}
