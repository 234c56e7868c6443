package claimable

import (
	"fmt"
	"math/big"
	"strings"
)

// Status is the lifecycle state of a claimable balance. The ledger enforces
// the Open -> Claimed transition exactly once; this type only mirrors it.
type Status uint8

const (
	StatusOpen Status = iota + 1
	StatusClaimed
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusClaimed:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status in its wire form.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("claimable: invalid status %d", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses the wire form of a status.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "open":
		*s = StatusOpen
	case "claimed":
		*s = StatusClaimed
	default:
		return fmt.Errorf("claimable: unknown status %q", string(text))
	}
	return nil
}

// NativeAssetCode is the marketplace's native settlement token.
const NativeAssetCode = "HRV"

// AmountDecimals is the supported asset precision: amounts are carried as
// decimal strings with at most seven fractional digits.
const AmountDecimals = 7

// Asset identifies a settlement asset. The zero issuer denotes the native
// token.
type Asset struct {
	Code   string `json:"code"`
	Issuer string `json:"issuer,omitempty"`
}

// NativeAsset returns the native settlement asset.
func NativeAsset() Asset {
	return Asset{Code: NativeAssetCode}
}

// IsNative reports whether the asset is the native token.
func (a Asset) IsNative() bool {
	return a.Issuer == "" && (a.Code == "" || a.Code == NativeAssetCode)
}

// Normalize canonicalises the asset: empty code resolves to the native token
// and codes are uppercased.
func (a Asset) Normalize() (Asset, error) {
	code := strings.ToUpper(strings.TrimSpace(a.Code))
	issuer := strings.TrimSpace(a.Issuer)
	if code == "" {
		if issuer != "" {
			return Asset{}, fmt.Errorf("claimable: asset issuer set without code")
		}
		return NativeAsset(), nil
	}
	if len(code) > 12 {
		return Asset{}, fmt.Errorf("claimable: asset code %q exceeds 12 characters", code)
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return Asset{}, fmt.Errorf("claimable: asset code %q is not alphanumeric", code)
		}
	}
	if code == NativeAssetCode && issuer != "" {
		return Asset{}, fmt.Errorf("claimable: native asset cannot carry an issuer")
	}
	if code != NativeAssetCode && issuer == "" {
		return Asset{}, fmt.Errorf("claimable: non-native asset %q requires an issuer", code)
	}
	return Asset{Code: code, Issuer: issuer}, nil
}

func (a Asset) String() string {
	if a.IsNative() {
		return NativeAssetCode
	}
	return a.Code + ":" + a.Issuer
}

var amountUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(AmountDecimals), nil)

// ParseAmount converts a positive decimal string into integral ledger units
// (10^-7 of the asset). Zero, negative, malformed and over-precise inputs are
// rejected.
func ParseAmount(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("claimable: empty amount")
	}
	if strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "-") {
		return nil, fmt.Errorf("claimable: amount must be an unsigned decimal: %q", s)
	}
	whole, frac := trimmed, ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole, frac = trimmed[:idx], trimmed[idx+1:]
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("claimable: malformed amount %q", s)
	}
	if len(frac) > AmountDecimals {
		return nil, fmt.Errorf("claimable: amount %q exceeds %d decimal places", s, AmountDecimals)
	}
	digits := whole + frac + strings.Repeat("0", AmountDecimals-len(frac))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("claimable: malformed amount %q", s)
		}
	}
	units, ok := new(big.Int).SetString(strings.TrimLeft(digits, "0"), 10)
	if !ok {
		units = big.NewInt(0)
	}
	if units.Sign() <= 0 {
		return nil, fmt.Errorf("claimable: amount must be positive: %q", s)
	}
	return units, nil
}

// FormatAmount renders integral ledger units back into the canonical decimal
// string form, trimming trailing fractional zeros.
func FormatAmount(units *big.Int) string {
	if units == nil || units.Sign() <= 0 {
		return "0"
	}
	quo, rem := new(big.Int).QuoRem(units, amountUnit, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%0*d", AmountDecimals, rem), "0")
	return quo.String() + "." + frac
}

// Claimant pairs a claimant address with the predicate gating its claim.
type Claimant struct {
	Address   string    `json:"address"`
	Predicate Predicate `json:"predicate"`
}

// Balance mirrors a ledger claimable balance entry. The identifier is
// assigned by the ledger at creation and is not predictable client-side.
type Balance struct {
	ID        string     `json:"id"`
	Asset     Asset      `json:"asset"`
	Amount    string     `json:"amount"`
	Sponsor   string     `json:"sponsor"`
	Claimants []Claimant `json:"claimants"`
	Status    Status     `json:"status,omitempty"`
}

// Claimant returns the claimant entry for the given address, if present.
func (b *Balance) Claimant(address string) (Claimant, bool) {
	for _, c := range b.Claimants {
		if c.Address == address {
			return c, true
		}
	}
	return Claimant{}, false
}

// Clone returns a deep copy, including each claimant's predicate tree, so
// callers can mutate safely.
func (b *Balance) Clone() *Balance {
	if b == nil {
		return nil
	}
	out := *b
	if b.Claimants != nil {
		out.Claimants = make([]Claimant, len(b.Claimants))
		for i, c := range b.Claimants {
			c.Predicate = c.Predicate.Clone()
			out.Claimants[i] = c
		}
	}
	return &out
}
