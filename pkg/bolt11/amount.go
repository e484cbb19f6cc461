package bolt11

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var multipliers = map[byte]decimal.Decimal{
	'm': decimal.New(1, -3),
	'u': decimal.New(1, -6),
	'n': decimal.New(1, -9),
	'p': decimal.New(1, -12),
}

var msatPerBtc = decimal.New(1, 11)

// parseHrp splits the human readable part of an invoice into network and
// amount in millisatoshis.
func parseHrp(hrp string) (string, uint64, bool, error) {
	rest := strings.TrimPrefix(hrp, "ln")
	i := strings.IndexFunc(rest, func(r rune) bool { return r >= '0' && r <= '9' })
	if i < 0 {
		if rest == "" {
			return "", 0, false, fmt.Errorf("missing network in invoice prefix")
		}
		return rest, 0, false, nil
	}
	if i == 0 {
		return "", 0, false, fmt.Errorf("missing network in invoice prefix")
	}

	amount, err := parseAmount(rest[i:])
	if err != nil {
		return "", 0, false, err
	}
	return rest[:i], amount, true, nil
}

func parseAmount(str string) (uint64, error) {
	if str == "" {
		return 0, fmt.Errorf("empty amount")
	}
	multiplier := decimal.NewFromInt(1)
	last := str[len(str)-1]
	if m, ok := multipliers[last]; ok {
		multiplier = m
		str = str[:len(str)-1]
	}
	if str == "" || strings.IndexFunc(str, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, fmt.Errorf("invalid amount %q", str)
	}
	if len(str) > 1 && str[0] == '0' {
		return 0, fmt.Errorf("amount must not have leading zeros")
	}

	value, err := decimal.NewFromString(str)
	if err != nil {
		return 0, err
	}
	msat := value.Mul(multiplier).Mul(msatPerBtc)
	if !msat.IsInteger() {
		return 0, fmt.Errorf("amount is not a whole number of millisatoshis")
	}
	if msat.IsZero() {
		return 0, fmt.Errorf("amount must be greater than zero")
	}
	return uint64(msat.IntPart()), nil
}

// formatAmount returns the shortest representation of the amount for the
// invoice prefix, or an empty string for a zero amount.
func formatAmount(msat uint64) string {
	if msat == 0 {
		return ""
	}
	value := decimal.NewFromInt(int64(msat)).Div(msatPerBtc)
	for _, unit := range []byte{'m', 'u', 'n'} {
		v := value.Div(multipliers[unit])
		if v.IsInteger() {
			return v.String() + string(unit)
		}
	}
	return value.Div(multipliers['p']).String() + "p"
}
