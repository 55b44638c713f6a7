package app

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

var weiPerEther = big.NewInt(params.Ether)

// FormatEther renders a wei amount as a decimal ether string, e.g. "1.5" or "0.000000000000000001".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}

	abs := new(big.Int).Abs(wei)
	whole, frac := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))

	var b strings.Builder
	if wei.Sign() < 0 {
		b.WriteByte('-')
	}
	b.WriteString(whole.String())

	if frac.Sign() != 0 {
		digits := frac.String()
		digits = strings.Repeat("0", 18-len(digits)) + digits
		b.WriteByte('.')
		b.WriteString(strings.TrimRight(digits, "0"))
	}
	return b.String()
}
