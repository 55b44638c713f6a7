package aa

import "math/big"

// FeesFromBaseFee returns maxFeePerGas = 2*baseFee + tip and maxPriorityFeePerGas = tip.
func FeesFromBaseFee(baseFee, tip *big.Int) (maxFee, maxPriority *big.Int) {
	maxPriority = new(big.Int).Set(orZero(tip))
	maxFee = new(big.Int).Mul(orZero(baseFee), big.NewInt(2))
	maxFee.Add(maxFee, maxPriority)
	return maxFee, maxPriority
}
