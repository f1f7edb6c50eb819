package helpers

import "math"

// WholeLots floors a share count to whole lots
func WholeLots(shares float64, lotSize int) int {
	if lotSize <= 0 {
		lotSize = 1
	}
	lots := int(math.Floor(shares / float64(lotSize)))
	if lots < 0 {
		return 0
	}
	return lots
}

// SharesForLots converts a lot count back to shares
func SharesForLots(lots, lotSize int) float64 {
	if lotSize <= 0 {
		lotSize = 1
	}
	if lots < 0 {
		return 0
	}
	return float64(lots * lotSize)
}

