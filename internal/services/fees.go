package services

// DefaultPlatformFeePct is the marketplace cut, overridable via PLATFORM_FEE_PCT.
const DefaultPlatformFeePct = 10

// PlatformFee computes the platform fee exactly once, at order creation, as a
// percentage of the amount rounded down to the nearest minor unit. It is
// never recomputed at completion.
func PlatformFee(amountCents int64, pct int) int64 {
	if amountCents <= 0 || pct <= 0 {
		return 0
	}
	return amountCents * int64(pct) / 100
}
