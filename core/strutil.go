package core

// itoa converts an integer to a string without using fmt package
// This is a lightweight alternative for embedded systems
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa(uint32(-n))
	}
	return utoa(uint32(n))
}

// utoa converts an unsigned integer to a string
func utoa(n uint32) string {
	if n == 0 {
		return "0"
	}

	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// ftoa formats a value in [-1000,1000] with three decimals
func ftoa(v float32) string {
	neg := v < 0
	if neg {
		v = -v
	}
	milli := uint32(v*1000 + 0.5)
	frac := utoa(milli % 1000)
	for len(frac) < 3 {
		frac = "0" + frac
	}
	s := utoa(milli/1000) + "." + frac
	if neg {
		return "-" + s
	}
	return s
}
