package mark5b

import "fmt"

// bcdEncode packs a decimal value into binary-coded-decimal nibbles.
func bcdEncode(v uint32) uint32 {
	var out, shift uint32
	for v > 0 {
		out |= (v % 10) << shift
		v /= 10
		shift += 4
	}
	return out
}

// bcdDecode unpacks binary-coded-decimal nibbles; a nibble above 9 is a
// corrupt field.
func bcdDecode(v uint32) (uint32, error) {
	var out, factor uint32 = 0, 1
	for rest := v; rest > 0; rest >>= 4 {
		digit := rest & 0xf
		if digit > 9 {
			return 0, fmt.Errorf("mark5b: invalid BCD value %#x", v)
		}
		out += digit * factor
		factor *= 10
	}
	return out, nil
}
