package mark5b

// crcPolynomial is the Mark 5B header CRC divisor,
// x^16 + x^15 + x^2 + 1.
const crcPolynomial = 0x18005

// crc16 runs a bit-serial cyclic redundancy check over the first 112
// header bits: words 0-2 and the top half of word 3, most significant bit
// first, followed by 16 zero bits. The remainder is the CRC.
func crc16(words []uint32) uint16 {
	var reg uint32
	feed := func(bit uint32) {
		reg = reg<<1 | bit
		if reg&0x10000 != 0 {
			reg ^= crcPolynomial
		}
	}
	for w := 0; w < 3; w++ {
		for i := 31; i >= 0; i-- {
			feed(words[w] >> i & 1)
		}
	}
	for i := 31; i >= 16; i-- {
		feed(words[3] >> i & 1)
	}
	for i := 0; i < 16; i++ {
		feed(0)
	}
	return uint16(reg)
}
