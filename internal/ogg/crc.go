package ogg

// crcTable is the MSB-first CRC-32 table for polynomial 0x04C11DB7.
// hash/crc32 only implements the reflected variant, which Ogg does not use.
var crcTable = func() [256]uint32 {
	var t [256]uint32
	for i := range t {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		t[i] = r
	}
	return t
}()

// crcUpdate folds data into crc. Ogg starts from 0 with no final xor.
func crcUpdate(crc uint32, data []byte) uint32 {
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// Checksum computes the Ogg CRC of data.
func Checksum(data []byte) uint32 {
	return crcUpdate(0, data)
}

// PageChecksum computes the CRC of a serialized page, treating the CRC
// field as zero whatever it currently holds.
func PageChecksum(page []byte) uint32 {
	if len(page) < headerSize {
		return Checksum(page)
	}
	var zero [4]byte
	crc := crcUpdate(0, page[:crcOffset])
	crc = crcUpdate(crc, zero[:])
	return crcUpdate(crc, page[crcOffset+4:])
}
