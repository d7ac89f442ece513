package volume

// spread3 moves bit i of v to bit 3i.
func spread3(v uint32) uint32 {
	v &= 0x3FF
	v = (v | v<<16) & 0x030000FF
	v = (v | v<<8) & 0x0300F00F
	v = (v | v<<4) & 0x030C30C3
	v = (v | v<<2) & 0x09249249
	return v
}

// compact3 is the inverse of spread3.
func compact3(v uint32) uint32 {
	v &= 0x09249249
	v = (v ^ v>>2) & 0x030C30C3
	v = (v ^ v>>4) & 0x0300F00F
	v = (v ^ v>>8) & 0x030000FF
	v = (v ^ v>>16) & 0x3FF
	return v
}

// EncodeMorton3 interleaves the low 10 bits of every component, X lowest.
func EncodeMorton3(p V3) uint32 {
	return spread3(uint32(p[0])) | spread3(uint32(p[1]))<<1 | spread3(uint32(p[2]))<<2
}

// DecodeMorton3 is the inverse of EncodeMorton3.
func DecodeMorton3(m uint32) V3 {
	return V3{int(compact3(m)), int(compact3(m >> 1)), int(compact3(m >> 2))}
}
