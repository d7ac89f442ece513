// Package codestream implements the IDX2 on-disk format: chunk addresses and
// keys, the chunk payload, the trailers at the end of every data file and
// the zstd framing of addresses and exponent chunks.
//
// All multi-byte integers are little-endian.
package codestream

// BitPlaneKeyBias is added to a real bit plane before it is divided by the
// number of bit planes per chunk, so that bit plane keys are non-negative.
const BitPlaneKeyBias = 1024

// ExponentBitPlane is the bit plane key of exponent chunks.
const ExponentBitPlane = -1024 + BitPlaneKeyBias

// Address packs a chunk or file address:
//
//	level:4 | brick>>shift:42 | subband:6 | bitplane:12
//
// The bit plane is stored in two's complement.
func Address(brick uint64, shift, level, subband, bitPlane int) uint64 {
	return uint64(level)<<60 +
		(brick>>uint(shift))<<18 +
		uint64(subband)<<12 +
		uint64(bitPlane)&0xFFF
}

// AddressParts are the fields of an unpacked address.
type AddressParts struct {
	Brick    uint64 // first brick covered by the address
	Level    int
	Subband  int
	BitPlane int
}

// UnpackAddress undoes Address. shift must be the one used to pack.
func UnpackAddress(addr uint64, shift int) AddressParts {
	return AddressParts{
		Brick:    ((addr >> 18) & 0x3FFFFFFFFFF) << uint(shift),
		Level:    int((addr >> 60) & 0xF),
		Subband:  int((addr >> 12) & 0x3F),
		BitPlane: int(int32(uint32(addr&0xFFF)<<20) >> 20),
	}
}

// BrickKey identifies a brick on a level.
func BrickKey(level int, brick uint64) uint64 {
	return brick<<4 + uint64(level)
}

// BrickFromKey returns the brick index of a brick key.
func BrickFromKey(key uint64) uint64 { return key >> 4 }

// LevelFromKey returns the level of a brick key.
func LevelFromKey(key uint64) int { return int(key & 0xF) }

// ChannelKey identifies the channel of a (bit plane key, level, subband).
// Keys sort by bit plane first.
func ChannelKey(bitPlane, level, subband int) uint32 {
	return uint32(bitPlane)<<16 + uint32(subband)<<4 + uint32(level)
}

// SplitChannelKey returns the bit plane key, level and subband of a key.
func SplitChannelKey(key uint32) (bitPlane, level, subband int) {
	return int(int16(key >> 16)), int(key & 0xF), int((key >> 4) & 0xFFF)
}
