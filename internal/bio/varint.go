package bio

// WriteVarByte writes v in 7-bit groups, low group first. Every byte but the
// last has its high bit set.
func (w *Writer) WriteVarByte(v uint64) {
	for v > 0x7F {
		w.Write((v&0x7F)|0x80, 8)
		v >>= 7
	}
	w.Write(v, 8)
}

// ReadVarByte reads a value written by WriteVarByte.
func (r *Reader) ReadVarByte() uint64 {
	var v uint64
	for shift := uint(0); shift < 64; shift += 7 {
		b := r.Read(8)
		v |= (b & 0x7F) << shift
		if b&0x80 == 0 || r.err != nil {
			break
		}
	}
	return v
}

// WriteUnary writes v zero bits followed by a one bit.
func (w *Writer) WriteUnary(v uint32) {
	for v >= MaxBits {
		w.Write(0, MaxBits)
		v -= MaxBits
	}
	w.Write(0, int(v))
	w.Write(1, 1)
}

// ReadUnary counts zero bits up to the next one bit.
func (r *Reader) ReadUnary() uint32 {
	var v uint32
	for !r.ReadBit() {
		if r.err != nil {
			return v
		}
		v++
	}
	return v
}
