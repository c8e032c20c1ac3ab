// Package bitio reads and writes MSB-first bit fields and computes the
// MPEG-2 CRC32 shared by PSI and splice_info sections.
package bitio

// Reader reads bits MSB-first from a byte slice. Reads past the end set an
// overflow flag and yield zeros, so decoders can check once at the end.
type Reader struct {
	data     []byte
	bitPos   int
	overflow bool
}

// NewReader returns a Reader positioned at the first bit of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Overflow reports whether any read ran past the end of the data.
func (r *Reader) Overflow() bool { return r.overflow }

// BitsLeft returns the number of unread bits.
func (r *Reader) BitsLeft() int {
	total := len(r.data) * 8
	if r.bitPos > total {
		return 0
	}
	return total - r.bitPos
}

// ReadBit reads one bit.
func (r *Reader) ReadBit() bool {
	if r.bitPos >= len(r.data)*8 {
		r.overflow = true
		return false
	}
	b := r.data[r.bitPos/8] >> uint(7-r.bitPos%8)
	r.bitPos++
	return b&1 == 1
}

// ReadUint64 reads an n-bit unsigned field, n <= 64.
func (r *Reader) ReadUint64(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v <<= 1
		if r.ReadBit() {
			v |= 1
		}
	}
	return v
}

// ReadUint32 reads an n-bit unsigned field, n <= 32.
func (r *Reader) ReadUint32(n int) uint32 {
	return uint32(r.ReadUint64(n))
}

// ReadBytes reads n whole bytes. The result is always n bytes long.
func (r *Reader) ReadBytes(n int) []byte {
	out := make([]byte, n)
	if r.bitPos%8 == 0 && r.bitPos/8+n <= len(r.data) {
		copy(out, r.data[r.bitPos/8:])
		r.bitPos += 8 * n
		return out
	}
	for i := range out {
		out[i] = byte(r.ReadUint32(8))
	}
	return out
}

// Skip advances past n bits.
func (r *Reader) Skip(n int) {
	r.bitPos += n
	if r.bitPos > len(r.data)*8 {
		r.overflow = true
	}
}

// Writer appends bits MSB-first to a growing buffer.
type Writer struct {
	data   []byte
	bitPos int
}

// NewWriter returns a Writer with capacity for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{data: make([]byte, 0, size)}
}

// PutBit appends one bit.
func (w *Writer) PutBit(v bool) {
	if w.bitPos%8 == 0 {
		w.data = append(w.data, 0)
	}
	if v {
		w.data[w.bitPos/8] |= 1 << uint(7-w.bitPos%8)
	}
	w.bitPos++
}

// PutUint64 appends the low n bits of v.
func (w *Writer) PutUint64(n int, v uint64) {
	for i := n - 1; i >= 0; i-- {
		w.PutBit((v>>uint(i))&1 == 1)
	}
}

// PutUint32 appends the low n bits of v.
func (w *Writer) PutUint32(n int, v uint32) {
	w.PutUint64(n, uint64(v))
}

// PutBytes appends whole bytes.
func (w *Writer) PutBytes(b []byte) {
	if w.bitPos%8 == 0 {
		w.data = append(w.data, b...)
		w.bitPos += 8 * len(b)
		return
	}
	for _, v := range b {
		w.PutUint64(8, uint64(v))
	}
}

// Len returns the number of bytes started so far.
func (w *Writer) Len() int { return len(w.data) }

// Bytes returns the written bytes. A trailing partial byte is zero padded.
func (w *Writer) Bytes() []byte {
	return w.data
}
