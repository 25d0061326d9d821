package avr109

// Chunk is a contiguous slice of a flash image programmed by one block write.
type Chunk struct {
	Offset int
	Data   []byte
}

// Chunks splits data into consecutive chunks of at most size bytes, capped
// at MaxBlockSize. Only the last chunk may be shorter. The chunks alias data.
func Chunks(data []byte, size int) []Chunk {
	if size <= 0 || len(data) == 0 {
		return nil
	}
	size = min(size, MaxBlockSize)

	out := make([]Chunk, 0, (len(data)+size-1)/size)
	for off := 0; off < len(data); off += size {
		end := min(off+size, len(data))
		out = append(out, Chunk{Offset: off, Data: data[off:end]})
	}
	return out
}
