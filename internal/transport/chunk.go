package transport

// Chunk is one fixed-size slice of the payload; only the last may be shorter.
type Chunk struct {
	Index   uint64
	Payload []byte
}

// ChunkCount is ceil(n/chunkSize). Empty input has no chunks.
func ChunkCount(n, chunkSize int) int {
	if n <= 0 || chunkSize <= 0 {
		return 0
	}
	return (n + chunkSize - 1) / chunkSize
}

// Split slices payload into indexed chunks. Chunks alias payload.
func Split(payload []byte, chunkSize int) []Chunk {
	count := ChunkCount(len(payload), chunkSize)
	out := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(payload))
		out = append(out, Chunk{Index: uint64(i), Payload: payload[start:end]})
	}
	return out
}
