package key

// Position is a (key, line_index, byte_offset) triple: the position just
// past the line at LineIndex ending at ByteOffset, carrying the Key read at
// that line. It is the shared output record of C4 (key-position sampler)
// and C5 (key-position finder), and the element type the multi-table
// indexer (C10) stitches across tables.
type Position struct {
	Key        Key
	LineIndex  int64
	ByteOffset int64
}
