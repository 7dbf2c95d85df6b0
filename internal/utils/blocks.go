package utils

// DefaultBlockSize is the number of items handed to a block processor at once.
const DefaultBlockSize = 200

// ProcessInBlocks calls fn with consecutive blocks of at most size items.
// The last block may be shorter. Processing stops at the first error.
func ProcessInBlocks[T any](items []T, size int, fn func(block []T) error) error {
	if size <= 0 {
		size = DefaultBlockSize
	}
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		if err := fn(items[start:end]); err != nil {
			return err
		}
	}
	return nil
}
