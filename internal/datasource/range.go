package datasource

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange splits a block range into batches of size batchSize so a
// single eth_getLogs call never spans more blocks than the endpoint
// allows.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d precedes from block %d", to, from)
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; start += batchSize {
		end := start + batchSize - 1
		if end >= to || end < start {
			ranges = append(ranges, BlockRange{From: start, To: to})
			return ranges, nil
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
	}
}
