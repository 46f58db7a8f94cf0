package monitor

type BlocksRange struct {
	From uint64
	To   uint64
}

// SplitBlockRange pages an inclusive block range into chunks of at most
// maxSize blocks, since RPC providers cap eth_getLogs range sizes.
func SplitBlockRange(fromBlock, toBlock, maxSize uint64) []*BlocksRange {
	batches := make([]*BlocksRange, 0, 10)
	for fromBlock <= toBlock {
		batchToBlock := fromBlock + maxSize - 1
		if batchToBlock > toBlock {
			batchToBlock = toBlock
		}
		batches = append(batches, &BlocksRange{
			From: fromBlock,
			To:   batchToBlock,
		})
		fromBlock += maxSize
	}
	return batches
}
