package orders

const (
	TopicOrderPlaced             = "order.placed"
	TopicStockCompensationFailed = "order.stock.compensation_failed"
)

// Partition key = booking id, supaya semua event 1 order maintain urutan.
func PartitionKey(bookingID string) []byte { return []byte(bookingID) }
