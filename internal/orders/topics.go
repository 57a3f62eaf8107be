package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderCancelled = "order.cancelled"
	TopicStockLow       = "inventory.stock.low"
	TopicStockAdjusted  = "inventory.stock.adjusted"
)

// Partition key = order_id (or product_id for stock topics) so events for
// one entity keep their order.
func PartitionKey(id string) []byte { return []byte(id) }
