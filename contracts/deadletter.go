package contracts

// Dead-letter reasons, matching the vocabulary brokers put in x-death
// records.
const (
	// ReasonExpired marks a message whose TTL elapsed before delivery.
	ReasonExpired = "expired"

	// ReasonMaxLen marks a message evicted by the drop-head overflow policy.
	ReasonMaxLen = "maxlen"

	// ReasonRejected marks a message nacked without requeue.
	ReasonRejected = "rejected"

	// ReasonDeliveryLimit marks a message that exhausted its redelivery
	// budget.
	ReasonDeliveryLimit = "delivery_limit"
)

// Headers stamped on messages routed through the dead-letter exchange.
const (
	HeaderFirstDeathQueue = "x-first-death-queue"
	HeaderDeathReason     = "x-death-reason"
	HeaderDeathCount      = "x-death-count"
	HeaderDeathTime       = "x-death-time"
)

// DeathCount extracts the dead-letter count from a header table. Missing or
// malformed values count as zero.
func DeathCount(headers map[string]interface{}) int {
	if headers == nil {
		return 0
	}
	switch v := headers[HeaderDeathCount].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
