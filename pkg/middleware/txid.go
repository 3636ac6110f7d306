package middleware

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderTransactionID is set on every response that passes through the
	// transaction middleware.
	HeaderTransactionID = "X-Transaction-ID"

	headerRequestID = "X-Request-ID"

	contextTransactionID = "opscribe_transaction_id"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// ResolveTransactionID returns the correlation identifier for the current
// request. Resolution order: already-resolved value, inbound
// x-transaction-id, inbound x-request-id, freshly generated. The resolved
// value is written to the X-Transaction-ID response header at resolution
// time, so the header is present on error paths too. Calling this more than
// once in a request returns the same value.
func ResolveTransactionID(c *gin.Context) string {
	if v, ok := c.Get(contextTransactionID); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}

	id := strings.TrimSpace(c.GetHeader(HeaderTransactionID))
	if id == "" {
		id = strings.TrimSpace(c.GetHeader(headerRequestID))
	}
	if id == "" {
		id = generateTransactionID()
	}

	c.Set(contextTransactionID, id)
	c.Header(HeaderTransactionID, id)
	return id
}

func generateTransactionID() string {
	return fmt.Sprintf("tx_%d_%s", time.Now().UnixMilli(), randomBase36(8))
}

func randomBase36(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36Alphabet[rand.Intn(len(base36Alphabet))]
	}
	return string(b)
}
