package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes decorates the nrgin transaction with the operator and
// dispatch being acted on, and reports handler errors. It must run after
// nrgin.Middleware and Auth; without a transaction it is a no-op.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if op := OperatorFrom(c); op.ID != "" {
			txn.AddAttribute("operator_id", op.ID)
			txn.AddAttribute("operator_role", op.Role)
		}

		c.Next()

		if id := c.Param("id"); id != "" {
			txn.AddAttribute("resource_id", id)
		}
		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
