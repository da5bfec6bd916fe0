// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// tickerRegex matches exchange symbols such as RELIANCE, M&M, BAJAJ-AUTO or BRK.B.
var tickerRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9&.\-]{0,19}$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("ticker", validateTicker)
		_ = v.RegisterValidation("order_side", validateOrderSide)
		_ = v.RegisterValidation("order_type", validateOrderType)
		_ = v.RegisterValidation("order_status", validateOrderStatus)
	}
}

// NormalizeTicker upper-cases and trims a symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IsTicker reports whether s is a well-formed, already normalized symbol.
func IsTicker(s string) bool {
	return tickerRegex.MatchString(s)
}

func validateTicker(fl validator.FieldLevel) bool {
	return IsTicker(NormalizeTicker(fl.Field().String()))
}

func validateOrderSide(fl validator.FieldLevel) bool {
	switch strings.ToUpper(fl.Field().String()) {
	case "BUY", "SELL":
		return true
	}
	return false
}

func validateOrderType(fl validator.FieldLevel) bool {
	switch strings.ToUpper(fl.Field().String()) {
	case "MARKET", "LIMIT", "STOP_LOSS":
		return true
	}
	return false
}

func validateOrderStatus(fl validator.FieldLevel) bool {
	switch strings.ToUpper(fl.Field().String()) {
	case "PENDING", "EXECUTED", "REJECTED", "CANCELLED":
		return true
	}
	return false
}
