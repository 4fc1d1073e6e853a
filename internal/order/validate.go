package order

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report wire-facing names (qty, tt, price) rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	v.RegisterStructValidation(priceRules, model.OrderRequest{})
	return v
}

// priceRules enforces the price combinations per order type. Unknown order
// types only get the positivity checks.
func priceRules(sl validator.StructLevel) {
	req := sl.Current().Interface().(model.OrderRequest)

	if req.LimitPrice != nil && !req.LimitPrice.IsPositive() {
		sl.ReportError(req.LimitPrice, "price", "LimitPrice", "positive", "")
	}
	if req.TriggerPrice != nil && !req.TriggerPrice.IsPositive() {
		sl.ReportError(req.TriggerPrice, "trigger", "TriggerPrice", "positive", "")
	}

	switch req.OrderType {
	case model.OrderTypeLimit, model.OrderTypeStopLoss:
		if req.LimitPrice == nil {
			sl.ReportError(req.LimitPrice, "price", "LimitPrice", "required_for_"+req.OrderType, "")
		}
	case model.OrderTypeStopLossMarket:
		if req.LimitPrice == nil && req.TriggerPrice == nil {
			sl.ReportError(req.TriggerPrice, "trigger", "TriggerPrice", "required_for_"+req.OrderType, "")
		}
	}
}

// Validate checks an already normalized request. It fails closed: any
// combination it cannot vouch for is an error.
func (e *Engine) Validate(req model.OrderRequest) error {
	err := e.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.New(apperrors.ErrValidation, "invalid order", err).WithPhase(apperrors.PhasePlaceOrder)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return apperrors.NewValidation(strings.Join(msgs, "; ")).WithPhase(apperrors.PhasePlaceOrder)
}

func describe(fe validator.FieldError) string {
	switch {
	case fe.Tag() == "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case fe.Tag() == "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case fe.Tag() == "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", fe.Field(), fe.Param(), fe.Value())
	case fe.Tag() == "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case fe.Tag() == "positive":
		return fmt.Sprintf("%s must be positive", fe.Field())
	case strings.HasPrefix(fe.Tag(), "required_for_"):
		return fmt.Sprintf("%s is required for %s orders", fe.Field(), strings.TrimPrefix(fe.Tag(), "required_for_"))
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
