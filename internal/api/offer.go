package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

type discountResponse struct {
	DiscountApplied *decimal.Decimal `json:"discountApplied"`
	FinalPrice      *decimal.Decimal `json:"finalPrice"`
}

// ApplyDiscount asks the offer service for the discount of one category.
// The server answers with either the discount or the discounted price; the
// latter is converted back into a discount. The result is never negative.
func (c *Client) ApplyDiscount(ctx context.Context, categoryID int64, quantity int, totalPrice decimal.Decimal) (decimal.Decimal, error) {
	query := url.Values{
		"categoryId": []string{strconv.FormatInt(categoryID, 10)},
		"quantity":   []string{strconv.Itoa(quantity)},
		"totalPrice": []string{totalPrice.String()},
	}

	var resp discountResponse
	if err := c.do(ctx, "offer.apply_discount", http.MethodGet, "/Offer/apply-discount", query, nil, &resp); err != nil {
		return decimal.Zero, err
	}

	discount := decimal.Zero
	switch {
	case resp.DiscountApplied != nil:
		discount = *resp.DiscountApplied
	case resp.FinalPrice != nil:
		discount = totalPrice.Sub(*resp.FinalPrice)
	}
	if discount.IsNegative() {
		return decimal.Zero, nil
	}
	return discount, nil
}
