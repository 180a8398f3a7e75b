// Package extract turns the chatbot's free-text reply into structured invoice data.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var jsonBlockPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// Invoice is the structured invoice record.
type Invoice struct {
	InvoiceNumber string         `json:"invoiceNumber,omitempty"`
	Date          string         `json:"date,omitempty"`
	SellerTaxID   string         `json:"sellerTaxId,omitempty"`
	BuyerTaxID    string         `json:"buyerTaxId,omitempty"`
	TotalAmount   *float64       `json:"totalAmount,omitempty"`
	Items         []Item         `json:"items"`
	TransportInfo *TransportInfo `json:"transportInfo"`
}

// Item is one invoice line.
type Item struct {
	Description string   `json:"description,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unitPrice,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
}

// rawInvoice mirrors the provider's field names. Values are kept raw because
// the chatbot writes numbers as strings as often as not.
type rawInvoice struct {
	InvoiceNumber         json.RawMessage `json:"invoice_number"`
	Date                  json.RawMessage `json:"date"`
	UnifiedBusinessNumber json.RawMessage `json:"unified_business_number"`
	TotalAmount           json.RawMessage `json:"total_amount"`
	Items                 json.RawMessage `json:"items"`
}

type rawTaxIDs struct {
	Seller json.RawMessage `json:"seller"`
	Buyer  json.RawMessage `json:"buyer"`
}

type rawItem struct {
	Description json.RawMessage `json:"description"`
	Quantity    json.RawMessage `json:"quantity"`
	UnitPrice   json.RawMessage `json:"unit_price"`
	Amount      json.RawMessage `json:"amount"`
}

// FindJSONBlock returns the body of the first ```json fenced block in content.
func FindJSONBlock(content string) (string, bool) {
	m := jsonBlockPattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseReply extracts the invoice from a reply. A reply without a json block,
// or whose block is null or an empty list, yields (nil, nil). Malformed JSON
// is an error.
func ParseReply(content string) (*Invoice, error) {
	block, ok := FindJSONBlock(content)
	if !ok {
		return nil, nil
	}

	var top json.RawMessage
	if err := json.Unmarshal([]byte(block), &top); err != nil {
		return nil, fmt.Errorf("failed to parse json block: %w", err)
	}

	record := bytes.TrimSpace(top)
	if len(record) > 0 && record[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(record, &list); err != nil {
			return nil, fmt.Errorf("failed to parse json list: %w", err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		record = bytes.TrimSpace(list[0])
	}
	if string(record) == "null" {
		return nil, nil
	}

	var raw rawInvoice
	if err := json.Unmarshal(record, &raw); err != nil {
		return nil, fmt.Errorf("invoice record is not an object: %w", err)
	}
	return raw.toInvoice(), nil
}

func (r *rawInvoice) toInvoice() *Invoice {
	inv := &Invoice{
		InvoiceNumber: toString(r.InvoiceNumber),
		Date:          toString(r.Date),
		TotalAmount:   toNumber(r.TotalAmount),
		Items:         []Item{},
	}

	var ids rawTaxIDs
	if json.Unmarshal(r.UnifiedBusinessNumber, &ids) == nil {
		inv.SellerTaxID = toString(ids.Seller)
		inv.BuyerTaxID = toString(ids.Buyer)
	}

	var items []rawItem
	if json.Unmarshal(r.Items, &items) == nil {
		for _, it := range items {
			inv.Items = append(inv.Items, Item{
				Description: toString(it.Description),
				Quantity:    toNumber(it.Quantity),
				UnitPrice:   toNumber(it.UnitPrice),
				Amount:      toNumber(it.Amount),
			})
		}
	}

	inv.TransportInfo = ExtractTransportInfo(inv.Items)
	return inv
}

// toString accepts a JSON string or number. Anything else is treated as absent.
func toString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// toNumber accepts a JSON number or a numeric string such as "1,580".
// Anything else is treated as absent.
func toNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return &f
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return nil
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
