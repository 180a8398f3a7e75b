package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func num(f float64) *float64 { return &f }

func TestParseReplyList(t *testing.T) {
	reply := "好的，以下是結果：\n```json\n[{\"invoice_number\":\"AB123\",\"total_amount\":500,\"items\":[]}]\n```\n謝謝"

	inv, err := ParseReply(reply)
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, "AB123", inv.InvoiceNumber)
	require.NotNil(t, inv.TotalAmount)
	assert.Equal(t, 500.0, *inv.TotalAmount)
	assert.Empty(t, inv.Items)
	assert.Nil(t, inv.TransportInfo)
}

func TestParseReplyNoBlock(t *testing.T) {
	inv, err := ParseReply("I could not read this document.")
	assert.NoError(t, err)
	assert.Nil(t, inv)
}

func TestParseReplyEmptyListAndNull(t *testing.T) {
	for _, reply := range []string{"```json\n[]\n```", "```json null ```"} {
		inv, err := ParseReply(reply)
		assert.NoError(t, err)
		assert.Nil(t, inv)
	}
}

func TestParseReplyMalformed(t *testing.T) {
	_, err := ParseReply("```json\n{\"invoice_number\": \n```")
	assert.Error(t, err)

	_, err = ParseReply("```json\n\"just a string\"\n```")
	assert.Error(t, err)
}

func TestParseReplyMapsFields(t *testing.T) {
	reply := "```json\n" + `{
		"invoice_number": "ZX-99",
		"date": "2024-05-01",
		"unified_business_number": {"seller": "12345678", "buyer": 87654321},
		"total_amount": "1,980",
		"items": [
			{"description": "高鐵票 台北-左營", "quantity": 1, "unit_price": "1490", "amount": 1490},
			{"description": "Taxi to airport", "quantity": "1", "amount": "490"},
			{"description": "便當"}
		]
	}` + "\n```"

	inv, err := ParseReply(reply)
	require.NoError(t, err)

	assert.Equal(t, "ZX-99", inv.InvoiceNumber)
	assert.Equal(t, "2024-05-01", inv.Date)
	assert.Equal(t, "12345678", inv.SellerTaxID)
	assert.Equal(t, "87654321", inv.BuyerTaxID)
	assert.Equal(t, num(1980), inv.TotalAmount)
	require.Len(t, inv.Items, 3)
	assert.Equal(t, num(1490), inv.Items[0].UnitPrice)
	assert.Nil(t, inv.Items[2].Amount)

	require.NotNil(t, inv.TransportInfo)
	assert.Equal(t, 1980.0, inv.TransportInfo.TotalTransportAmount)
	assert.Equal(t, TransportTrain, inv.TransportInfo.Items[0].TransportType)
	assert.Equal(t, TransportTaxi, inv.TransportInfo.Items[1].TransportType)
}

func TestParseReplyMissingFieldsOmitted(t *testing.T) {
	inv, err := ParseReply("```json\n{\"date\":\"2024-01-01\"}\n```")
	require.NoError(t, err)

	out, err := json.Marshal(inv)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-01-01","items":[],"transportInfo":null}`, string(out))
}

func TestExtractTransportInfo(t *testing.T) {
	items := []Item{
		{Description: "高鐵票", Amount: num(1500)},
		{Description: "午餐", Amount: num(200)},
	}

	info := ExtractTransportInfo(items)
	require.NotNil(t, info)
	assert.True(t, info.HasTransportItems)
	require.Len(t, info.Items, 1)
	assert.Equal(t, "高鐵票", info.Items[0].Description)
	assert.Equal(t, TransportTrain, info.Items[0].TransportType)
	assert.Equal(t, 1500.0, info.TotalTransportAmount)
}

func TestExtractTransportInfoNone(t *testing.T) {
	assert.Nil(t, ExtractTransportInfo([]Item{{Description: "午餐", Amount: num(200)}}))
	assert.Nil(t, ExtractTransportInfo(nil))
}

func TestIdentifyTransportType(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"台鐵自強號", TransportTrain},
		{"長榮航空 機票", TransportPlane},
		{"渡輪船票", TransportShip},
		{"捷運儲值", TransportMetro},
		{"國光客運", TransportBus},
		{"計程車費", TransportTaxi},
		{"加油 油費", TransportCar},
		{"停車費", TransportUnknown},
		{"City BUS pass", TransportBus},
		{"Airline ticket", TransportPlane},
		{"Business lunch", TransportUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			assert.Equal(t, tt.want, IdentifyTransportType(tt.description))
		})
	}
}

func TestIsTransportWordBoundary(t *testing.T) {
	assert.True(t, IsTransport("Parking fee"))
	assert.False(t, IsTransport("Business lunch"))
	assert.False(t, IsTransport("Cabinet hinges"))
}
