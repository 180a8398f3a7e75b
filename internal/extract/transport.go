package extract

import (
	"regexp"
	"strings"
)

// Transport types.
const (
	TransportTrain   = "train"
	TransportPlane   = "plane"
	TransportShip    = "ship"
	TransportMetro   = "metro"
	TransportBus     = "bus"
	TransportTaxi    = "taxi"
	TransportCar     = "car"
	TransportUnknown = "unknown"
)

// TransportInfo summarizes the transportation lines of an invoice.
type TransportInfo struct {
	HasTransportItems    bool            `json:"hasTransportItems"`
	Items                []TransportItem `json:"items"`
	TotalTransportAmount float64         `json:"totalTransportAmount"`
}

// TransportItem is an invoice line tagged with its mode of transport.
type TransportItem struct {
	Description   string   `json:"description"`
	Amount        *float64 `json:"amount,omitempty"`
	Quantity      *float64 `json:"quantity,omitempty"`
	TransportType string   `json:"transportType"`
}

// keyword matches a description either by substring (CJK terms) or as a
// case-insensitive whole word (Latin terms).
type keyword struct {
	text string
	re   *regexp.Regexp
}

func newKeyword(text string) keyword {
	for _, r := range text {
		if r > 0x7f {
			return keyword{text: text}
		}
	}
	return keyword{text: text, re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(text) + `\b`)}
}

func (k keyword) match(s string) bool {
	if k.re != nil {
		return k.re.MatchString(s)
	}
	return strings.Contains(s, k.text)
}

func keywords(texts ...string) []keyword {
	out := make([]keyword, len(texts))
	for i, t := range texts {
		out[i] = newKeyword(t)
	}
	return out
}

// transportKeywords marks a line as transportation.
var transportKeywords = keywords(
	"車票", "機票", "船票", "火車", "高鐵", "台鐵", "捷運", "地鐵", "公車", "計程車",
	"交通費", "車資", "燃料費", "油費", "停車費", "過路費", "通行費",
	"航空", "飛機", "船舶", "渡輪", "巴士", "客運",
	"train", "railway", "rail", "flight", "airfare", "airline", "ferry", "ship", "boat",
	"metro", "subway", "mrt", "bus", "coach", "taxi", "cab", "uber",
	"fuel", "gasoline", "petrol", "parking", "toll", "fare", "transport", "transportation",
)

// transportTypes is ordered; the first matching keyword decides the type.
var transportTypes = []struct {
	kw   keyword
	mode string
}{
	{newKeyword("高鐵"), TransportTrain},
	{newKeyword("火車"), TransportTrain},
	{newKeyword("台鐵"), TransportTrain},
	{newKeyword("機票"), TransportPlane},
	{newKeyword("航空"), TransportPlane},
	{newKeyword("飛機"), TransportPlane},
	{newKeyword("船票"), TransportShip},
	{newKeyword("船舶"), TransportShip},
	{newKeyword("渡輪"), TransportShip},
	{newKeyword("捷運"), TransportMetro},
	{newKeyword("地鐵"), TransportMetro},
	{newKeyword("公車"), TransportBus},
	{newKeyword("巴士"), TransportBus},
	{newKeyword("客運"), TransportBus},
	{newKeyword("計程車"), TransportTaxi},
	{newKeyword("油費"), TransportCar},
	{newKeyword("燃料費"), TransportCar},
	{newKeyword("train"), TransportTrain},
	{newKeyword("railway"), TransportTrain},
	{newKeyword("rail"), TransportTrain},
	{newKeyword("flight"), TransportPlane},
	{newKeyword("airfare"), TransportPlane},
	{newKeyword("airline"), TransportPlane},
	{newKeyword("ferry"), TransportShip},
	{newKeyword("ship"), TransportShip},
	{newKeyword("boat"), TransportShip},
	{newKeyword("metro"), TransportMetro},
	{newKeyword("subway"), TransportMetro},
	{newKeyword("mrt"), TransportMetro},
	{newKeyword("bus"), TransportBus},
	{newKeyword("coach"), TransportBus},
	{newKeyword("taxi"), TransportTaxi},
	{newKeyword("cab"), TransportTaxi},
	{newKeyword("uber"), TransportTaxi},
	{newKeyword("fuel"), TransportCar},
	{newKeyword("gasoline"), TransportCar},
	{newKeyword("petrol"), TransportCar},
}

// IsTransport reports whether a description names a transportation expense.
func IsTransport(description string) bool {
	for _, k := range transportKeywords {
		if k.match(description) {
			return true
		}
	}
	return false
}

// IdentifyTransportType infers the mode of transport from a description.
func IdentifyTransportType(description string) string {
	for _, t := range transportTypes {
		if t.kw.match(description) {
			return t.mode
		}
	}
	return TransportUnknown
}

// ExtractTransportInfo collects the transportation lines of items. It returns
// nil, not an empty summary, when no line matches.
func ExtractTransportInfo(items []Item) *TransportInfo {
	var info *TransportInfo
	for _, it := range items {
		if !IsTransport(it.Description) {
			continue
		}
		if info == nil {
			info = &TransportInfo{HasTransportItems: true}
		}
		info.Items = append(info.Items, TransportItem{
			Description:   it.Description,
			Amount:        it.Amount,
			Quantity:      it.Quantity,
			TransportType: IdentifyTransportType(it.Description),
		})
		if it.Amount != nil {
			info.TotalTransportAmount += *it.Amount
		}
	}
	return info
}
