package tradier

import (
	"bytes"

	"github.com/xhhuango/json"
)

// oneOrMany decodes Tradier's collections, which are a bare object when they
// hold a single element and null when empty.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}
	if data[0] == '[' {
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*o = []T{one}
	return nil
}

type Day struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type QuoteHistory struct {
	History *struct {
		Day oneOrMany[Day] `json:"day"`
	} `json:"history"`
}

type Quote struct {
	Symbol string   `json:"symbol"`
	Last   *float64 `json:"last"`
	Bid    float64  `json:"bid"`
	Ask    float64  `json:"ask"`
	Volume int64    `json:"volume"`
}

type Quotes struct {
	Quotes struct {
		Quote     oneOrMany[Quote] `json:"quote"`
		Unmatched interface{}      `json:"unmatched_symbols"`
	} `json:"quotes"`
}

type OptionExpirations struct {
	Expirations *struct {
		Date oneOrMany[string] `json:"date"`
	} `json:"expirations"`
}

type Option struct {
	Symbol         string   `json:"symbol"`
	Underlying     string   `json:"underlying"`
	Strike         float64  `json:"strike"`
	Last           *float64 `json:"last"`
	Bid            float64  `json:"bid"`
	Ask            float64  `json:"ask"`
	Volume         int64    `json:"volume"`
	OpenInterest   int64    `json:"open_interest"`
	ExpirationDate string   `json:"expiration_date"`
	OptionType     string   `json:"option_type"`
	Greeks         *struct {
		Delta  float64 `json:"delta"`
		Gamma  float64 `json:"gamma"`
		Theta  float64 `json:"theta"`
		Vega   float64 `json:"vega"`
		BidIv  float64 `json:"bid_iv"`
		MidIv  float64 `json:"mid_iv"`
		AskIv  float64 `json:"ask_iv"`
		SmvVol float64 `json:"smv_vol"`
	} `json:"greeks"`
}

type OptionChain struct {
	Options *struct {
		Option oneOrMany[Option] `json:"option"`
	} `json:"options"`
}
