package screener

import (
	"math"

	"github.com/bcdannyboy/optrisk/models"
)

// atmBand is the distance from spot, as a fraction, within which a strike
// counts as at the money.
const atmBand = 0.02

// ChainSummary is a set of chain-wide statistics shown alongside screening
// results.
type ChainSummary struct {
	Contracts       int                    `json:"contracts"`
	Expirations     int                    `json:"expirations"`
	TotalVolume     int64                  `json:"total_volume"`
	AverageIV       float64                `json:"average_iv"`
	IVSkew          float64                `json:"iv_skew"`
	PutCallRatio    float64                `json:"put_call_ratio"`
	AverageSpread   float64                `json:"average_spread"`
	AverageStrike   float64                `json:"average_strike"`
	ShortTermVolume int64                  `json:"short_term_volume"`
	ATMCall         *models.OptionContract `json:"atm_call,omitempty"`
	ATMPut          *models.OptionContract `json:"atm_put,omitempty"`
}

// Summarize computes chain-wide statistics. IV skew is mean put IV minus
// mean call IV; the average spread is the bid/ask width relative to the mid
// over quotes with a non-zero width. Short-term volume counts contracts with
// at most 30 days to expiry.
func Summarize(chain models.Chain, underlying float64) ChainSummary {
	var (
		s                       ChainSummary
		ivSum, putIV, callIV    float64
		spreadSum, strikeSum    float64
		ivCount, spreadCount    int
		putIVCount, callIVCount int
		putVolume, callVolume   int64
	)
	bestCallDist, bestPutDist := math.Inf(1), math.Inf(1)
	s.Expirations = len(chain)
	for _, exp := range chain.ExpirationDates() {
		for _, c := range chain[exp] {
			c := c
			s.Contracts++
			s.TotalVolume += c.Volume
			strikeSum += c.Strike
			if c.DaysToExpiry <= 30 {
				s.ShortTermVolume += c.Volume
			}
			if c.ImpliedVolatility > 0 {
				ivSum += c.ImpliedVolatility
				ivCount++
				if c.Type == models.Put {
					putIV += c.ImpliedVolatility
					putIVCount++
				} else {
					callIV += c.ImpliedVolatility
					callIVCount++
				}
			}
			if c.Type == models.Put {
				putVolume += c.Volume
			} else {
				callVolume += c.Volume
			}
			if mid := c.Mid(); c.Ask != c.Bid && mid > 0 {
				spreadSum += (c.Ask - c.Bid) / mid
				spreadCount++
			}
			if underlying > 0 {
				dist := math.Abs(c.Strike - underlying)
				if dist <= underlying*atmBand {
					if c.Type == models.Put && dist < bestPutDist {
						bestPutDist, s.ATMPut = dist, &c
					} else if c.Type == models.Call && dist < bestCallDist {
						bestCallDist, s.ATMCall = dist, &c
					}
				}
			}
		}
	}

	if ivCount > 0 {
		s.AverageIV = ivSum / float64(ivCount)
	}
	if putIVCount > 0 && callIVCount > 0 {
		s.IVSkew = putIV/float64(putIVCount) - callIV/float64(callIVCount)
	}
	if callVolume > 0 {
		s.PutCallRatio = float64(putVolume) / float64(callVolume)
	}
	if spreadCount > 0 {
		s.AverageSpread = spreadSum / float64(spreadCount)
	}
	if s.Contracts > 0 {
		s.AverageStrike = strikeSum / float64(s.Contracts)
	}
	return s
}
