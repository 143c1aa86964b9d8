package catalog

import (
	"math"

	"landplots/internal/types"
)

// Summary aggregates a set of parcels for the report header and the shell.
type Summary struct {
	Count               int     `json:"count"`
	TotalArea           float64 `json:"totalArea"`
	TotalValue          float64 `json:"totalValue"`
	TotalRentIncome     float64 `json:"totalRentIncome"`
	MeanProfitability   float64 `json:"meanProfitability"`
	StdDevProfitability float64 `json:"stdDevProfitability"`
}

// Summarize computes a Summary over parcels.
func Summarize(parcels []types.Parcel) Summary {
	s := Summary{Count: len(parcels)}
	if len(parcels) == 0 {
		return s
	}
	yields := make([]float64, len(parcels))
	for i, p := range parcels {
		s.TotalArea += p.Area
		s.TotalValue += p.Value
		s.TotalRentIncome += p.RentIncome
		yields[i] = p.Profitability()
	}
	s.MeanProfitability, s.StdDevProfitability = meanStd(yields)
	return s
}

func meanStd(vals []float64) (mean, std float64) {
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(vals)))
	return
}
