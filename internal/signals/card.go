package signals

import (
	"fmt"

	"autotrade-console/internal/models"
	"autotrade-console/pkg/utils"
)

// Card is the display form of one signal.
type Card struct {
	Ticker     string
	Badge      string
	Price      string
	Entry      string
	StopLoss   string
	Target1    string
	Target2    string
	Confidence string
	RiskReward string
}

// NewCard builds the card for sig.
func NewCard(sig models.Signal) Card {
	return Card{
		Ticker:     sig.Ticker,
		Badge:      string(sig.Signal),
		Price:      utils.FormatIndianCurrency(sig.CurrentPrice),
		Entry:      utils.FormatIndianCurrency(sig.EntryLevel),
		StopLoss:   utils.FormatIndianCurrency(sig.StopLoss),
		Target1:    utils.FormatIndianCurrency(sig.Target1),
		Target2:    utils.FormatIndianCurrency(sig.Target2),
		Confidence: fmt.Sprintf("%d%%", sig.ConfidencePercent()),
		RiskReward: models.FormatRiskReward(sig.RiskReward()),
	}
}

// Cards builds a card per valid signal of r.
func (r Result) Cards() []Card {
	cards := make([]Card, len(r.Valid))
	for i, sig := range r.Valid {
		cards[i] = NewCard(sig)
	}
	return cards
}
