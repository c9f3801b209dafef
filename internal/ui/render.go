package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/yourorg/predictpool-client/internal/model"
)

// Render writes the full view: header, epoch, timeline, round card, notice
// and the predictions table.
func Render(w io.Writer, s State) error {
	var b strings.Builder
	renderHeader(&b, s)
	renderEpoch(&b, s)
	renderTimeline(&b, s)
	renderRoundCard(&b, s)
	renderNotice(&b, s)
	if err := renderPredictions(&b, s); err != nil {
		return err
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderHistory writes only the summary line and the predictions table.
func RenderHistory(w io.Writer, s State) error {
	var b strings.Builder
	if err := renderPredictions(&b, s); err != nil {
		return err
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderHeader(b *strings.Builder, s State) {
	if s.Address == "" {
		b.WriteString("Wallet: not connected\n")
	} else {
		fmt.Fprintf(b, "Wallet: %s\n", s.Address)
	}
	if s.Balances != nil {
		fmt.Fprintf(b, "Balance: %s %s   Staked: %s %s\n",
			s.Balances.Native, s.Balances.NativeSymbol, s.Balances.Staked, s.Balances.StakedSymbol)
	}
	for _, h := range s.Health {
		if h.State != "healthy" {
			fmt.Fprintf(b, "[%s] %s", strings.ToUpper(h.State), h.Name)
			if h.LastError != "" {
				fmt.Fprintf(b, ": %s", h.LastError)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
}

func renderEpoch(b *strings.Builder, s State) {
	if s.Epoch == nil {
		b.WriteString("No current epoch\n")
	} else {
		fmt.Fprintf(b, "Epoch #%d", s.Epoch.ID)
		if s.Epoch.Status != "" {
			fmt.Fprintf(b, " (%s)", s.Epoch.Status)
		}
		b.WriteString("\n")
	}
	if s.Upcoming != nil {
		fmt.Fprintf(b, "Next epoch #%d: %s\n", s.Upcoming.ID, s.EpochCountdown)
	}
}

// renderTimeline lists the rounds in id order and marks the relevant one.
func renderTimeline(b *strings.Builder, s State) {
	if len(s.Rounds) == 0 {
		b.WriteString("No rounds\n\n")
		return
	}
	parts := make([]string, 0, len(s.Rounds))
	for _, r := range s.Rounds {
		item := fmt.Sprintf("#%d %s", r.ID, r.Status.Label())
		if s.Relevant != nil && r.ID == s.Relevant.ID {
			item = "[" + item + "]"
		}
		parts = append(parts, item)
	}
	fmt.Fprintf(b, "Rounds: %s\n\n", strings.Join(parts, " | "))
}

func renderRoundCard(b *strings.Builder, s State) {
	r := s.Relevant
	if r == nil {
		b.WriteString("No round in progress\n\n")
		return
	}

	fmt.Fprintf(b, "Round #%d  %s", r.ID, r.Status.Label())
	if r.CanPredict() {
		fmt.Fprintf(b, "  %ds left", s.RoundSecondsLeft)
	}
	b.WriteString("\n")

	fmt.Fprintf(b, "  Start price:   %s\n", formatPrice(r.StartingPrice))
	switch {
	case r.IsCompleted() && r.HasEndingPrice():
		fmt.Fprintf(b, "  End price:     %s\n", formatPrice(r.EndingPrice))
	case s.Quote != nil:
		fmt.Fprintf(b, "  Current price: %s", formatPrice(s.Quote.Price))
		if s.PriceChange != nil {
			fmt.Fprintf(b, " (%s)", formatPercent(*s.PriceChange))
		}
		b.WriteString("\n")
	}

	if p, ok := s.MyPrediction(); ok {
		fmt.Fprintf(b, "  Your prediction: %s\n", strings.ToUpper(string(p.Direction)))
	} else if s.Submitting {
		b.WriteString("  Submitting prediction...\n")
	} else if s.CanSubmit {
		b.WriteString("  Predict: [UP] [DOWN]\n")
	}
	b.WriteString("\n")
}

func renderNotice(b *strings.Builder, s State) {
	if s.Notice == nil {
		return
	}
	fmt.Fprintf(b, "! %s\n", s.Notice.Message)
	if s.Notice.Hint != "" {
		fmt.Fprintf(b, "  %s\n", s.Notice.Hint)
	}
	b.WriteString("\n")
}

// renderPredictions writes the history table. Price change and result are
// only filled in for completed rounds.
func renderPredictions(b *strings.Builder, s State) error {
	if s.Address == "" {
		return nil
	}
	if len(s.Predictions) == 0 {
		b.WriteString("No predictions yet\n")
		return nil
	}

	fmt.Fprintf(b, "Predictions: %d  Wins: %d  Losses: %d  Accuracy: %.1f%%\n",
		s.Summary.Total, s.Summary.Wins, s.Summary.Losses, s.Summary.Accuracy)

	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUND\tEPOCH\tDIRECTION\tSTART\tEND\tCHANGE\tRESULT")
	for _, p := range s.Predictions {
		end, change := "-", "-"
		if pct, ok := p.PriceChangePercent(); ok {
			end = formatPrice(p.EndingPrice)
			change = formatPercent(pct)
		}
		fmt.Fprintf(tw, "#%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			p.RoundID, p.EpochID, strings.ToUpper(string(p.Direction)),
			formatPrice(p.StartingPrice), end, change, resultLabel(p))
	}
	return tw.Flush()
}

func resultLabel(p model.PredictionWithDetails) string {
	if o := p.Outcome(); o != "" {
		return o
	}
	return p.RoundStatus.Label()
}

func formatPrice(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("$%.2f", v)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}
