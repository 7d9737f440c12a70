package domain

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Exchanges charge roughly this much on a market sell; holdings are shown
// as what the user would actually pocket.
const sellFeePercent = 3

var sellFeeFactor = decimal.NewFromInt(100 - sellFeePercent).Div(hundred)

// HoldingsValue is the sell value of amount coins at price, after fees.
func HoldingsValue(amount, price decimal.Decimal) decimal.Decimal {
	return amount.Mul(price).Mul(sellFeeFactor)
}

// FormatPrice renders a decimal with thousands separators and two decimals.
func FormatPrice(d decimal.Decimal) string {
	f, _ := d.Float64()
	return humanize.CommafWithDigits(f, 2)
}

// SignedPercent renders a delta like "+6.00" or "-1.89".
func SignedPercent(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if d.Sign() >= 0 {
		return "+" + s
	}
	return s
}

// AlertMessage builds the HTML notification text for a triggered threshold:
// direction, new price, percentage change, and the user's position if known.
func AlertMessage(coin Coin, s UserSetting, current decimal.Decimal, ev Evaluation) string {
	arrow := "📈"
	if !ev.Rising {
		arrow = "📉"
	}
	cur := strings.ToUpper(coin.Currency)

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>: %s %s (%s%%)",
		arrow, coin.Name, FormatPrice(current), cur, SignedPercent(ev.DeltaPercent))
	appendPosition(&b, s, current, cur)
	return b.String()
}

// InfoMessage builds the HTML text for an on-demand status request.
func InfoMessage(coin Coin, s UserSetting, current decimal.Decimal) string {
	cur := strings.ToUpper(coin.Currency)

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>: %s %s", coin.Name, FormatPrice(current), cur)
	fmt.Fprintf(&b, "\n<b>Alert threshold</b>: %s%%", s.ThresholdPercent.String())
	if s.OwnedAmount.IsPositive() {
		fmt.Fprintf(&b, "\n<b>Coins</b>: %s", s.OwnedAmount.String())
	} else {
		b.WriteString("\n<b>Coins</b>: not set")
	}
	appendPosition(&b, s, current, cur)
	return b.String()
}

// appendPosition adds holdings value and, when an invested amount is known,
// the profit against it.
func appendPosition(b *strings.Builder, s UserSetting, price decimal.Decimal, cur string) {
	if !s.OwnedAmount.IsPositive() {
		return
	}
	value := HoldingsValue(s.OwnedAmount, price)
	fmt.Fprintf(b, "\n<b>Holdings</b>: %s %s", FormatPrice(value), cur)

	if !s.InvestedAmount.IsPositive() {
		return
	}
	profit := value.Sub(s.InvestedAmount)
	profitPct := profit.Div(s.InvestedAmount).Mul(hundred)
	fmt.Fprintf(b, "\n<b>Invested</b>: %s %s", FormatPrice(s.InvestedAmount), cur)
	fmt.Fprintf(b, "\n<b>Profit</b>: %s %s (%s%%)",
		FormatPrice(profit), cur, SignedPercent(profitPct))
}
