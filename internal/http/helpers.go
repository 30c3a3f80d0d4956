package http

import (
	"fmt"
	"html/template"
	"net/http"
	"regexp"
	"strings"
	"time"

	"profitdash/internal/analytics"
	"profitdash/internal/auth"
	"profitdash/internal/core"
)

const (
	tabDashboard = "dashboard"
	tabProfit    = "profit"
	tabChatbot   = "chatbot"
)

type tab struct {
	Name  string
	Label string
}

// tabs are the dashboard navigation entries, in display order. The last two
// are integration providers.
var tabs = []tab{
	{Name: tabDashboard, Label: "Dashboard"},
	{Name: tabProfit, Label: "Profit Analysis"},
	{Name: tabChatbot, Label: "AI Assistant"},
	{Name: "amazon", Label: "Amazon"},
	{Name: "shopify", Label: "Shopify"},
}

func knownTab(name string) bool {
	for _, t := range tabs {
		if t.Name == name {
			return true
		}
	}
	return false
}

// page is the root value every full-page template receives.
type page struct {
	Title string
	User  *core.User
	Tab   string
	Tabs  []tab
	Data  any
}

// chartItem is one bar or legend row drawn by the templates.
type chartItem struct {
	Label   string
	Title   string
	Color   string
	Width   float64
	Display string
	Share   float64
}

// chartItems lays out slices as bars scaled to the largest value, with each
// slice's share of the total for legends.
func chartItems(parts []analytics.Slice) []chartItem {
	widths := analytics.Scale(parts)
	shares := analytics.Share(parts)
	out := make([]chartItem, len(parts))
	for i, p := range parts {
		out[i] = chartItem{
			Label:   p.Name,
			Title:   p.Name,
			Color:   p.Color,
			Width:   widths[i],
			Display: core.FormatUSD(p.Value),
			Share:   shares[i],
		}
	}
	return out
}

// profitBars draws the profit of each product; losses are shown in red.
func profitBars(series []analytics.SeriesPoint) []chartItem {
	parts := make([]analytics.Slice, len(series))
	for i, p := range series {
		color := analytics.ColorProfit
		if p.Profit < 0 {
			color = analytics.ColorExpense
		}
		parts[i] = analytics.Slice{Name: p.Name, Value: p.Profit, Color: color}
	}
	items := chartItems(parts)
	for i := range items {
		items[i].Title = series[i].FullName
	}
	return items
}

func currentUser(r *http.Request) core.User {
	u, _ := auth.UserFromContext(r.Context())
	return u
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the caller is the JSON API rather than a browser.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

var cssColor = regexp.MustCompile(`^#[0-9A-Fa-f]{3,8}$`)

func safeColor(c string) string {
	if cssColor.MatchString(c) {
		return c
	}
	return "#9CA3AF"
}

var fieldLabels = map[string]string{
	"api_key":      "API Key",
	"secret_key":   "Secret Key",
	"shop_domain":  "Shop Domain",
	"access_token": "Access Token",
}

func fieldLabel(name string) string {
	if l, ok := fieldLabels[name]; ok {
		return l
	}
	return strings.ReplaceAll(name, "_", " ")
}

func signClass(v float64) string {
	switch {
	case v > 0:
		return "positive"
	case v < 0:
		return "negative"
	default:
		return ""
	}
}

// templateFuncs are available to every template.
var templateFuncs = template.FuncMap{
	"usd":     core.FormatUSD,
	"percent": core.FormatPercent,
	"number":  core.FormatNumber,
	"float":   func(n int) float64 { return float64(n) },
	"join":    strings.Join,
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("Jan 2, 2006 15:04")
	},
	"clock":     func(t time.Time) string { return t.Local().Format("15:04") },
	"signClass": signClass,
	"barStyle": func(color string, width float64) template.CSS {
		return template.CSS(fmt.Sprintf("width: %.1f%%; background: %s", width, safeColor(color)))
	},
	"swatch": func(color string) template.CSS {
		return template.CSS("background: " + safeColor(color))
	},
	"fieldLabel": fieldLabel,
}
