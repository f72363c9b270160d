// SPDX-License-Identifier: MIT

package report

import (
	"bytes"
	"fmt"
	"html/template"
	"math/rand/v2"
	"slices"
	"sort"

	"github.com/tallsorts/tallsorts/internal/model"
)

type point struct {
	X, Y  float64
	Title string
}

type line struct{ X1, Y1, X2, Y2 float64 }

type bar struct {
	X, Y, W, H  float64
	Fill, Title string
}

type tick struct {
	X, Y   float64
	Text   string
	Rotate bool
}

type legendItem struct {
	X, Y       float64
	Fill, Text string
}

type figure struct {
	Width, Height  int
	Title          string
	XTitle, YTitle string
	XTitleX        float64
	XTitleY        float64
	YTitleX        float64
	YTitleY        float64
	Axis           line
	Baseline       line
	Points         []point
	Bars           []bar
	Lines          []line
	XTicks, YTicks []tick
	LegendTitle    string
	LegendX        float64
	LegendY        float64
	Legend         []legendItem
}

var svgTemplate = template.Must(template.New("svg").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}" viewBox="0 0 {{.Width}} {{.Height}}" font-family="sans-serif" font-size="12">
<rect width="100%" height="100%" fill="#ffffff"/>
<text x="{{printf "%.0f" .XTitleX}}" y="24" text-anchor="middle" font-size="16">{{.Title}}</text>
<line x1="{{printf "%.2f" .Axis.X1}}" y1="{{printf "%.2f" .Axis.Y1}}" x2="{{printf "%.2f" .Axis.X2}}" y2="{{printf "%.2f" .Axis.Y2}}" stroke="#444444"/>
<line x1="{{printf "%.2f" .Baseline.X1}}" y1="{{printf "%.2f" .Baseline.Y1}}" x2="{{printf "%.2f" .Baseline.X2}}" y2="{{printf "%.2f" .Baseline.Y2}}" stroke="#444444"/>
{{range .YTicks}}<text x="{{printf "%.2f" .X}}" y="{{printf "%.2f" .Y}}" text-anchor="end" dominant-baseline="middle">{{.Text}}</text>
{{end}}{{range .XTicks}}<text x="{{printf "%.2f" .X}}" y="{{printf "%.2f" .Y}}"{{if .Rotate}} transform="rotate(45 {{printf "%.2f" .X}} {{printf "%.2f" .Y}})"{{else}} text-anchor="middle"{{end}}>{{.Text}}</text>
{{end}}{{range .Bars}}<rect x="{{printf "%.2f" .X}}" y="{{printf "%.2f" .Y}}" width="{{printf "%.2f" .W}}" height="{{printf "%.2f" .H}}" fill="{{.Fill}}"><title>{{.Title}}</title></rect>
{{end}}{{range .Points}}<circle cx="{{printf "%.2f" .X}}" cy="{{printf "%.2f" .Y}}" r="2" fill="#000000"><title>{{.Title}}</title></circle>
{{end}}{{range .Lines}}<line x1="{{printf "%.2f" .X1}}" y1="{{printf "%.2f" .Y1}}" x2="{{printf "%.2f" .X2}}" y2="{{printf "%.2f" .Y2}}" stroke="#000000" stroke-width="2"/>
{{end}}<text x="{{printf "%.2f" .XTitleX}}" y="{{printf "%.2f" .XTitleY}}" text-anchor="middle">{{.XTitle}}</text>
<text x="{{printf "%.2f" .YTitleX}}" y="{{printf "%.2f" .YTitleY}}" text-anchor="middle" transform="rotate(-90 {{printf "%.2f" .YTitleX}} {{printf "%.2f" .YTitleY}})">{{.YTitle}}</text>
{{if .Legend}}<text x="{{printf "%.2f" .LegendX}}" y="{{printf "%.2f" .LegendY}}">{{.LegendTitle}}</text>
{{range .Legend}}<rect x="{{printf "%.2f" .X}}" y="{{printf "%.2f" .Y}}" width="12" height="12" fill="{{.Fill}}"/><text x="{{printf "%.2f" .X}}" y="{{printf "%.2f" .Y}}" dx="18" dy="10">{{.Text}}</text>
{{end}}{{end}}</svg>
`))

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{.SVG}}
</body>
</html>
`))

// plot area in pixels
type frame struct {
	left, top, width, height float64
	yMin, yMax               float64
}

func (f frame) y(p float64) float64 {
	return f.top + f.height*(1-(p-f.yMin)/(f.yMax-f.yMin))
}

func (f frame) decorate(fig *figure, xTitle, yTitle string) {
	bottom := f.top + f.height
	fig.Axis = line{f.left, f.top, f.left, bottom}
	fig.Baseline = line{f.left, bottom, f.left + f.width, bottom}
	fig.XTitle, fig.YTitle = xTitle, yTitle
	fig.XTitleX = f.left + f.width/2
	fig.XTitleY = float64(fig.Height) - 12
	fig.YTitleX = f.left - 42
	fig.YTitleY = f.top + f.height/2
	for _, v := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1} {
		fig.YTicks = append(fig.YTicks, tick{X: f.left - 6, Y: f.y(v), Text: fmt.Sprintf("%.1f", v)})
	}
}

func sampleTitle(c model.Call, labels []string) string {
	if slices.Contains(labels, c.Pred) {
		return fmt.Sprintf("ID: %s\nCall: %s", c.Sample, c.Pred)
	}
	return fmt.Sprintf("ID: %s\nCall: %s\nHighest: %s", c.Sample, c.Pred, c.Highest)
}

// ScatterSVG plots every sample's probability for each label, jittered
// horizontally, with a threshold bar per label.
func ScatterSVG(level *model.Level, threshold float64, seed uint64) ([]byte, error) {
	fig := figure{Width: 800, Height: 600, Title: "Sample-wise classifier probabilities"}
	f := frame{left: 70, top: 50, width: 700, height: 420, yMin: -0.01, yMax: 1.01}
	f.decorate(&fig, "Classifier", "Probability")
	fig.XTitleY = float64(fig.Height) - 8

	n := len(level.Labels)
	if n == 0 {
		return render(svgTemplate, fig)
	}
	band := f.width / float64(n)
	center := func(j int) float64 { return f.left + (float64(j)+0.5)*band }

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i, probs := range level.Probs {
		title := sampleTitle(level.Calls[i], level.Labels)
		for j, p := range probs {
			fig.Points = append(fig.Points, point{
				X:     center(j) + (rng.Float64()-0.5)*0.5*band,
				Y:     f.y(p),
				Title: title,
			})
		}
	}
	for j, label := range level.Labels {
		x := center(j)
		fig.Lines = append(fig.Lines, line{x - 0.4*band, f.y(threshold), x + 0.4*band, f.y(threshold)})
		fig.XTicks = append(fig.XTicks, tick{X: x, Y: f.top + f.height + 14, Text: label, Rotate: true})
	}
	return render(svgTemplate, fig)
}

// WaterfallOrder returns the calls sorted by predicted label (in label order,
// Unclassified last) and then by descending adjusted probability.
func WaterfallOrder(level *model.Level) []model.Call {
	rank := make(map[string]int, len(level.Labels)+1)
	for i, l := range level.Labels {
		rank[l] = i
	}
	rank[model.Unclassified] = len(level.Labels)

	calls := slices.Clone(level.Calls)
	sort.SliceStable(calls, func(a, b int) bool {
		ra, rb := rank[calls[a].Pred], rank[calls[b].Pred]
		if ra != rb {
			return ra < rb
		}
		return calls[a].ProbaAdj > calls[b].ProbaAdj
	})
	return calls
}

// WaterfallSVG draws one bar per sample at its highest raw probability,
// coloured by predicted label.
func WaterfallSVG(level *model.Level, threshold float64) ([]byte, error) {
	fig := figure{Width: 1200, Height: 600, Title: "Waterfall distribution", LegendTitle: "Highest subtype call"}
	f := frame{left: 70, top: 50, width: 920, height: 480, yMin: 0, yMax: 1.01}
	f.decorate(&fig, "Samples", "Probability score")

	legendLabels := append(slices.Clone(level.Labels), model.Unclassified)
	colours := Colours(legendLabels)

	calls := WaterfallOrder(level)
	if len(calls) > 0 {
		band := f.width / float64(len(calls))
		for i, c := range calls {
			x := f.left + (float64(i)+0.5)*band
			top := f.y(c.ProbaRaw)
			fig.Bars = append(fig.Bars, bar{
				X:     x - 0.45*band,
				Y:     top,
				W:     0.9 * band,
				H:     f.top + f.height - top,
				Fill:  colours[c.Pred],
				Title: sampleTitle(c, level.Labels),
			})
			if c.Pred != model.Unclassified {
				fig.Lines = append(fig.Lines, line{x - 0.4*band, f.y(threshold), x + 0.4*band, f.y(threshold)})
			}
		}
	}

	fig.LegendX = f.left + f.width + 20
	fig.LegendY = f.top
	for i, l := range legendLabels {
		fig.Legend = append(fig.Legend, legendItem{
			X:    fig.LegendX,
			Y:    fig.LegendY + 12 + float64(i)*20,
			Fill: colours[l],
			Text: l,
		})
	}
	return render(svgTemplate, fig)
}

func htmlPage(title string, svg []byte) ([]byte, error) {
	// #nosec G203 -- svg is rendered by svgTemplate, which escapes all data
	return render(pageTemplate, struct {
		Title string
		SVG   template.HTML
	}{title, template.HTML(svg)})
}

func render(t *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.Bytes(), nil
}
