package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/haoxu/ivarb/pkg/contracts"
	"github.com/haoxu/ivarb/pkg/models"
)

// Scraper extracts at-the-money option IV from a public delayed-quote web
// page (Barchart's futures option pages by default). Three independent
// parse strategies are tried in order; whichever succeeds first wins, with
// no cross-validation between them:
//
//  1. structured table extraction
//  2. embedded-script numeric extraction
//  3. free-text extraction near "volatility" wording
type Scraper struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	resolver   contracts.Resolver
	now        func() time.Time
}

func NewScraper(baseURL string) *Scraper {
	if baseURL == "" {
		baseURL = "https://www.barchart.com"
	}
	return &Scraper{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		// One page per second keeps us off the site's blocklist.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		now:     time.Now,
	}
}

// ScrapedIV fetches the option page for the instrument's next-next-month
// foreign contract and extracts an ATM volatility near the reference price.
func (s *Scraper) ScrapedIV(ctx context.Context, spec models.InstrumentSpec, referencePrice float64) (ScrapedOption, error) {
	contract := s.resolver.FuturesSymbol(spec.Foreign, s.now())

	doc, err := s.fetch(ctx, fmt.Sprintf("%s/futures/quotes/%s/options", s.baseURL, contract))
	if err != nil {
		return ScrapedOption{}, err
	}

	if opt, ok := parseFromTable(doc, referencePrice, contract); ok {
		return opt, nil
	}
	if opt, ok := parseFromScript(doc, referencePrice); ok {
		return opt, nil
	}
	if opt, ok := parseFromText(doc, referencePrice, contract); ok {
		return opt, nil
	}
	return ScrapedOption{}, fmt.Errorf("%w: no parse strategy matched for %s", ErrNoData, contract)
}

func (s *Scraper) fetch(ctx context.Context, rawURL string) (*html.Node, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: scrape target returned %d", ErrNoData, resp.StatusCode)
	}
	return html.Parse(resp.Body)
}

// scrapeRow is one candidate (strike, iv) extracted from a table row.
type scrapeRow struct {
	strike float64
	iv     float64
}

var tableHeaderKeywords = []string{"strike", "call", "put", "iv", "implied"}

// parseFromTable looks for a table whose header row mentions option
// keywords, reads candidate strike/IV numbers out of each row, and picks
// the row whose strike is closest to the reference price.
func parseFromTable(doc *html.Node, referencePrice float64, contract string) (ScrapedOption, bool) {
	for _, table := range findAll(doc, "table") {
		header := strings.ToLower(collectText(findAll(table, "th")))
		match := false
		for _, kw := range tableHeaderKeywords {
			if strings.Contains(header, kw) {
				match = true
				break
			}
		}
		if !match {
			continue
		}

		var rows []scrapeRow
		for _, tr := range findAll(table, "tr") {
			cells := findAll(tr, "td")
			if len(cells) < 3 {
				continue
			}
			if row, ok := parseRow(cells); ok {
				rows = append(rows, row)
			}
		}
		if len(rows) == 0 {
			continue
		}

		atm := rows[0]
		for _, r := range rows[1:] {
			if math.Abs(r.strike-referencePrice) < math.Abs(atm.strike-referencePrice) {
				atm = r
			}
		}
		return ScrapedOption{
			IV:       atm.iv,
			Strike:   atm.strike,
			CallCode: fmt.Sprintf("%sC%.0f", contract, atm.strike),
			PutCode:  fmt.Sprintf("%sP%.0f", contract, atm.strike),
		}, true
	}
	return ScrapedOption{}, false
}

// parseRow classifies the numbers in a row: a value inside the IV sanity
// band is taken as the volatility, anything else numeric as the strike.
// Rows that do not yield both are rejected wholesale.
func parseRow(cells []*html.Node) (scrapeRow, bool) {
	var row scrapeRow
	var haveStrike, haveIV bool
	for _, cell := range cells {
		text := strings.TrimSpace(nodeText(cell))
		clean := strings.NewReplacer(",", "", "$", "", "%", "").Replace(text)
		v, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			continue
		}
		if !haveIV && v >= 0.01 && v <= maxSaneIV && !strings.Contains(text, "%") {
			row.iv = v
			haveIV = true
		} else if !haveStrike {
			row.strike = v
			haveStrike = true
		}
	}
	return row, haveStrike && haveIV
}

var scriptIVPattern = regexp.MustCompile(`"impliedVolatility["\s:]+(\d+\.?\d*)`)

// parseFromScript searches inline script content for a named volatility
// field. The page's own strike is not recoverable this way, so the
// reference price stands in and the codes stay unset.
func parseFromScript(doc *html.Node, referencePrice float64) (ScrapedOption, bool) {
	for _, script := range findAll(doc, "script") {
		content := nodeText(script)
		if !strings.Contains(content, "impliedVolatility") && !strings.Contains(content, "optionChain") {
			continue
		}
		m := scriptIVPattern.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		iv, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return ScrapedOption{IV: iv, Strike: referencePrice}, true
	}
	return ScrapedOption{}, false
}

var (
	volatilityWords = regexp.MustCompile(`(?i)(implied|volatility)`)
	numberPattern   = regexp.MustCompile(`\d+\.?\d*`)
)

// parseFromText scans text nodes mentioning volatility and takes the first
// nearby number inside the sanity band. Crude, but it is the last strategy
// before giving up on the page.
func parseFromText(doc *html.Node, referencePrice float64, contract string) (ScrapedOption, bool) {
	var result ScrapedOption
	var found bool
	walk(doc, func(n *html.Node) bool {
		if found || n.Type != html.TextNode || !volatilityWords.MatchString(n.Data) {
			return true
		}
		context := n.Data
		if n.Parent != nil {
			context = nodeText(n.Parent)
		}
		for _, num := range numberPattern.FindAllString(context, -1) {
			v, err := strconv.ParseFloat(num, 64)
			if err != nil || !saneIV(v) {
				continue
			}
			result = ScrapedOption{
				IV:       v,
				Strike:   referencePrice,
				CallCode: fmt.Sprintf("%sC%.0f", contract, referencePrice),
				PutCode:  fmt.Sprintf("%sP%.0f", contract, referencePrice),
			}
			found = true
			return false
		}
		return true
	})
	return result, found
}

// walk visits nodes depth-first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	walk(n, func(node *html.Node) bool {
		if node.Type == html.ElementNode && node.Data == tag {
			out = append(out, node)
		}
		return true
	})
	return out
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	walk(n, func(node *html.Node) bool {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		return true
	})
	return b.String()
}

func collectText(nodes []*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(nodeText(n))
		b.WriteString(" ")
	}
	return b.String()
}
