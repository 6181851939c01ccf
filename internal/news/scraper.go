package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"multi-agent-trader/internal/logger"
)

// Headline is one scraped news item. Summary holds whatever teaser text
// the listing page carried, often empty.
type Headline struct {
	Title       string
	URL         string
	Summary     string
	Source      string
	PublishedAt string
	Symbol      string
}

// Scraper collects crypto headlines from multiple sources
type Scraper struct {
	sources []NewsSource
	timeout time.Duration
}

// NewsSource defines a news source configuration
type NewsSource struct {
	Name      string
	BaseURL   string
	TagPath   string // e.g., "/tag/{asset}"
	Selectors ArticleSelectors
	RateLimit time.Duration
}

// ArticleSelectors defines CSS selectors for extracting headline data
type ArticleSelectors struct {
	ArticleContainer string
	Title            string
	URL              string
	Summary          string
	PublishedAt      string
}

// NewScraper creates a new headline scraper with default sources
func NewScraper(timeout time.Duration) *Scraper {
	return &Scraper{
		sources: getDefaultSources(),
		timeout: timeout,
	}
}

// getDefaultSources returns the crypto news sources to scrape
func getDefaultSources() []NewsSource {
	return []NewsSource{
		{
			Name:    "CoinDesk",
			BaseURL: "https://www.coindesk.com",
			TagPath: "/tag/{asset}",
			Selectors: ArticleSelectors{
				ArticleContainer: "div.article-cardstyles__AcTitle-sc-q1x8lc-1, article",
				Title:            "h2 a, h3 a, a.card-title",
				URL:              "h2 a, h3 a, a.card-title",
				Summary:          "p",
				PublishedAt:      "time, span.typography__StyledTypography-sc-owin6q-0",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:    "Cointelegraph",
			BaseURL: "https://cointelegraph.com",
			TagPath: "/tags/{asset}",
			Selectors: ArticleSelectors{
				ArticleContainer: "article.post-card-inline, li.posts-listing__item",
				Title:            "span.post-card-inline__title, a.post-card-inline__title-link",
				URL:              "a.post-card-inline__figure-link, a.post-card-inline__title-link",
				Summary:          "p.post-card-inline__text",
				PublishedAt:      "time",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:    "Decrypt",
			BaseURL: "https://decrypt.co",
			TagPath: "/news/{asset}",
			Selectors: ArticleSelectors{
				ArticleContainer: "article",
				Title:            "h2 a, h3 a, h4 a",
				URL:              "h2 a, h3 a, h4 a",
				Summary:          "p",
				PublishedAt:      "time",
			},
			RateLimit: 2 * time.Second,
		},
	}
}

// assetSlugs maps trading pair bases to the tag names news sites use.
var assetSlugs = map[string]string{
	"BTC":  "bitcoin",
	"XBT":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"XRP":  "xrp",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"DOT":  "polkadot",
	"LTC":  "litecoin",
}

// assetSlug turns a pair like "BTC/USD" into the tag slug news sites index
// by, defaulting to the lowercased base asset.
func assetSlug(symbol string) string {
	base := symbol
	if i := strings.Index(symbol, "/"); i > 0 {
		base = symbol[:i]
	}
	base = strings.ToUpper(strings.TrimSpace(base))
	if slug, ok := assetSlugs[base]; ok {
		return slug
	}
	return strings.ToLower(base)
}

// ScrapeHeadlines fetches headlines for a given symbol from all sources
func (s *Scraper) ScrapeHeadlines(ctx context.Context, symbol string, maxHeadlines int) ([]Headline, error) {
	logger.Info(ctx, "Starting headline scraping", "symbol", symbol, "sources", len(s.sources))

	allHeadlines := []Headline{}
	perSource := maxHeadlines / len(s.sources)
	if perSource < 1 {
		perSource = 1
	}

	for _, source := range s.sources {
		headlines, err := s.scrapeSource(ctx, source, symbol, perSource)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to scrape source", err, "source", source.Name, "symbol", symbol)
			continue
		}
		allHeadlines = append(allHeadlines, headlines...)

		// Rate limiting between sources
		time.Sleep(source.RateLimit)
	}

	logger.Info(ctx, "Headline scraping completed", "symbol", symbol, "headlines", len(allHeadlines))
	return allHeadlines, nil
}

// scrapeSource scrapes headlines from a single news source
func (s *Scraper) scrapeSource(ctx context.Context, source NewsSource, symbol string, maxHeadlines int) ([]Headline, error) {
	headlines := []Headline{}

	c := colly.NewCollector(
		colly.AllowedDomains(getDomain(source.BaseURL)),
		colly.MaxDepth(1),
		colly.Async(false),
	)

	c.SetRequestTimeout(s.timeout)

	// Set user agent to avoid being blocked
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	c.OnHTML(source.Selectors.ArticleContainer, func(e *colly.HTMLElement) {
		if len(headlines) >= maxHeadlines {
			return
		}

		title := firstText(e.DOM, source.Selectors.Title)
		if title == "" {
			return
		}

		headlineURL := firstAttr(e.DOM, source.Selectors.URL, "href")
		if headlineURL == "" {
			headlineURL = firstAttr(e.DOM, source.Selectors.Title, "href")
		}
		if headlineURL == "" {
			return
		}

		// Make URL absolute
		if !strings.HasPrefix(headlineURL, "http") {
			headlineURL = source.BaseURL + headlineURL
		}

		headlines = append(headlines, Headline{
			Title:       title,
			URL:         headlineURL,
			Summary:     firstText(e.DOM, source.Selectors.Summary),
			Source:      source.Name,
			PublishedAt: firstText(e.DOM, source.Selectors.PublishedAt),
			Symbol:      symbol,
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.ErrorWithErr(ctx, "Scraping error", err, "source", source.Name, "url", r.Request.URL.String())
	})

	tagURL := source.BaseURL + strings.ReplaceAll(source.TagPath, "{asset}", assetSlug(symbol))

	err := c.Visit(tagURL)
	if err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", tagURL, err)
	}

	c.Wait()

	return headlines, nil
}

// firstText returns the trimmed text of the first node matching selector.
// Comma-separated selectors match several nodes; taking the first avoids
// goquery concatenating the text of all of them.
func firstText(dom *goquery.Selection, selector string) string {
	return strings.TrimSpace(dom.Find(selector).First().Text())
}

// firstAttr returns the named attribute of the first node matching selector.
func firstAttr(dom *goquery.Selection, selector, attr string) string {
	v, _ := dom.Find(selector).First().Attr(attr)
	return v
}

// getDomain extracts domain from URL
func getDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ScrapeGoogleNews searches Google News for asset coverage (fallback method)
func (s *Scraper) ScrapeGoogleNews(ctx context.Context, symbol string, maxHeadlines int) ([]Headline, error) {
	headlines := []Headline{}

	c := colly.NewCollector(
		colly.AllowedDomains("news.google.com", "www.google.com"),
	)

	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	})

	c.OnHTML("article", func(e *colly.HTMLElement) {
		if len(headlines) >= maxHeadlines {
			return
		}

		title := firstText(e.DOM, "h3, h4")
		link := firstAttr(e.DOM, "a", "href")

		if title != "" && link != "" {
			// Clean up Google News redirect URL
			if strings.HasPrefix(link, "./articles/") {
				link = "https://news.google.com" + link[1:]
			}

			headlines = append(headlines, Headline{
				Title:  title,
				URL:    link,
				Source: "GoogleNews",
				Symbol: symbol,
			})
		}
	})

	searchQuery := url.QueryEscape(assetSlug(symbol) + " crypto news")
	searchURL := fmt.Sprintf("https://news.google.com/search?q=%s&hl=en-US&gl=US&ceid=US:en", searchQuery)

	err := c.Visit(searchURL)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape Google News: %w", err)
	}

	c.Wait()

	logger.Info(ctx, "Google News scraping completed", "symbol", symbol, "headlines", len(headlines))
	return headlines, nil
}
