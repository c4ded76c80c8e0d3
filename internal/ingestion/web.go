package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/stores"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

const maxTitleLength = 120

var whitespace = regexp.MustCompile(`\s+`)

// ImportURL fetches a web page and uploads its readable text. The page title
// becomes the display name.
func (i *Ingestor) ImportURL(ctx context.Context, storeID, rawURL string) (*Result, error) {
	storeID = stores.NormalizeID(storeID)

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, i.fail(StageValidate, storeID, rawURL, fmt.Errorf("invalid url %q", rawURL))
	}

	logger.Info("Importing web page", zap.String("store_id", storeID), zap.String("url", rawURL))

	html, err := i.fetch(ctx, parsed.String())
	if err != nil {
		return nil, i.fail(StageFetch, storeID, rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, i.fail(StageFetch, storeID, rawURL, fmt.Errorf("failed to parse HTML: %w", err))
	}

	title := pageTitle(doc, parsed)
	text := pageText(doc)
	if text == "" {
		return nil, i.fail(StageFetch, storeID, title, fmt.Errorf("no content extracted from %s", rawURL))
	}

	content := fmt.Sprintf("%s\nSource: %s\n\n%s\n", title, parsed.String(), text)
	return i.upload(ctx, storeID, []byte(content), title, ".txt")
}

func (i *Ingestor) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "dealroom-importer/1.0")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if i.maxFileSize > 0 {
		reader = io.LimitReader(resp.Body, i.maxFileSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if i.maxFileSize > 0 && int64(len(body)) > i.maxFileSize {
		return nil, ErrFileTooLarge
	}
	return body, nil
}

func pageTitle(doc *goquery.Document, source *url.URL) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = source.Host + source.Path
	}

	title = whitespace.ReplaceAllString(title, " ")
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}
	return title
}

func pageText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside, noscript").Remove()
	text := whitespace.ReplaceAllString(doc.Find("body").Text(), " ")
	return strings.TrimSpace(text)
}
