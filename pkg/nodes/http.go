package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"golang.org/x/net/html"
)

// maxResponseBody caps how much of a response body a node reads.
const maxResponseBody = 8 << 20

var requestMethods = map[string]string{
	"get":    http.MethodGet,
	"post":   http.MethodPost,
	"put":    http.MethodPut,
	"delete": http.MethodDelete,
}

// HTTPConfig is the target of an HttpNode.
type HTTPConfig struct {
	URL         string `mapstructure:"url"`
	RequestType string `mapstructure:"request_type"`
}

// HTTPNode sends the JSON result to a fixed URL and returns the response body.
type HTTPNode struct {
	*Configurable[HTTPConfig]
	svc *Services
}

func NewHTTPNode(svc *Services) *HTTPNode {
	return &HTTPNode{Configurable: NewConfigurable(HTTPConfig{RequestType: "get"}), svc: svc}
}

func (*HTTPNode) Type() string { return TypeHTTP }

func (h *HTTPNode) Run(ctx context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	cfg := h.Config()
	var data any
	if err := json.Unmarshal([]byte(st.Result), &data); err != nil {
		return textOut("Invalid JSON"), nil
	}
	body, err := sendJSON(ctx, h.svc.httpClient(), cfg.RequestType, cfg.URL, data)
	if err != nil {
		return nil, err
	}
	return textOut(body), nil
}

// JSONRequestConfig names the result field holding the URL.
type JSONRequestConfig struct {
	Key         string `mapstructure:"key"`
	RequestType string `mapstructure:"request_type"`
}

// JSONRequestNode sends the JSON result to the URL found under Key.
type JSONRequestNode struct {
	*Configurable[JSONRequestConfig]
	svc *Services
}

func NewJSONRequestNode(svc *Services) *JSONRequestNode {
	return &JSONRequestNode{Configurable: NewConfigurable(JSONRequestConfig{Key: "url", RequestType: "get"}), svc: svc}
}

func (*JSONRequestNode) Type() string { return TypeJSONRequest }

func (j *JSONRequestNode) Run(ctx context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	cfg := j.Config()
	fields, err := resultObject(st)
	if err != nil {
		return textOut("Invalid JSON"), nil
	}
	target, err := stringField(fields, cfg.Key)
	if err != nil {
		return nil, err
	}
	body, err := sendJSON(ctx, j.svc.httpClient(), cfg.RequestType, withScheme(target), fields)
	if err != nil {
		return nil, err
	}
	return textOut(body), nil
}

// ScrapeConfig names the result field holding the URL.
type ScrapeConfig struct {
	Key string `mapstructure:"key"`
}

// ScrapeNode fetches a page and returns its paragraph text and links,
// links rendered as markdown. Braces are doubled so the output can be fed
// to a prompt template.
type ScrapeNode struct {
	*Configurable[ScrapeConfig]
	svc *Services
}

func NewScrapeNode(svc *Services) *ScrapeNode {
	return &ScrapeNode{Configurable: NewConfigurable(ScrapeConfig{Key: "url"}), svc: svc}
}

func (*ScrapeNode) Type() string { return TypeScrape }

func (s *ScrapeNode) Run(ctx context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	fields, err := resultObject(st)
	if err != nil {
		return textOut("Invalid JSON"), nil
	}
	target, err := stringField(fields, s.Config().Key)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, withScheme(target), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.svc.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}
	return textOut(scrapeText(doc)), nil
}

func scrapeText(doc *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p":
				b.WriteString(strings.ReplaceAll(nodeText(n), "\n", " "))
				b.WriteString(" ")
			case "a":
				fmt.Fprintf(&b, "[%s](%s) ", nodeText(n), attr(n, "href"))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := strings.NewReplacer("{", "{{", "}", "}}").Replace(b.String())
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, "\n")
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func withScheme(target string) string {
	if strings.HasPrefix(target, "https://") || strings.HasPrefix(target, "http://") {
		return target
	}
	return "https://" + target
}

func sendJSON(ctx context.Context, client *http.Client, requestType, target string, data any) (string, error) {
	method, ok := requestMethods[strings.ToLower(requestType)]
	if !ok {
		return "", fmt.Errorf("unsupported request type %q", requestType)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
