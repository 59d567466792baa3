package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"
)

const defaultTemplate = "{{.RouteID}} {{.Name}} on {{.Chain}} {{.ID}}"

// EventPayload is the data passed to sinks for one route match.
type EventPayload struct {
	RouteID string         `json:"route"`
	Name    string         `json:"name"`
	Kind    string         `json:"kind"`
	Chain   string         `json:"chain"`
	ChainID uint64         `json:"chainId"`
	ID      string         `json:"id"`
	TxHash  string         `json:"txHash,omitempty"`
	Fields  map[string]any `json:"fields"`
	// Event is the full handler payload, for templates using pretty_json.
	Event any `json:"-"`
}

// Sender delivers a route match and reports the HTTP status it got.
type Sender interface {
	Send(ctx context.Context, payload EventPayload) (int, error)
}

// encodeFunc builds the request body from the rendered message and the payload.
type encodeFunc func(text string, p EventPayload) any

// chatBody is accepted by Slack and Teams incoming webhooks.
func chatBody(text string, _ EventPayload) any {
	return map[string]string{"text": text}
}

// eventBody carries the structured match next to the rendered message.
func eventBody(text string, p EventPayload) any {
	return struct {
		EventPayload
		Text string `json:"text"`
	}{p, text}
}

type httpSender struct {
	url     string
	method  string
	render  *template.Template
	encode  encodeFunc
	client  *http.Client
	headers map[string]string
}

func newHTTPSender(url, method, tmpl string, encode encodeFunc, headers map[string]string) (*httpSender, error) {
	if url == "" {
		return nil, fmt.Errorf("sink url required")
	}
	if method == "" {
		method = http.MethodPost
	}
	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return &httpSender{
		url:     url,
		method:  strings.ToUpper(method),
		render:  t,
		encode:  encode,
		client:  &http.Client{Timeout: 8 * time.Second},
		headers: h,
	}, nil
}

// NewWebhookSender posts the structured match, with the rendered template under "text".
func NewWebhookSender(url, method, tmpl string, headers map[string]string) (Sender, error) {
	return asSender(newHTTPSender(url, method, tmpl, eventBody, headers))
}

// NewSlackSender posts the rendered template to a Slack incoming webhook.
func NewSlackSender(url, tmpl string) (Sender, error) {
	return asSender(newHTTPSender(url, http.MethodPost, tmpl, chatBody, nil))
}

// NewTeamsSender posts the rendered template to a Teams incoming webhook.
func NewTeamsSender(url, tmpl string) (Sender, error) {
	return asSender(newHTTPSender(url, http.MethodPost, tmpl, chatBody, nil))
}

func asSender(s *httpSender, err error) (Sender, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *httpSender) Send(ctx context.Context, payload EventPayload) (int, error) {
	text, err := executeTemplate(s.render, payload)
	if err != nil {
		return 0, err
	}
	body, err := json.Marshal(s.encode(text, payload))
	if err != nil {
		return 0, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("sink http status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

var templateFuncs = template.FuncMap{
	"pretty_json": func(v any) string {
		out, _ := json.MarshalIndent(v, "", "  ")
		return string(out)
	},
	"short_addr": func(addr string) string {
		if len(addr) <= 10 {
			return addr
		}
		return addr[:6] + "..." + addr[len(addr)-4:]
	},
	"field": func(fields map[string]any, key string) string {
		if v, ok := fields[key]; ok {
			return fmt.Sprint(v)
		}
		return ""
	},
}

func parseTemplate(tmpl string) (*template.Template, error) {
	if tmpl == "" {
		tmpl = defaultTemplate
	}
	t, err := template.New("msg").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return t, nil
}

func executeTemplate(t *template.Template, data EventPayload) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
