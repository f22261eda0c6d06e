// Package deepgram transcribes utterances with Deepgram's pre-recorded
// /v1/listen endpoint. The utterance is posted as raw linear16 PCM and
// every utterance Deepgram finds in it becomes one segment.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MrWong99/talkbuddy/pkg/audio"
	"github.com/MrWong99/talkbuddy/pkg/provider/stt"
)

const (
	// DefaultEndpoint is Deepgram's hosted listen API.
	DefaultEndpoint = "https://api.deepgram.com/v1/listen"

	defaultModel    = "nova-3"
	defaultLanguage = "en"
)

var _ stt.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithModel selects the model, e.g. "nova-3" or "base".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language used when a request names none.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint points the provider at another listen URL, such as a
// self-hosted Deepgram.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithTimeout bounds each request. The default is 20 seconds.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// WithKeyterms boosts words the recogniser should expect, such as the
// learner's name.
func WithKeyterms(terms ...string) Option {
	return func(p *Provider) { p.keyterms = append(p.keyterms, terms...) }
}

// Provider is a Deepgram stt.Provider.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
	keyterms []string
	client   *http.Client
}

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key is required")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	if _, err := url.Parse(p.endpoint); err != nil {
		return nil, fmt.Errorf("deepgram: endpoint: %w", err)
	}
	return p, nil
}

// Transcribe implements stt.Provider. Deepgram has no beam or threshold
// controls, so only the language and sample rate are taken from req.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.Audio) == 0 {
		return stt.Result{}, nil
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.listenURL(req),
		bytes.NewReader(audio.Int16ToBytes(req.Audio)))
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: %w", err)
	}
	hreq.Header.Set("Authorization", "Token "+p.apiKey)
	hreq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(hreq)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, apiError(resp)
	}
	var body listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: decode response: %w", err)
	}
	return body.result(), nil
}

func (p *Provider) listenURL(req stt.Request) string {
	u, _ := url.Parse(p.endpoint)
	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	rate := req.SampleRate
	if rate <= 0 {
		rate = audio.SampleRate
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("utterances", "true")
	for _, t := range p.keyterms {
		q.Add("keyterm", t)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []alternative `json:"alternatives"`
		} `json:"channels"`
		Utterances []alternative `json:"utterances"`
	} `json:"results"`
}

// result prefers Deepgram's utterance split and falls back to the best
// channel alternative.
func (r listenResponse) result() stt.Result {
	alts := r.Results.Utterances
	if len(alts) == 0 {
		for _, ch := range r.Results.Channels {
			if len(ch.Alternatives) > 0 {
				alts = ch.Alternatives[:1]
				break
			}
		}
	}
	var res stt.Result
	for _, a := range alts {
		if a.Transcript == "" {
			continue
		}
		seg := stt.Segment{Text: a.Transcript}
		if a.Confidence > 0 {
			seg.AvgLogProb = math.Log(a.Confidence)
		}
		res.Segments = append(res.Segments, seg)
	}
	res.Text = stt.JoinSegments(res.Segments)
	return res
}

// apiError reads Deepgram's {"err_code","err_msg"} body when present.
func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	var body struct {
		Code    string `json:"err_code"`
		Message string `json:"err_msg"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return fmt.Errorf("deepgram: %s: %s: %s", resp.Status, body.Code, body.Message)
	}
	return fmt.Errorf("deepgram: %s: %s", resp.Status, bytes.TrimSpace(raw))
}
