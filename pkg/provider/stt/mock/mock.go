// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/talkbuddy/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Provider is a mock implementation of stt.Provider. Texts are returned by
// successive Transcribe calls (the last one repeats); TranscribeFunc, when
// set, takes precedence.
type Provider struct {
	mu sync.Mutex

	Texts          []string
	TranscribeFunc func(req stt.Request) (stt.Result, error)
	Err            error

	// Requests records every request in order.
	Requests []stt.Request
}

// Transcribe records req and returns the next configured result.
func (p *Provider) Transcribe(_ context.Context, req stt.Request) (stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := len(p.Requests)
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return stt.Result{}, p.Err
	}
	if p.TranscribeFunc != nil {
		return p.TranscribeFunc(req)
	}
	if len(p.Texts) == 0 {
		return stt.Result{}, nil
	}
	text := p.Texts[min(idx, len(p.Texts)-1)]
	return stt.Result{Text: text, Segments: []stt.Segment{{Text: text}}}, nil
}

// Calls returns a snapshot of the recorded requests.
func (p *Provider) Calls() []stt.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]stt.Request, len(p.Requests))
	copy(out, p.Requests)
	return out
}
