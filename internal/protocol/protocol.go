// Package protocol defines the JSON messages exchanged on the talk and
// conversation sockets.
//
// Every message carries a "type" discriminator and has one fixed shape per
// type. Inbound text frames are control messages (only "ping" exists);
// inbound binary frames are raw float32 PCM and never pass through this
// package.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Message types.
const (
	TypePing          = "ping"
	TypeStatus        = "status"
	TypeTranscription = "transcription"
	TypeResponse      = "response"
	TypeCoach         = "coach"
)

// Verification labels used by the talk socket.
const (
	StatusVerified    = "VERIFIED"
	StatusNotVerified = "NOT VERIFIED"
)

// Speaker labels used by the conversation socket.
const (
	SpeakerRegistered   = "registered_user"
	SpeakerUnregistered = "unregistered_user"
)

// ErrUnknownMessage is returned by [ParseControl] for a well-formed message
// whose type is not a known control type.
var ErrUnknownMessage = errors.New("protocol: unknown message type")

// Message is implemented by every outbound message.
type Message interface {
	MessageType() string
}

// Control is an inbound text message.
type Control struct {
	Type string `json:"type"`
}

// ParseControl decodes and validates an inbound text message.
func ParseControl(data []byte) (Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return Control{}, fmt.Errorf("protocol: decode control message: %w", err)
	}
	if c.Type != TypePing {
		return Control{}, fmt.Errorf("%w: %q", ErrUnknownMessage, c.Type)
	}
	return c, nil
}

// Round3 rounds a confidence to three decimals for the wire.
func Round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// VerificationStatus reports the per-frame verification result on the talk
// socket.
type VerificationStatus struct {
	Type       string  `json:"type"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
}

// MessageType implements [Message].
func (VerificationStatus) MessageType() string { return TypeStatus }

// NewVerificationStatus builds a status message for one scored frame.
func NewVerificationStatus(verified bool, score float64) VerificationStatus {
	s := StatusNotVerified
	if verified {
		s = StatusVerified
	}
	return VerificationStatus{Type: TypeStatus, Status: s, Confidence: Round3(score)}
}

// SpeakerStatus reports the per-frame speaker classification on the
// conversation socket.
type SpeakerStatus struct {
	Type       string  `json:"type"`
	Speaker    string  `json:"speaker"`
	Confidence float64 `json:"confidence"`
}

// MessageType implements [Message].
func (SpeakerStatus) MessageType() string { return TypeStatus }

// SpeakerLabel maps a verification decision to a speaker label.
func SpeakerLabel(registered bool) string {
	if registered {
		return SpeakerRegistered
	}
	return SpeakerUnregistered
}

// NewSpeakerStatus builds a status message for one scored frame.
func NewSpeakerStatus(registered bool, score float64) SpeakerStatus {
	return SpeakerStatus{Type: TypeStatus, Speaker: SpeakerLabel(registered), Confidence: Round3(score)}
}

// Transcription carries the text of an accepted utterance on the talk
// socket.
type Transcription struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MessageType implements [Message].
func (Transcription) MessageType() string { return TypeTranscription }

// NewTranscription builds a talk-socket transcription.
func NewTranscription(text string) Transcription {
	return Transcription{Type: TypeTranscription, Text: text}
}

// SpeakerTranscription carries the text, speaker and peak confidence of an
// accepted utterance on the conversation socket.
type SpeakerTranscription struct {
	Type       string  `json:"type"`
	Speaker    string  `json:"speaker"`
	Confidence float64 `json:"confidence"`
	Text       string  `json:"text"`
}

// MessageType implements [Message].
func (SpeakerTranscription) MessageType() string { return TypeTranscription }

// NewSpeakerTranscription builds a conversation-socket transcription.
func NewSpeakerTranscription(registered bool, maxConfidence float64, text string) SpeakerTranscription {
	return SpeakerTranscription{
		Type:       TypeTranscription,
		Speaker:    SpeakerLabel(registered),
		Confidence: Round3(maxConfidence),
		Text:       text,
	}
}

// Reply is a generated answer: a "response" on the talk socket or a "coach"
// hint on the conversation socket.
type Reply struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MessageType implements [Message].
func (r Reply) MessageType() string { return r.Type }

// NewResponse builds a talk-socket reply.
func NewResponse(text string) Reply { return Reply{Type: TypeResponse, Text: text} }

// NewCoach builds a conversation-socket coaching hint.
func NewCoach(text string) Reply { return Reply{Type: TypeCoach, Text: text} }
