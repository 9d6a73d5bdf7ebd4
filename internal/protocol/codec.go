package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jheun66/novel-mvp/server/domain"
)

// FrameKind is the WebSocket frame class a payload arrived in
type FrameKind int

const (
	TextFrame FrameKind = iota + 1
	BinaryFrame
)

// Sample rate bounds accepted for client audio
const (
	MinSampleRate = 8000
	MaxSampleRate = 48000
)

var supportedFormats = map[string]bool{
	"pcm16": true, "pcm": true, "wav": true, "mp3": true, "opus": true, "webm": true,
}

type envelope struct {
	Type MessageType `json:"type"`
}

// Decode maps one frame to an inbound message. Every failure is a
// *domain.Error of kind protocol and never ends the session.
func Decode(kind FrameKind, payload []byte) (Inbound, error) {
	switch kind {
	case BinaryFrame:
		if len(payload) == 0 {
			return nil, domain.NewProtocolError(domain.CodeInvalidAudio, "empty binary frame", nil)
		}
		return AudioInput{
			AudioData:  payload,
			Format:     DefaultAudioFormat,
			SampleRate: DefaultSampleRate,
		}, nil
	case TextFrame:
		return decodeText(payload)
	default:
		return nil, domain.NewProtocolError(domain.CodeProtocolError, "unsupported frame kind", nil)
	}
}

func decodeText(payload []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, protocolErr("invalid JSON format", err)
	}

	switch env.Type {
	case TypeAuthRequest:
		var msg AuthRequest
		if err := unmarshal(payload, &msg); err != nil {
			return nil, err
		}
		if msg.Token == "" {
			return nil, protocolErr("token is required", nil)
		}
		return msg, nil

	case TypeTextInput:
		var msg TextInput
		if err := unmarshal(payload, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, protocolErr("text is required", nil)
		}
		if msg.ConversationID == "" {
			return nil, protocolErr("conversationId is required", nil)
		}
		return msg, nil

	case TypeAudioInput:
		var msg AudioInput
		if err := unmarshal(payload, &msg); err != nil {
			return nil, err
		}
		if len(msg.AudioData) == 0 {
			return nil, audioErr("audioData is required")
		}
		if msg.Format == "" {
			msg.Format = DefaultAudioFormat
		}
		if msg.SampleRate == 0 {
			msg.SampleRate = DefaultSampleRate
		}
		if err := validateAudioFormat(msg.Format, msg.SampleRate); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeAudioStreamStart:
		var msg AudioStreamStart
		if err := unmarshal(payload, &msg); err != nil {
			return nil, err
		}
		if msg.ConversationID == "" {
			return nil, protocolErr("conversationId is required", nil)
		}
		if msg.Format == "" {
			msg.Format = DefaultAudioFormat
		}
		if msg.SampleRate == 0 {
			msg.SampleRate = DefaultSampleRate
		}
		if msg.Channels == 0 {
			msg.Channels = DefaultChannels
		}
		if msg.Channels < 1 || msg.Channels > 2 {
			return nil, audioErr("channels must be 1 or 2")
		}
		if err := validateAudioFormat(msg.Format, msg.SampleRate); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeAudioStreamChunk:
		var msg AudioStreamChunk
		if err := unmarshal(payload, &msg); err != nil {
			return nil, err
		}
		if msg.ConversationID == "" {
			return nil, protocolErr("conversationId is required", nil)
		}
		if msg.SequenceNumber < 0 {
			return nil, protocolErr("sequenceNumber must not be negative", nil)
		}
		if len(msg.AudioData) == 0 {
			return nil, audioErr("audioData is required")
		}
		return msg, nil

	case TypeAudioStreamEnd:
		var msg AudioStreamEnd
		if err := unmarshal(payload, &msg); err != nil {
			return nil, err
		}
		if msg.ConversationID == "" {
			return nil, protocolErr("conversationId is required", nil)
		}
		if msg.TotalChunks < 0 {
			return nil, protocolErr("totalChunks must not be negative", nil)
		}
		return msg, nil

	case TypeAudioEchoTest:
		var msg AudioEchoTest
		if err := unmarshal(payload, &msg); err != nil {
			return nil, err
		}
		if len(msg.AudioData) == 0 {
			return nil, audioErr("audioData is required")
		}
		return msg, nil

	case TypeGenerateStory:
		var msg GenerateStory
		if err := unmarshal(payload, &msg); err != nil {
			return nil, err
		}
		if msg.ConversationID == "" {
			return nil, protocolErr("conversationId is required", nil)
		}
		return msg, nil

	case "":
		return nil, protocolErr("missing message type", nil)

	case TypeAuthResponse, TypeTextOutput, TypeAudioOutput, TypeStoryOutput, TypeError:
		return nil, protocolErr(fmt.Sprintf("%s is a server message", env.Type), nil)

	default:
		return nil, protocolErr(fmt.Sprintf("unsupported message type: %s", env.Type), nil)
	}
}

// Encode serializes an outbound message with its type tag
func Encode(msg Outbound) ([]byte, error) {
	return encode(msg)
}

// EncodeInbound serializes a client message. Used by clients and tests.
func EncodeInbound(msg Inbound) ([]byte, error) {
	return encode(msg)
}

func encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.Type(), err)
	}
	tag, err := json.Marshal(envelope{Type: msg.Type()})
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) <= 2 {
		return tag, nil
	}

	// {"type":"X"} + ,"field":... from the body
	var buf bytes.Buffer
	buf.Grow(len(tag) + len(body))
	buf.Write(tag[:len(tag)-1])
	buf.WriteByte(',')
	buf.Write(body[1:])
	return buf.Bytes(), nil
}

// DecodeOutbound parses a server message. Used by clients and tests.
func DecodeOutbound(payload []byte) (Outbound, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	var msg Outbound
	var err error
	switch env.Type {
	case TypeAuthResponse:
		var m AuthResponse
		err = json.Unmarshal(payload, &m)
		msg = m
	case TypeTextOutput:
		var m TextOutput
		err = json.Unmarshal(payload, &m)
		msg = m
	case TypeAudioOutput:
		var m AudioOutput
		err = json.Unmarshal(payload, &m)
		msg = m
	case TypeStoryOutput:
		var m StoryOutput
		err = json.Unmarshal(payload, &m)
		msg = m
	case TypeError:
		var m Error
		err = json.Unmarshal(payload, &m)
		msg = m
	default:
		return nil, fmt.Errorf("unsupported server message type: %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s message: %w", env.Type, err)
	}
	return msg, nil
}

func unmarshal(payload []byte, v Message) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return protocolErr(fmt.Sprintf("invalid %s message", v.Type()), err)
	}
	return nil
}

func validateAudioFormat(format string, sampleRate int) error {
	if !supportedFormats[strings.ToLower(format)] {
		return audioErr(fmt.Sprintf("unsupported audio format: %s", format))
	}
	if sampleRate < MinSampleRate || sampleRate > MaxSampleRate {
		return audioErr(fmt.Sprintf("sampleRate must be between %d and %d", MinSampleRate, MaxSampleRate))
	}
	return nil
}

func protocolErr(msg string, err error) *domain.Error {
	return domain.NewProtocolError(domain.CodeProtocolError, msg, err)
}

func audioErr(msg string) *domain.Error {
	return domain.NewProtocolError(domain.CodeInvalidAudio, msg, nil)
}
