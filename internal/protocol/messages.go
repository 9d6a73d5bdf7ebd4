// Package protocol defines the session wire protocol: a closed set of
// messages discriminated by their "type" field, and the codec that maps
// WebSocket frames to and from them.
package protocol

// MessageType is the wire discriminator of a message
type MessageType string

// Client to server messages
const (
	TypeAuthRequest      MessageType = "AuthRequest"
	TypeTextInput        MessageType = "TextInput"
	TypeAudioInput       MessageType = "AudioInput"
	TypeAudioStreamStart MessageType = "AudioStreamStart"
	TypeAudioStreamChunk MessageType = "AudioStreamChunk"
	TypeAudioStreamEnd   MessageType = "AudioStreamEnd"
	TypeAudioEchoTest    MessageType = "AudioEchoTest"
	TypeGenerateStory    MessageType = "GenerateStory"
)

// Server to client messages
const (
	TypeAuthResponse MessageType = "AuthResponse"
	TypeTextOutput   MessageType = "TextOutput"
	TypeAudioOutput  MessageType = "AudioOutput"
	TypeStoryOutput  MessageType = "StoryOutput"
	TypeError        MessageType = "Error"
)

// Audio defaults applied when a client omits them
const (
	DefaultAudioFormat = "pcm16"
	DefaultSampleRate  = 16000
	DefaultChannels    = 1
)

// Audio output kinds
const (
	AudioTypeDialogue = "dialogue"
	AudioTypeStory    = "story"
	AudioTypeEcho     = "echo"
)

// Message is implemented by every protocol message
type Message interface {
	Type() MessageType
}

// Inbound is a message a client may send. The set is closed by the
// unexported marker method.
type Inbound interface {
	Message
	inbound()
}

// Outbound is a message the server may send.
type Outbound interface {
	Message
	outbound()
}

// AuthRequest carries a bearer credential as the first frame
type AuthRequest struct {
	Token string `json:"token"`
}

// TextInput is one typed user turn
type TextInput struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversationId"`
}

// AudioInput is a single-shot recorded user turn
type AudioInput struct {
	AudioData      []byte `json:"audioData"`
	Format         string `json:"format"`
	SampleRate     int    `json:"sampleRate"`
	ConversationID string `json:"conversationId"`
}

// AudioStreamStart opens a chunked audio upload
type AudioStreamStart struct {
	ConversationID string `json:"conversationId"`
	SampleRate     int    `json:"sampleRate"`
	Format         string `json:"format"`
	Channels       int    `json:"channels"`
}

// AudioStreamChunk is one sequenced piece of an upload
type AudioStreamChunk struct {
	ConversationID string `json:"conversationId"`
	AudioData      []byte `json:"audioData"`
	SequenceNumber int    `json:"sequenceNumber"`
}

// AudioStreamEnd closes an upload
type AudioStreamEnd struct {
	ConversationID string `json:"conversationId"`
	TotalChunks    int    `json:"totalChunks"`
}

// AudioEchoTest asks the server to play the audio back
type AudioEchoTest struct {
	AudioData      []byte `json:"audioData"`
	ConversationID string `json:"conversationId"`
}

// GenerateStory requests the story for a conversation
type GenerateStory struct {
	ConversationID string `json:"conversationId"`
}

// AuthResponse acknowledges an AuthRequest
type AuthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// TextOutput is the assistant's reply to a turn
type TextOutput struct {
	Text               string   `json:"text"`
	Emotion            string   `json:"emotion,omitempty"`
	SuggestedQuestions []string `json:"suggestedQuestions"`
	ReadyForStory      bool     `json:"readyForStory"`
}

// AudioOutput is synthesized or echoed audio
type AudioOutput struct {
	AudioData  []byte  `json:"audioData"`
	Format     string  `json:"format"`
	SampleRate int     `json:"sampleRate"`
	Emotion    string  `json:"emotion,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	AudioType  string  `json:"audioType"`
}

// StoryOutput is a generated story, optionally narrated
type StoryOutput struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	Emotion      string `json:"emotion"`
	Genre        string `json:"genre"`
	EmotionalArc string `json:"emotionalArc"`
	AudioData    []byte `json:"audioData,omitempty"`
}

// Error reports a recoverable failure to the client
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (AuthRequest) Type() MessageType      { return TypeAuthRequest }
func (TextInput) Type() MessageType        { return TypeTextInput }
func (AudioInput) Type() MessageType       { return TypeAudioInput }
func (AudioStreamStart) Type() MessageType { return TypeAudioStreamStart }
func (AudioStreamChunk) Type() MessageType { return TypeAudioStreamChunk }
func (AudioStreamEnd) Type() MessageType   { return TypeAudioStreamEnd }
func (AudioEchoTest) Type() MessageType    { return TypeAudioEchoTest }
func (GenerateStory) Type() MessageType    { return TypeGenerateStory }
func (AuthResponse) Type() MessageType     { return TypeAuthResponse }
func (TextOutput) Type() MessageType       { return TypeTextOutput }
func (AudioOutput) Type() MessageType      { return TypeAudioOutput }
func (StoryOutput) Type() MessageType      { return TypeStoryOutput }
func (Error) Type() MessageType            { return TypeError }

func (AuthRequest) inbound()      {}
func (TextInput) inbound()        {}
func (AudioInput) inbound()       {}
func (AudioStreamStart) inbound() {}
func (AudioStreamChunk) inbound() {}
func (AudioStreamEnd) inbound()   {}
func (AudioEchoTest) inbound()    {}
func (GenerateStory) inbound()    {}

func (AuthResponse) outbound() {}
func (TextOutput) outbound()   {}
func (AudioOutput) outbound()  {}
func (StoryOutput) outbound()  {}
func (Error) outbound()        {}

// NewError creates an Error message
func NewError(code, message string) Error {
	return Error{Code: code, Message: message}
}

// NewTextOutput creates a TextOutput with a non-nil suggestion list
func NewTextOutput(text, emotion string, suggestions []string, ready bool) TextOutput {
	if suggestions == nil {
		suggestions = []string{}
	}
	return TextOutput{
		Text:               text,
		Emotion:            emotion,
		SuggestedQuestions: suggestions,
		ReadyForStory:      ready,
	}
}
