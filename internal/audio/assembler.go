// Package audio reassembles chunked audio uploads and holds small PCM helpers.
package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/jheun66/novel-mvp/server/domain"
)

// DefaultMaxBytes caps one upload at the transcription server's limit
const DefaultMaxBytes = 25 << 20

// StreamConfig is what a client declares when it opens a stream
type StreamConfig struct {
	SampleRate int
	Format     string
	Channels   int
}

// ChunkResult is returned for each accepted chunk
type ChunkResult struct {
	Level    float64
	Received int
	Bytes    int
}

// Assembled is a finished upload ready for transcription
type Assembled struct {
	ConversationID string
	StreamConfig
	Data   []byte
	Chunks int
}

type stream struct {
	owner        string
	cfg          StreamConfig
	nextSeq      int
	chunks       int
	buf          bytes.Buffer
	lastLevel    float64
	lastActivity time.Time
}

// Assembler tracks the open upload of each conversation
type Assembler struct {
	mu       sync.Mutex
	streams  map[string]*stream
	maxBytes int
	now      func() time.Time
}

// NewAssembler creates an assembler; maxBytes <= 0 selects DefaultMaxBytes
func NewAssembler(maxBytes int) *Assembler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Assembler{
		streams:  make(map[string]*stream),
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// CheckSize rejects a single-shot clip larger than the stream cap
func (a *Assembler) CheckSize(n int) error {
	if n > a.maxBytes {
		return a.tooLarge()
	}
	return nil
}

func (a *Assembler) tooLarge() error {
	return domain.NewProtocolError(domain.CodeAudioTooLarge,
		fmt.Sprintf("audio exceeds %d bytes", a.maxBytes), domain.ErrAudioTooLarge)
}

// Start opens a stream for conversationID, replacing a previous stream of
// the same owner. A stream held by another owner is left alone.
func (a *Assembler) Start(conversationID, owner string, cfg StreamConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok := a.streams[conversationID]; ok && s.owner != owner {
		return domain.NewDomainError(domain.CodeForbidden,
			"conversation belongs to another session", domain.ErrConversationOwner)
	}
	a.streams[conversationID] = &stream{
		owner:        owner,
		cfg:          cfg,
		lastActivity: a.now(),
	}
	return nil
}

// Append adds the chunk with sequence number seq. Only the next expected
// sequence number is accepted; anything else leaves the stream unchanged.
func (a *Assembler) Append(conversationID, owner string, seq int, data []byte) (ChunkResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(conversationID, owner)
	if err != nil {
		return ChunkResult{}, err
	}

	if seq != s.nextSeq {
		return ChunkResult{}, domain.NewProtocolError(domain.CodeSequenceMismatch,
			fmt.Sprintf("expected chunk %d, got %d", s.nextSeq, seq), domain.ErrSequenceMismatch)
	}
	if s.buf.Len()+len(data) > a.maxBytes {
		delete(a.streams, conversationID)
		return ChunkResult{}, a.tooLarge()
	}

	s.buf.Write(data)
	s.nextSeq++
	s.chunks++
	s.lastLevel = Level(data)
	s.lastActivity = a.now()

	return ChunkResult{Level: s.lastLevel, Received: s.chunks, Bytes: s.buf.Len()}, nil
}

// End finalizes and always discards the stream. A positive totalChunks must
// match the number of chunks received.
func (a *Assembler) End(conversationID, owner string, totalChunks int) (Assembled, error) {
	a.mu.Lock()
	s, err := a.lookup(conversationID, owner)
	if err == nil {
		delete(a.streams, conversationID)
	}
	a.mu.Unlock()
	if err != nil {
		return Assembled{}, err
	}

	if totalChunks > 0 && totalChunks != s.chunks {
		return Assembled{}, domain.NewProtocolError(domain.CodeIncompleteStream,
			fmt.Sprintf("expected %d chunks, received %d", totalChunks, s.chunks), domain.ErrIncompleteStream)
	}
	if s.buf.Len() == 0 {
		return Assembled{}, domain.NewProtocolError(domain.CodeInvalidAudio, "audio stream is empty", nil)
	}

	return Assembled{
		ConversationID: conversationID,
		StreamConfig:   s.cfg,
		Data:           s.buf.Bytes(),
		Chunks:         s.chunks,
	}, nil
}

// Active reports whether conversationID has an open stream
func (a *Assembler) Active(conversationID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.streams[conversationID]
	return ok
}

// DiscardOwnedBy drops every stream opened by owner
func (a *Assembler) DiscardOwnedBy(owner string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for id, s := range a.streams {
		if s.owner == owner {
			delete(a.streams, id)
			n++
		}
	}
	return n
}

// DiscardIdle drops streams that have not received a chunk within maxIdle
func (a *Assembler) DiscardIdle(maxIdle time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-maxIdle)
	n := 0
	for id, s := range a.streams {
		if s.lastActivity.Before(cutoff) {
			delete(a.streams, id)
			n++
		}
	}
	return n
}

// Len returns the number of open streams
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.streams)
}

func (a *Assembler) lookup(conversationID, owner string) (*stream, error) {
	s, ok := a.streams[conversationID]
	if !ok || s.owner != owner {
		return nil, domain.NewProtocolError(domain.CodeStreamNotFound,
			fmt.Sprintf("no active audio stream for conversation %s", conversationID), domain.ErrStreamNotFound)
	}
	return s, nil
}
