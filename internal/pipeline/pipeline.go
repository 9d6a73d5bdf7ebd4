// Package pipeline drives the agent stages of a conversation. Every stage
// is an external call bounded by a timeout, traced and timed.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jheun66/novel-mvp/server/domain"
	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
	"github.com/jheun66/novel-mvp/server/internal/metrics"
)

// DefaultTimeout bounds each collaborator call
const DefaultTimeout = 30 * time.Second

// Stage names used for spans, metrics and logs
const (
	StageDialogue   = "dialogue"
	StageEmotion    = "emotion"
	StageStory      = "story"
	StageTranscribe = "transcribe"
	StageSynthesize = "synthesize"
)

const tracerName = "github.com/jheun66/novel-mvp/server/internal/pipeline"

// Collaborators are the external services the stages call
type Collaborators struct {
	Dialogue repositories.DialogueAgent
	Emotion  repositories.EmotionAnalyzer
	Story    repositories.StoryGenerator
	STT      repositories.SpeechToText
	TTS      repositories.TextToSpeech
}

// StoryRequest is the input of the story run
type StoryRequest struct {
	Transcript  []entities.Turn
	Preferences entities.UserPreferences
}

// StoryResult is the output of the story run
type StoryResult struct {
	Emotion entities.Emotion
	Story   repositories.StoryOutput
	Run     Run
}

// Pipeline runs the stages for one request at a time per caller
type Pipeline struct {
	c           Collaborators
	timeout     time.Duration
	logger      *zap.Logger
	tracer      trace.Tracer
	storyRunner *Runner[storyState]
}

// New creates a pipeline; timeout <= 0 selects DefaultTimeout
func New(c Collaborators, timeout time.Duration, logger *zap.Logger) *Pipeline {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &Pipeline{
		c:       c,
		timeout: timeout,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
	p.storyRunner = NewRunner[storyState]("story", logger,
		emotionStep{p: p},
		storyStep{p: p},
	)
	return p
}

// Dialogue runs the dialogue stage for one user turn
func (p *Pipeline) Dialogue(ctx context.Context, in repositories.DialogueInput) (repositories.DialogueOutput, error) {
	out, err := call(ctx, p, StageDialogue, func(ctx context.Context) (repositories.DialogueOutput, error) {
		return p.c.Dialogue.Respond(ctx, in)
	}, attribute.Int("dialogue.history_turns", len(in.History)))
	if err != nil {
		return out, domain.NewCollaboratorError(domain.CodeDialogueFailed, "dialogue failed", err)
	}
	if strings.TrimSpace(out.Reply) == "" {
		return out, domain.NewCollaboratorError(domain.CodeDialogueFailed, "dialogue returned an empty reply", nil)
	}
	return out, nil
}

// Story runs emotion analysis then story generation, strictly in that order
func (p *Pipeline) Story(ctx context.Context, req StoryRequest) (StoryResult, error) {
	state := storyState{req: req}
	run, err := p.storyRunner.Execute(ctx, &state)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return StoryResult{Run: run}, de
		}
		return StoryResult{Run: run}, domain.NewCollaboratorError(domain.CodeStoryFailed, "story generation failed", err)
	}
	return StoryResult{Emotion: state.emotion, Story: state.story, Run: run}, nil
}

// Transcribe converts recorded audio to text
func (p *Pipeline) Transcribe(ctx context.Context, data []byte, cfg repositories.AudioConfig) (string, error) {
	text, err := call(ctx, p, StageTranscribe, func(ctx context.Context) (string, error) {
		return p.c.STT.TranscribeAudio(ctx, data, cfg)
	}, attribute.Int("audio.bytes", len(data)), attribute.String("audio.format", cfg.Encoding))
	if err != nil {
		return "", domain.NewCollaboratorError(domain.CodeTranscriptionFailed, "transcription failed", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.NewCollaboratorError(domain.CodeTranscriptionFailed, "no speech recognized", nil)
	}
	return text, nil
}

// Synthesize converts text to speech in the given emotional tone
func (p *Pipeline) Synthesize(ctx context.Context, text, emotion string) (repositories.SpeechAudio, error) {
	audio, err := call(ctx, p, StageSynthesize, func(ctx context.Context) (repositories.SpeechAudio, error) {
		return p.c.TTS.SynthesizeSpeech(ctx, text, emotion)
	}, attribute.Int("tts.chars", len(text)), attribute.String("tts.emotion", emotion))
	if err != nil {
		return audio, domain.NewCollaboratorError(domain.CodeSynthesisFailed, "speech synthesis failed", err)
	}
	return audio, nil
}

type result[T any] struct {
	val T
	err error
}

// call runs fn under the stage timeout. The timeout holds even when fn
// ignores its context.
func call[T any](ctx context.Context, p *Pipeline, stage string, fn func(context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "pipeline."+stage, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	}()

	var res result[T]
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	elapsed := time.Since(start)
	if res.err != nil {
		metrics.StageDuration.WithLabelValues(stage, "error").Observe(elapsed.Seconds())
		span.RecordError(res.err)
		span.SetStatus(codes.Error, stage+" failed")
		p.logger.Warn("Stage failed",
			zap.String("stage", stage),
			zap.Duration("duration", elapsed),
			zap.Error(res.err))
		return res.val, res.err
	}

	metrics.StageDuration.WithLabelValues(stage, "ok").Observe(elapsed.Seconds())
	span.SetStatus(codes.Ok, "")
	return res.val, nil
}

type storyState struct {
	req     StoryRequest
	emotion entities.Emotion
	story   repositories.StoryOutput
}

type emotionStep struct{ p *Pipeline }

func (emotionStep) Name() string { return StageEmotion }

func (s emotionStep) Execute(ctx context.Context, st *storyState) error {
	emotion, err := call(ctx, s.p, StageEmotion, func(ctx context.Context) (entities.Emotion, error) {
		return s.p.c.Emotion.Analyze(ctx, repositories.EmotionInput{Transcript: st.req.Transcript})
	}, attribute.Int("story.turns", len(st.req.Transcript)))
	if err != nil {
		return domain.NewCollaboratorError(domain.CodeStoryFailed, "emotion analysis failed", err)
	}
	if emotion.Primary == "" {
		emotion.Primary = "neutral"
	}
	st.emotion = emotion
	return nil
}

type storyStep struct{ p *Pipeline }

func (storyStep) Name() string { return StageStory }

func (s storyStep) Execute(ctx context.Context, st *storyState) error {
	story, err := call(ctx, s.p, StageStory, func(ctx context.Context) (repositories.StoryOutput, error) {
		return s.p.c.Story.Generate(ctx, repositories.StoryInput{
			Transcript:  st.req.Transcript,
			Emotion:     st.emotion,
			Preferences: st.req.Preferences,
		})
	}, attribute.String("story.emotion", st.emotion.Primary))
	if err != nil {
		return domain.NewCollaboratorError(domain.CodeStoryFailed, "story generation failed", err)
	}
	if strings.TrimSpace(story.Content) == "" {
		return domain.NewCollaboratorError(domain.CodeStoryFailed, "story generator returned no content", nil)
	}
	st.story = story
	return nil
}
