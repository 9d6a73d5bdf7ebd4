package stt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jheun66/novel-mvp/server/domain/repositories"
	"github.com/jheun66/novel-mvp/server/internal/audio"
)

var (
	_ repositories.SpeechToText = (*GoogleSpeechToText)(nil)
	_ repositories.SpeechToText = (*WhisperSpeechToText)(nil)
	_ repositories.SpeechToText = (*MockSpeechToText)(nil)
)

func TestWhisperSpeechToText_TranscribeAudio(t *testing.T) {
	pcm := make([]byte, 320)

	var gotPath, gotLanguage, gotModel, gotFilename string
	var gotFile []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		gotFile, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "  오늘 바다에 갔어요 ", "language": "ko"})
	}))
	defer server.Close()

	whisper, err := NewWhisperSpeechToText(WhisperConfig{BaseURL: server.URL + "/v1/"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	text, err := whisper.TranscribeAudio(context.Background(), pcm, repositories.AudioConfig{
		SampleRate: 16000,
		Encoding:   "pcm16",
		Channels:   1,
	})
	require.NoError(t, err)

	assert.Equal(t, "오늘 바다에 갔어요", text)
	assert.Equal(t, "/v1/audio/transcriptions", gotPath)
	assert.Equal(t, "ko", gotLanguage)
	assert.Equal(t, "whisper-1", gotModel)
	assert.Equal(t, "audio.wav", gotFilename)
	assert.True(t, audio.IsWAV(gotFile))
	assert.Len(t, gotFile, 44+len(pcm))
}

func TestWhisperSpeechToText_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"File too large"}`, http.StatusRequestEntityTooLarge)
	}))
	defer server.Close()

	whisper, err := NewWhisperSpeechToText(WhisperConfig{BaseURL: server.URL + "/v1"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = whisper.TranscribeAudio(context.Background(), []byte{1, 2}, repositories.AudioConfig{Encoding: "pcm16"})
	assert.Error(t, err)
}

func TestNewWhisperSpeechToText_RequiresBaseURL(t *testing.T) {
	_, err := NewWhisperSpeechToText(WhisperConfig{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestUploadFile(t *testing.T) {
	wav := audio.WrapWAV([]byte{1, 2, 3, 4}, 16000, 1)

	tests := []struct {
		name     string
		data     []byte
		encoding string
		wantName string
		wantWAV  bool
	}{
		{"raw pcm is wrapped", []byte{1, 2, 3, 4}, "pcm16", "audio.wav", true},
		{"wav passes through", wav, "pcm16", "audio.wav", true},
		{"webm keeps container", []byte{0x1a, 0x45}, "webm", "audio.webm", false},
		{"mp3 keeps container", []byte{0xff, 0xfb}, "mp3", "audio.mp3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, name := uploadFile(tt.data, repositories.AudioConfig{Encoding: tt.encoding, SampleRate: 16000})
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantWAV, audio.IsWAV(data))
		})
	}

	data, _ := uploadFile(wav, repositories.AudioConfig{Encoding: "pcm16"})
	assert.Equal(t, wav, data, "existing WAV must not be wrapped twice")
}

func TestGetAudioEncoding(t *testing.T) {
	tests := []struct {
		encoding string
		want     speechpb.RecognitionConfig_AudioEncoding
		wantErr  bool
	}{
		{"pcm16", speechpb.RecognitionConfig_LINEAR16, false},
		{"WAV", speechpb.RecognitionConfig_LINEAR16, false},
		{"webm", speechpb.RecognitionConfig_WEBM_OPUS, false},
		{"opus", speechpb.RecognitionConfig_OGG_OPUS, false},
		{"mp3", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, true},
	}

	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			got, err := getAudioEncoding(tt.encoding)
			if (err != nil) != tt.wantErr {
				t.Fatalf("getAudioEncoding() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecognizeRequest(t *testing.T) {
	req, err := recognizeRequest([]byte{1, 2}, repositories.AudioConfig{SampleRate: 16000, Encoding: "pcm16"})
	require.NoError(t, err)

	assert.Equal(t, int32(16000), req.Config.SampleRateHertz)
	assert.Equal(t, int32(1), req.Config.AudioChannelCount)
	assert.Equal(t, "ko-KR", req.Config.LanguageCode)
	assert.Equal(t, []byte{1, 2}, req.Audio.GetContent())

	_, err = recognizeRequest(nil, repositories.AudioConfig{Encoding: "aiff"})
	assert.Error(t, err)
}

func TestLanguageCode(t *testing.T) {
	assert.Equal(t, "ko-KR", languageCode(""))
	assert.Equal(t, "en-US", languageCode("EN"))
	assert.Equal(t, "fr-FR", languageCode("fr-FR"))
}

func TestMockSpeechToText(t *testing.T) {
	mock := NewMockSpeechToText(zaptest.NewLogger(t))

	text, err := mock.TranscribeAudio(context.Background(), make([]byte, 300), repositories.AudioConfig{})
	require.NoError(t, err)
	assert.Equal(t, "I recorded 300 bytes of audio today", text)

	_, err = mock.TranscribeAudio(context.Background(), nil, repositories.AudioConfig{})
	assert.Error(t, err)
}
