// Command wsclient drives a story session from the terminal.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/internal/audio"
	"github.com/jheun66/novel-mvp/server/internal/auth"
	"github.com/jheun66/novel-mvp/server/internal/protocol"
)

const replyTimeout = 90 * time.Second

type options struct {
	url          string
	token        string
	secret       string
	issuer       string
	userID       string
	language     string
	frameAuth    bool
	audioDir     string
	conversation string
	verbose      bool
}

func main() {
	opts := &options{}
	var logger *zap.Logger

	rootCmd := &cobra.Command{
		Use:   "wsclient",
		Short: "Talk to the story session server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.verbose {
				logger, err = zap.NewDevelopment()
			} else {
				cfg := zap.NewDevelopmentConfig()
				cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
				logger, err = cfg.Build()
			}
			return err
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.url, "url", "ws://localhost:8080/ws", "session endpoint")
	flags.StringVar(&opts.token, "token", "", "bearer token; minted from --secret when empty")
	flags.StringVar(&opts.secret, "secret", os.Getenv("JWT_SECRET"), "JWT secret used to mint a token")
	flags.StringVar(&opts.issuer, "issuer", os.Getenv("JWT_ISSUER"), "JWT issuer used to mint a token")
	flags.StringVar(&opts.userID, "user", "demo-user", "user id of a minted token")
	flags.StringVar(&opts.language, "language", "en", "language preference of a minted token")
	flags.BoolVar(&opts.frameAuth, "frame-auth", false, "authenticate with an AuthRequest frame instead of a header")
	flags.StringVar(&opts.audioDir, "audio-dir", "audio_responses", "where received audio is written; empty disables")
	flags.StringVar(&opts.conversation, "conversation", "", "conversation id; generated when empty")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		tokenCmd(opts),
		chatCmd(opts, &logger),
		streamCmd(opts, &logger),
		echoCmd(opts, &logger),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (o *options) resolveToken() (string, error) {
	if o.token != "" {
		return o.token, nil
	}
	if o.secret == "" {
		return "", fmt.Errorf("either --token or --secret is required")
	}
	v, err := auth.NewVerifier(o.secret, o.issuer)
	if err != nil {
		return "", err
	}
	return v.GenerateUserToken(o.userID, entities.UserPreferences{Language: o.language}, time.Hour)
}

func (o *options) conversationID() string {
	if o.conversation == "" {
		o.conversation = fmt.Sprintf("conv_%d", time.Now().Unix())
	}
	return o.conversation
}

func (o *options) connect(logger *zap.Logger) (*client, error) {
	token, err := o.resolveToken()
	if err != nil {
		return nil, err
	}
	return dial(o.url, token, o.frameAuth, o.audioDir, logger)
}

// tokenCmd prints a development token
func tokenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Mint a development token from --secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := opts.resolveToken()
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

// chatCmd sends each argument as a turn, then optionally asks for the story
func chatCmd(opts *options, logger **zap.Logger) *cobra.Command {
	var story bool
	cmd := &cobra.Command{
		Use:   "chat [turn...]",
		Short: "Send text turns and optionally request the story",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(*logger)
			if err != nil {
				return err
			}
			defer c.close()

			convID := opts.conversationID()
			for _, text := range args {
				if err := c.send(protocol.TextInput{Text: text, ConversationID: convID}); err != nil {
					return err
				}
				if _, err := c.await(protocol.TypeTextOutput, replyTimeout); err != nil {
					return err
				}
			}

			if !story {
				return nil
			}
			if err := c.send(protocol.GenerateStory{ConversationID: convID}); err != nil {
				return err
			}
			_, err = c.await(protocol.TypeStoryOutput, replyTimeout)
			return err
		},
	}
	cmd.Flags().BoolVar(&story, "story", false, "request the story after the turns")
	return cmd
}

// streamCmd uploads a PCM or WAV file as a chunked stream
func streamCmd(opts *options, logger **zap.Logger) *cobra.Command {
	var chunkSize, sampleRate int
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "stream <file>",
		Short: "Upload an audio file as AudioStreamChunk messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read audio file: %w", err)
			}
			format := protocol.DefaultAudioFormat
			if audio.IsWAV(data) || strings.HasSuffix(strings.ToLower(args[0]), ".wav") {
				format = "wav"
			}

			c, err := opts.connect(*logger)
			if err != nil {
				return err
			}
			defer c.close()

			convID := opts.conversationID()
			if err := c.send(protocol.AudioStreamStart{
				ConversationID: convID,
				SampleRate:     sampleRate,
				Format:         format,
				Channels:       protocol.DefaultChannels,
			}); err != nil {
				return err
			}

			chunks := 0
			for start := 0; start < len(data); start += chunkSize {
				end := min(start+chunkSize, len(data))
				if err := c.send(protocol.AudioStreamChunk{
					ConversationID: convID,
					AudioData:      data[start:end],
					SequenceNumber: chunks,
				}); err != nil {
					return err
				}
				chunks++
				time.Sleep(interval)
			}
			(*logger).Info("Upload finished", zap.Int("chunks", chunks), zap.Int("bytes", len(data)))

			if err := c.send(protocol.AudioStreamEnd{ConversationID: convID, TotalChunks: chunks}); err != nil {
				return err
			}
			_, err = c.await(protocol.TypeTextOutput, replyTimeout)
			return err
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 3200, "bytes per chunk")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", protocol.DefaultSampleRate, "sample rate of the file")
	cmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "delay between chunks")
	return cmd
}

// echoCmd checks the audio round trip
func echoCmd(opts *options, logger **zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "echo <file>",
		Short: "Send audio with AudioEchoTest and save what comes back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read audio file: %w", err)
			}

			c, err := opts.connect(*logger)
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.send(protocol.AudioEchoTest{AudioData: data, ConversationID: opts.conversationID()}); err != nil {
				return err
			}
			msg, err := c.await(protocol.TypeAudioOutput, replyTimeout)
			if err != nil {
				return err
			}
			if out := msg.(protocol.AudioOutput); len(out.AudioData) != len(data) {
				return fmt.Errorf("echo returned %d bytes, sent %d", len(out.AudioData), len(data))
			}
			return nil
		},
	}
}
