package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Google streams audio to Cloud Speech-to-Text StreamingRecognize.
type Google struct {
	client *speech.Client
}

func NewGoogle(ctx context.Context, credentialsFile string) (*Google, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Google{client: c}, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) Close() error { return g.client.Close() }

func (g *Google) StreamingRecognize(ctx context.Context, cfg Config, requests RequestSource) (ResponseStream, error) {
	stream, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("open streaming recognize: %w", err)
	}
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: googleStreamingConfig(cfg),
		},
	}); err != nil {
		return nil, fmt.Errorf("send streaming config: %w", err)
	}

	go func() {
		defer func() { _ = stream.CloseSend() }()
		for {
			req, ok := requests.Next()
			if !ok {
				return
			}
			err := stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: req.Audio},
			})
			if err != nil {
				// the real cause surfaces on Recv
				if !errors.Is(err, io.EOF) {
					log.Warn().Err(err).Str("backend", "google").Msg("send audio failed")
				}
				return
			}
		}
	}()

	return &googleStream{stream: stream}, nil
}

func googleStreamingConfig(cfg Config) *speechpb.StreamingRecognitionConfig {
	return &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(cfg.SampleRateHertz),
			LanguageCode:               cfg.LanguageCode,
			EnableAutomaticPunctuation: cfg.EnablePunctuation,
		},
		InterimResults: cfg.InterimResults,
	}
}

type googleStream struct {
	stream speechpb.Speech_StreamingRecognizeClient
}

func (s *googleStream) Recv() (*Response, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return nil, err
	}
	if resp.Error != nil && resp.Error.Code != int32(codes.OK) {
		return nil, status.ErrorProto(resp.Error)
	}
	return convertGoogleResponse(resp), nil
}

func convertGoogleResponse(resp *speechpb.StreamingRecognizeResponse) *Response {
	out := &Response{Results: make([]Result, 0, len(resp.Results))}
	for _, r := range resp.Results {
		res := Result{IsFinal: r.IsFinal}
		for _, a := range r.Alternatives {
			res.Alternatives = append(res.Alternatives, Alternative{Transcript: a.Transcript, Confidence: a.Confidence})
		}
		out.Results = append(out.Results, res)
	}
	return out
}

// IsQuotaError reports whether err is a backend quota or rate limit failure.
func IsQuotaError(err error) bool {
	return status.Code(err) == codes.ResourceExhausted
}
