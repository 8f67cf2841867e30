package stt

import (
	"context"
	"fmt"
	"iter"
	"log"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
)

// AWSMedicalStreamer implements Streamer with Amazon Transcribe Medical
// streaming. Region and credentials come from the default AWS chain.
type AWSMedicalStreamer struct {
	client *transcribestreaming.Client
	logger *log.Logger
}

var _ Streamer = (*AWSMedicalStreamer)(nil)

// NewAWSMedicalStreamer loads the AWS configuration for region and creates a
// streaming client.
func NewAWSMedicalStreamer(ctx context.Context, region string, logger *log.Logger) (*AWSMedicalStreamer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &AWSMedicalStreamer{
		client: transcribestreaming.NewFromConfig(cfg),
		logger: logger,
	}, nil
}

func medicalInput(sc StreamConfig) *transcribestreaming.StartMedicalStreamTranscriptionInput {
	in := &transcribestreaming.StartMedicalStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(sc.LanguageCode),
		MediaEncoding:        types.MediaEncoding(sc.Encoding),
		MediaSampleRateHertz: aws.Int32(int32(sc.SampleRateHz)),
		Specialty:            types.Specialty(sc.Specialty),
		Type:                 types.Type(sc.Type),
	}
	if sc.SessionID != "" {
		in.SessionId = aws.String(sc.SessionID)
	}
	if sc.VocabularyName != "" {
		in.VocabularyName = aws.String(sc.VocabularyName)
	}
	return in
}

// medicalEvent maps an SDK result stream message to an Event. Messages that
// are not transcript events report false.
func medicalEvent(msg types.MedicalTranscriptResultStream) (Event, bool) {
	te, ok := msg.(*types.MedicalTranscriptResultStreamMemberTranscriptEvent)
	if !ok || te.Value.Transcript == nil {
		return Event{}, false
	}

	var ev Event
	for _, r := range te.Value.Transcript.Results {
		result := Result{IsPartial: r.IsPartial}
		for _, alt := range r.Alternatives {
			result.Alternatives = append(result.Alternatives, Alternative{Transcript: aws.ToString(alt.Transcript)})
		}
		ev.Results = append(ev.Results, result)
	}
	return ev, true
}

// StartStream opens a medical transcription stream and starts sending audio
// events pulled from the sequence.
func (a *AWSMedicalStreamer) StartStream(ctx context.Context, sc StreamConfig, audio iter.Seq[[]byte]) (Stream, error) {
	out, err := a.client.StartMedicalStreamTranscription(ctx, medicalInput(sc))
	if err != nil {
		return nil, fmt.Errorf("start medical stream transcription: %w", err)
	}

	s := &awsMedicalStream{
		es:     out.GetStream(),
		events: make(chan Event, 100),
		done:   make(chan struct{}),
		logger: a.logger,
	}

	goSafe(a.logger, "aws read loop", s.readLoop, s.fail)
	goSafe(a.logger, "aws write loop", func() { s.writeLoop(ctx, audio) }, s.fail)

	return s, nil
}

type awsMedicalStream struct {
	es        *transcribestreaming.StartMedicalStreamTranscriptionEventStream
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	err       error
	logger    *log.Logger
}

func (s *awsMedicalStream) Events() <-chan Event { return s.events }

func (s *awsMedicalStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *awsMedicalStream) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *awsMedicalStream) fail(err error) {
	s.setErr(err)
	_ = s.Close()
}

func (s *awsMedicalStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.es.Close()
	})
	return err
}

// writeLoop sends audio events until the sequence ends, then closes the send
// side so the service can finish the transcript.
func (s *awsMedicalStream) writeLoop(ctx context.Context, audio iter.Seq[[]byte]) {
	for chunk := range audio {
		err := s.es.Send(ctx, &types.AudioStreamMemberAudioEvent{
			Value: types.AudioEvent{AudioChunk: chunk},
		})
		if err != nil {
			s.fail(fmt.Errorf("send audio event: %w", err))
			return
		}
	}
	if err := s.es.Writer.Close(); err != nil {
		s.logger.Printf("aws: failed to close audio stream: %v", err)
	}
}

func (s *awsMedicalStream) readLoop() {
	defer close(s.events)

	for msg := range s.es.Events() {
		ev, ok := medicalEvent(msg)
		if !ok {
			s.logger.Printf("aws: ignoring unknown result stream message %T", msg)
			continue
		}
		select {
		case <-s.done:
			return
		case s.events <- ev:
		}
	}
	if err := s.es.Err(); err != nil {
		s.setErr(err)
	}
}
