package stt

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
)

func TestMedicalInput(t *testing.T) {
	in := medicalInput(StreamConfig{
		LanguageCode:   "en-US",
		SampleRateHz:   16000,
		Encoding:       "pcm",
		SessionID:      "3f1c2b8e-0000-4000-8000-000000000000",
		VocabularyName: "clinic-terms",
		Specialty:      "PRIMARYCARE",
		Type:           "DICTATION",
	})

	if in.LanguageCode != types.LanguageCodeEnUs {
		t.Errorf("LanguageCode = %q", in.LanguageCode)
	}
	if in.MediaEncoding != types.MediaEncodingPcm {
		t.Errorf("MediaEncoding = %q", in.MediaEncoding)
	}
	if aws.ToInt32(in.MediaSampleRateHertz) != 16000 {
		t.Errorf("MediaSampleRateHertz = %d", aws.ToInt32(in.MediaSampleRateHertz))
	}
	if in.Specialty != types.SpecialtyPrimarycare || in.Type != types.TypeDictation {
		t.Errorf("Specialty/Type = %q/%q", in.Specialty, in.Type)
	}
	if aws.ToString(in.SessionId) == "" || aws.ToString(in.VocabularyName) != "clinic-terms" {
		t.Errorf("SessionId/VocabularyName = %q/%q", aws.ToString(in.SessionId), aws.ToString(in.VocabularyName))
	}
}

func TestMedicalInput_NoVocabulary(t *testing.T) {
	in := medicalInput(StreamConfig{LanguageCode: "en-US", SampleRateHz: 16000, Encoding: "pcm"})
	if in.VocabularyName != nil {
		t.Errorf("VocabularyName = %q, want nil", aws.ToString(in.VocabularyName))
	}
	if in.SessionId != nil {
		t.Errorf("SessionId = %q, want nil", aws.ToString(in.SessionId))
	}
}

func TestMedicalEvent(t *testing.T) {
	msg := &types.MedicalTranscriptResultStreamMemberTranscriptEvent{
		Value: types.MedicalTranscriptEvent{
			Transcript: &types.MedicalTranscript{
				Results: []types.MedicalResult{
					{
						IsPartial:    true,
						Alternatives: []types.MedicalAlternative{{Transcript: aws.String("hel")}},
					},
					{
						IsPartial:    false,
						Alternatives: []types.MedicalAlternative{{Transcript: aws.String("hello")}},
					},
				},
			},
		},
	}

	ev, ok := medicalEvent(msg)
	if !ok {
		t.Fatal("medicalEvent reported not ok for a transcript event")
	}
	if len(ev.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(ev.Results))
	}
	if !ev.Results[0].IsPartial || ev.Results[0].Alternatives[0].Transcript != "hel" {
		t.Errorf("Results[0] = %+v", ev.Results[0])
	}
	if ev.Results[1].IsPartial || ev.Results[1].Alternatives[0].Transcript != "hello" {
		t.Errorf("Results[1] = %+v", ev.Results[1])
	}
}

func TestMedicalEvent_MissingTranscript(t *testing.T) {
	msg := &types.MedicalTranscriptResultStreamMemberTranscriptEvent{}
	if _, ok := medicalEvent(msg); ok {
		t.Error("event without transcript should not map")
	}
	if _, ok := medicalEvent(nil); ok {
		t.Error("nil message should not map")
	}
}
