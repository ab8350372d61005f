package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/jauapai/jauap/internal/model"
)

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(texts))
	for _, text := range texts {
		parts = append(parts, &genai.Part{Text: text})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func collect(out <-chan model.Fragment) []model.Fragment {
	var frags []model.Fragment
	for frag := range out {
		frags = append(frags, frag)
	}
	return frags
}

func TestPumpStream_PreservesEmissionOrder(t *testing.T) {
	stream := func(yield func(*genai.GenerateContentResponse, error) bool) {
		if !yield(textResponse("Hel"), nil) {
			return
		}
		yield(textResponse("lo"), nil)
	}
	out := make(chan model.Fragment, 4)
	pumpStream(context.Background(), stream, out)

	frags := collect(out)
	require.Len(t, frags, 2)
	require.Equal(t, model.FragmentText, frags[0].Kind)
	require.Equal(t, "Hel", frags[0].Text)
	require.Equal(t, "lo", frags[1].Text)
}

func TestPumpStream_MidStreamErrorYieldsTrailingErrorFragment(t *testing.T) {
	stream := func(yield func(*genai.GenerateContentResponse, error) bool) {
		if !yield(textResponse("partial "), nil) {
			return
		}
		yield(nil, errors.New("quota exceeded"))
	}
	out := make(chan model.Fragment, 4)
	pumpStream(context.Background(), stream, out)

	frags := collect(out)
	require.Len(t, frags, 2)
	require.Equal(t, "partial ", frags[0].Text)
	require.Equal(t, model.FragmentError, frags[1].Kind)
	require.Equal(t, streamErrorText, frags[1].Text)
}

func TestPumpStream_CancellationStopsWithoutErrorFragment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := func(yield func(*genai.GenerateContentResponse, error) bool) {
		if !yield(textResponse("one"), nil) {
			return
		}
		cancel()
		yield(nil, context.Canceled)
	}
	out := make(chan model.Fragment, 4)
	pumpStream(ctx, stream, out)

	frags := collect(out)
	require.Len(t, frags, 1)
	require.Equal(t, "one", frags[0].Text)
}

func TestExtractFragments_SkipsThoughtAndEmptyParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{Text: "visible"},
			{Text: "hidden", Thought: true},
			{Text: ""},
			nil,
		}}}},
	}
	frags := extractFragments(resp)
	require.Len(t, frags, 1)
	require.Equal(t, "visible", frags[0].Text)
}

func TestExtractFragments_NilAndEmptyResponses(t *testing.T) {
	require.Empty(t, extractFragments(nil))
	require.Empty(t, extractFragments(&genai.GenerateContentResponse{}))
	require.Empty(t, extractFragments(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}))
}

func TestToGenaiContents_RolesAndSystemExtraction(t *testing.T) {
	contents, system := toGenaiContents([]model.Message{
		{Role: model.RoleSystem, Content: "нұсқаулық"},
		{Role: model.RoleUser, Content: "сұрақ"},
		{Role: model.RoleAssistant, Content: "жауап"},
		{Role: model.RoleUser, Content: "тағы сұрақ"},
	})
	require.Equal(t, "нұсқаулық", system)
	require.Len(t, contents, 3)
	require.Equal(t, genai.RoleUser, contents[0].Role)
	require.Equal(t, genai.RoleModel, contents[1].Role)
	require.Equal(t, genai.RoleUser, contents[2].Role)
}
