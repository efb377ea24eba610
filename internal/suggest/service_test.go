package suggest_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/mocks"
	"github.com/xkilldash9x/selfheal/internal/suggest"
)

func TestLLMService_Suggest(t *testing.T) {
	ctx := context.Background()
	req := suggest.Request{
		DOMContent:          submitDOM,
		FailedLocator:       "(css, #submit-btn)",
		ExceptionType:       "NoSuchElement",
		SelectorPreferences: []string{"data-testid", "id"},
	}

	t.Run("parses fenced reply", func(t *testing.T) {
		client := new(mocks.MockLLMClient)
		client.On("Generate", ctx, mock.MatchedBy(func(r schemas.GenerationRequest) bool {
			return r.Tier == schemas.TierPowerful &&
				r.Options.ForceJSONFormat &&
				strings.Contains(r.UserPrompt, "Broken Locator: (css, #submit-btn)") &&
				strings.Contains(r.UserPrompt, "Selector Priority Order: data-testid, id")
		})).Return("```json\n{\"candidates\":[{\"locator\":[\"css\",\"button[data-testid='submit-form']\"],\"confidence\":0.93,\"rationale\":\"test id\"}]}\n```", nil)

		svc := suggest.NewLLMService(client, zaptest.NewLogger(t))
		resp, err := svc.Suggest(ctx, req)
		require.NoError(t, err)
		require.Len(t, resp.Candidates, 1)
		assert.Equal(t, suggest.Proposal{
			Strategy:   schemas.StrategyCSS,
			Value:      "button[data-testid='submit-form']",
			Confidence: 0.93,
			Rationale:  "test id",
		}, resp.Candidates[0])
		client.AssertExpectations(t)
	})

	t.Run("malformed reply is empty", func(t *testing.T) {
		client := new(mocks.MockLLMClient)
		client.On("Generate", ctx, mock.Anything).Return("I could not find the element, sorry.", nil)

		resp, err := suggest.NewLLMService(client, zaptest.NewLogger(t)).Suggest(ctx, req)
		require.NoError(t, err)
		assert.Empty(t, resp.Candidates)
	})

	t.Run("client failure is returned", func(t *testing.T) {
		client := new(mocks.MockLLMClient)
		client.On("Generate", ctx, mock.Anything).Return("", errors.New("quota exceeded"))

		_, err := suggest.NewLLMService(client, zaptest.NewLogger(t)).Suggest(ctx, req)
		assert.ErrorContains(t, err, "suggestion request failed: quota exceeded")
	})

	t.Run("truncates large snapshots", func(t *testing.T) {
		big := req
		big.DOMContent = strings.Repeat("x", suggest.MaxPromptDOM*2)
		client := new(mocks.MockLLMClient)
		client.On("Generate", ctx, mock.MatchedBy(func(r schemas.GenerationRequest) bool {
			return len(r.UserPrompt) < suggest.MaxPromptDOM+500
		})).Return(`{"candidates":[]}`, nil)

		_, err := suggest.NewLLMService(client, zaptest.NewLogger(t)).Suggest(ctx, big)
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("truncation keeps multi-byte runes whole", func(t *testing.T) {
		wide := req
		// Three bytes per rune, so the byte limit lands inside one.
		wide.DOMContent = strings.Repeat("€", suggest.MaxPromptDOM)
		client := new(mocks.MockLLMClient)
		client.On("Generate", ctx, mock.MatchedBy(func(r schemas.GenerationRequest) bool {
			dom := r.UserPrompt[strings.Index(r.UserPrompt, "HTML Content:\n")+len("HTML Content:\n"):]
			return utf8.ValidString(r.UserPrompt) &&
				len(dom) <= suggest.MaxPromptDOM &&
				len(dom) > suggest.MaxPromptDOM-utf8.UTFMax
		})).Return(`{"candidates":[]}`, nil)

		_, err := suggest.NewLLMService(client, zaptest.NewLogger(t)).Suggest(ctx, wide)
		require.NoError(t, err)
		client.AssertExpectations(t)
	})
}

func TestLLMService_Classify(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.MockLLMClient)
	client.On("Generate", ctx, mock.MatchedBy(func(r schemas.GenerationRequest) bool {
		return r.Tier == schemas.TierFast
	})).Return("Timing.", nil).Once()
	client.On("Generate", ctx, mock.Anything).Return("flaky network", nil).Once()

	svc := suggest.NewLLMService(client, zaptest.NewLogger(t))
	label, err := svc.Classify(ctx, "Timeout: waited 10s")
	require.NoError(t, err)
	assert.Equal(t, suggest.LabelTiming, label)

	_, err = svc.Classify(ctx, "Timeout: waited 10s")
	assert.ErrorIs(t, err, suggest.ErrUnknownLabel)
}

func TestLLMService_Choose(t *testing.T) {
	ctx := context.Background()
	top := []schemas.Candidate{
		{Selector: "button[data-testid='submit-form']", Strategy: schemas.StrategyCSS, Confidence: 0.98},
		{Selector: "button#submit-button", Strategy: schemas.StrategyCSS, Confidence: 0.74},
	}

	tests := []struct {
		name    string
		reply   string
		want    suggest.Choice
		wantErr bool
	}{
		{"valid", `{"selected_index": 1, "rationale": "semantic id"}`, suggest.Choice{Index: 1, Rationale: "semantic id"}, false},
		{"fenced", "```\n{\"selected_index\": 0, \"rationale\": \"r\"}\n```", suggest.Choice{Index: 0, Rationale: "r"}, false},
		{"out of range", `{"selected_index": 2}`, suggest.Choice{}, true},
		{"missing index", `{"rationale": "none"}`, suggest.Choice{}, true},
		{"not json", `the first one`, suggest.Choice{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mocks.MockLLMClient)
			client.On("Generate", ctx, mock.Anything).Return(tt.reply, nil)

			got, err := suggest.NewLLMService(client, zaptest.NewLogger(t)).Choose(ctx, 0.8, top)
			if tt.wantErr {
				assert.ErrorIs(t, err, suggest.ErrBadChoice)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []suggest.Proposal
	}{
		{
			name: "array locator",
			raw:  `{"candidates":[{"locator":["xpath","//button[@id='go']"],"confidence":0.8,"rationale":"r"}]}`,
			want: []suggest.Proposal{{Strategy: schemas.StrategyXPath, Value: "//button[@id='go']", Confidence: 0.8, Rationale: "r"}},
		},
		{
			name: "object locator with selenium strategy name",
			raw:  `{"candidates":[{"locator":{"strategy":"By.CSS_SELECTOR","value":"#go"},"confidence":0.6}]}`,
			want: []suggest.Proposal{{Strategy: schemas.StrategyCSS, Value: "#go", Confidence: 0.6}},
		},
		{
			name: "flat fields default to css",
			raw:  `{"candidates":[{"selector":"[name='q']","confidence":0.5}]}`,
			want: []suggest.Proposal{{Strategy: schemas.StrategyCSS, Value: "[name='q']", Confidence: 0.5}},
		},
		{
			name: "confidence clamped",
			raw:  `{"candidates":[{"locator":["id","go"],"confidence":7},{"locator":["name","q"],"confidence":-1}]}`,
			want: []suggest.Proposal{
				{Strategy: schemas.StrategyID, Value: "go", Confidence: 1},
				{Strategy: schemas.StrategyName, Value: "q", Confidence: 0},
			},
		},
		{
			name: "unknown strategy and empty value dropped",
			raw:  `{"candidates":[{"locator":["link text","Go"]},{"locator":["css","  "]}]}`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := suggest.ParseResponse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Candidates)
		})
	}

	_, err := suggest.ParseResponse("not json")
	assert.Error(t, err)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, suggest.StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, suggest.StripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, suggest.StripCodeFences("  {\"a\":1}  "))
}

func TestParseLabel(t *testing.T) {
	for raw, want := range map[string]string{
		"stale":                     suggest.LabelStale,
		"INVALID_LOCATOR":           suggest.LabelInvalidLocator,
		"\"timing\" because it hung": suggest.LabelTiming,
	} {
		got, err := suggest.ParseLabel(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	_, err := suggest.ParseLabel("")
	assert.ErrorIs(t, err, suggest.ErrUnknownLabel)
}
