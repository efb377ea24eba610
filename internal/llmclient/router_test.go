package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/mocks"
)

func setupRouter(t *testing.T) (*LLMRouter, *mocks.MockLLMClient, *mocks.MockLLMClient, *observer.ObservedLogs) {
	t.Helper()
	logger, logs := setupTestLogger(t)

	fastClient := new(mocks.MockLLMClient)
	powerfulClient := new(mocks.MockLLMClient)

	router, err := NewLLMRouter(logger, fastClient, powerfulClient)
	require.NoError(t, err)
	return router, fastClient, powerfulClient, logs
}

func TestNewLLMRouter_Failure_MissingClients(t *testing.T) {
	logger, _ := setupTestLogger(t)
	valid := new(mocks.MockLLMClient)

	tests := []struct {
		name     string
		fast     schemas.LLMClient
		powerful schemas.LLMClient
	}{
		{"Missing Fast Client", nil, valid},
		{"Missing Powerful Client", valid, nil},
		{"Missing Both Clients", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, err := NewLLMRouter(logger, tt.fast, tt.powerful)
			require.Error(t, err)
			assert.Nil(t, router)
			assert.Contains(t, err.Error(), "both fast and powerful tier clients must be provided")
		})
	}
}

func TestGenerate_Routing(t *testing.T) {
	ctx := context.Background()

	t.Run("fast tier", func(t *testing.T) {
		router, fast, powerful, logs := setupRouter(t)
		req := schemas.GenerationRequest{Tier: schemas.TierFast, UserPrompt: "p"}
		fast.On("Generate", ctx, req).Return("fast answer", nil).Once()

		out, err := router.Generate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "fast answer", out)
		fast.AssertExpectations(t)
		powerful.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "Routing LLM request", logs.All()[0].Message)
		assert.Equal(t, "fast", logs.All()[0].ContextMap()["tier"])
	})

	t.Run("powerful tier", func(t *testing.T) {
		router, fast, powerful, _ := setupRouter(t)
		req := schemas.GenerationRequest{Tier: schemas.TierPowerful}
		powerful.On("Generate", ctx, req).Return("deep answer", nil).Once()

		out, err := router.Generate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "deep answer", out)
		fast.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("empty tier defaults to fast", func(t *testing.T) {
		router, fast, _, _ := setupRouter(t)
		req := schemas.GenerationRequest{}
		fast.On("Generate", ctx, req).Return("ok", nil).Once()

		_, err := router.Generate(ctx, req)
		require.NoError(t, err)
		fast.AssertExpectations(t)
	})

	t.Run("unknown tier", func(t *testing.T) {
		router, _, _, _ := setupRouter(t)
		_, err := router.Generate(ctx, schemas.GenerationRequest{Tier: "enormous"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no LLM client configured for tier: enormous")
	})

	t.Run("client errors propagate", func(t *testing.T) {
		router, fast, _, _ := setupRouter(t)
		boom := errors.New("quota exceeded")
		fast.On("Generate", ctx, mock.Anything).Return("", boom).Once()

		_, err := router.Generate(ctx, schemas.GenerationRequest{Tier: schemas.TierFast})
		assert.ErrorIs(t, err, boom)
	})
}

func TestRouterClose(t *testing.T) {
	t.Run("closes each distinct client once", func(t *testing.T) {
		logger, _ := setupTestLogger(t)
		shared := new(mocks.MockLLMClient)
		shared.On("Close").Return(nil).Once()

		router, err := NewLLMRouter(logger, shared, shared)
		require.NoError(t, err)
		require.NoError(t, router.Close())
		shared.AssertNumberOfCalls(t, "Close", 1)
	})

	t.Run("joins close errors", func(t *testing.T) {
		router, fast, powerful, _ := setupRouter(t)
		fast.On("Close").Return(errors.New("fast broke"))
		powerful.On("Close").Return(nil)

		err := router.Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closing fast client: fast broke")
	})
}
