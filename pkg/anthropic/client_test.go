package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func TestMessageResponseText(t *testing.T) {
	t.Parallel()

	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: `{"email":`},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: `null}`},
	}}
	assert.Equal(t, `{"email":null}`, resp.Text())

	empty := &MessageResponse{}
	assert.Empty(t, empty.Text())
}

func TestEstimateCost_KnownModel(t *testing.T) {
	t.Parallel()

	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := usage.EstimateCost("claude-sonnet-4-5-20250929")
	assert.InDelta(t, 18.00, cost, 0.001)
}

func TestEstimateCost_CacheTokens(t *testing.T) {
	t.Parallel()

	usage := TokenUsage{
		CacheCreationInputTokens: 1_000_000,
		CacheReadInputTokens:     1_000_000,
	}
	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	// write 0.80*1.25 + read 0.80*0.1
	assert.InDelta(t, 1.08, cost, 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	t.Parallel()

	usage := TokenUsage{InputTokens: 500, OutputTokens: 500}
	assert.Zero(t, usage.EstimateCost("some-future-model"))
}

func TestMockClient(t *testing.T) {
	t.Parallel()

	m := &MockClient{}
	want := &MessageResponse{ID: "msg_1", Content: []ContentBlock{{Type: "text", Text: "{}"}}}
	m.On("CreateMessage", mock.Anything, mock.Anything).Return(want, nil)

	got, err := m.CreateMessage(context.Background(), MessageRequest{Model: "claude-sonnet-4-5-20250929"})
	assert.NoError(t, err)
	assert.Equal(t, "msg_1", got.ID)
	m.AssertExpectations(t)
}
