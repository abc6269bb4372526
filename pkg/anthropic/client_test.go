package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSDKMessages(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
		{Role: "unknown", Content: "defaults to user"},
	}

	sdkMsgs := toSDKMessages(msgs)
	require.Len(t, sdkMsgs, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, sdkMsgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, sdkMsgs[1].Role)
	assert.Equal(t, sdk.MessageParamRoleUser, sdkMsgs[2].Role)
}

func TestToSDKSystemBlocks(t *testing.T) {
	sdkBlocks := toSDKSystemBlocks([]SystemBlock{{Text: "a"}, {Text: "b"}})
	require.Len(t, sdkBlocks, 2)
	assert.Equal(t, "a", sdkBlocks[0].Text)
	assert.Equal(t, "b", sdkBlocks[1].Text)
}

func TestToSDKParams_OmitsEmptyOptionals(t *testing.T) {
	params := toSDKParams(MessageRequest{Model: "m", MaxTokens: 10, Messages: []Message{{Role: "user", Content: "x"}}})
	assert.Empty(t, params.System)
	assert.False(t, params.Temperature.Valid())
	assert.Equal(t, int64(10), params.MaxTokens)
}

func TestFromSDKMessage_EmptyContent(t *testing.T) {
	resp := fromSDKMessage(&sdk.Message{ID: "msg_empty"})
	assert.Equal(t, "msg_empty", resp.ID)
	assert.Empty(t, resp.Content)
	assert.Empty(t, resp.Text())
}

func TestMessageResponse_TextSkipsNonText(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "one "},
		{Type: "thinking", Text: "hidden"},
		{Type: "text", Text: "two"},
	}}
	assert.Equal(t, "one two", resp.Text())
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	assert.NotNil(t, NewClient("key", ""))
	assert.NotNil(t, NewClient("key", "http://localhost:1"))
}
