package contracts

import (
	"encoding/json"
	"testing"

	"github.com/gauthierbraillon/threadlens/internal/llm"
	"github.com/gauthierbraillon/threadlens/internal/thread"
)

// ChatCompletionEnvelopeContract is a response in the shape an
// OpenAI-compatible chat-completions endpoint returns. The analysis JSON
// travels as a string in choices[0].message.content.
const ChatCompletionEnvelopeContract = `{
  "id": "chatcmpl-abc123",
  "object": "chat.completion",
  "created": 1717000000,
  "model": "gpt-4",
  "choices": [
    {
      "index": 0,
      "message": {
        "role": "assistant",
        "content": "{\"summary\":\"Readers are split.\",\"categories\":[{\"name\":\"Support\",\"icon\":\"👍\",\"comments\":[{\"id\":\"1001\"}]},{\"name\":\"Bot/Spam\",\"comments\":[{\"id\":\"1002\"}]}],\"filteredCount\":1,\"analyzedCount\":2}"
      },
      "finish_reason": "stop"
    }
  ],
  "usage": {"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 160}
}`

// TestChatCompletionRequest_MatchesContract validates that the request body
// carries the fields a chat-completions endpoint requires.
func TestChatCompletionRequest_MatchesContract(t *testing.T) {
	builder := llm.NewBuilder(llm.Settings{Endpoint: "https://api.openai.com", APIKey: "sk-test"})

	req, err := builder.Build([]thread.Comment{
		thread.NewComment("1001", "This is exactly what I needed", "alice", 10, 2, 1, 500),
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if req.URL != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("unexpected endpoint: %s", req.URL)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}

	requiredFields := []string{"model", "messages", "temperature", "max_tokens"}
	for _, field := range requiredFields {
		if _, exists := body[field]; !exists {
			t.Errorf("request is missing field %q", field)
		}
	}

	messages, ok := body["messages"].([]interface{})
	if !ok || len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", body["messages"])
	}
	for i, role := range []string{"system", "user"} {
		msg := messages[i].(map[string]interface{})
		if msg["role"] != role {
			t.Errorf("message %d role: got %v, want %s", i, msg["role"], role)
		}
		if _, ok := msg["content"].(string); !ok {
			t.Errorf("message %d content must be a string", i)
		}
	}

	if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("unexpected authorization header: %q", got)
	}
}

// TestChatCompletionEnvelope_ContentIsAnalysisJSON validates that the
// contract's message content is itself the analysis object.
func TestChatCompletionEnvelope_ContentIsAnalysisJSON(t *testing.T) {
	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(ChatCompletionEnvelopeContract), &envelope); err != nil {
		t.Fatalf("contract is not valid JSON: %v", err)
	}
	if len(envelope.Choices) == 0 {
		t.Fatal("contract has no choices")
	}

	var analysis map[string]interface{}
	if err := json.Unmarshal([]byte(envelope.Choices[0].Message.Content), &analysis); err != nil {
		t.Fatalf("message content should be analysis JSON: %v", err)
	}
	for _, field := range []string{"summary", "categories", "filteredCount", "analyzedCount"} {
		if _, exists := analysis[field]; !exists {
			t.Errorf("analysis is missing field %q", field)
		}
	}
}
