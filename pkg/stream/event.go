// Package stream decodes the line-delimited event stream emitted by AI CLIs
// in stream-json mode and renders it for humans.
package stream

import (
	"encoding/json"
	"errors"
	"strings"
)

// Kind tags a decoded event.
type Kind string

const (
	KindInit       Kind = "init"
	KindMessage    Kind = "message"
	KindToolUse    Kind = "tool_use"
	KindToolResult Kind = "tool_result"
	KindError      Kind = "error"
	KindResult     Kind = "result"
	KindUnknown    Kind = "unknown"
)

// ErrMalformed is returned for lines that are not a JSON object with a type.
var ErrMalformed = errors.New("malformed stream line")

// Event is one decoded stream record.
type Event struct {
	Kind      Kind
	Role      string         // message: user or assistant
	Text      string         // message text, error message, or final result
	Delta     bool           // message is a fragment of a longer message
	Model     string         // init
	ToolName  string         // tool_use
	ToolID    string         // tool_use, tool_result
	ToolInput map[string]any // tool_use arguments
	Failed    bool           // tool_result, result, error severity "error"
	Stats     *Stats         // result
	RawType   string         // original "type" field
}

// Stats is the token accounting reported by the final result event.
type Stats struct {
	InputTokens  int
	OutputTokens int
	CachedTokens int
	ToolCalls    int
	DurationMs   int
	CostUSD      float64
}

// wireEvent is the union of the gemini and claude stream-json schemas.
type wireEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	// gemini
	Role       string          `json:"role,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	Delta      bool            `json:"delta,omitempty"`
	Model      string          `json:"model,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolID     string          `json:"tool_id,omitempty"`
	Parameters map[string]any  `json:"parameters,omitempty"`
	Status     string          `json:"status,omitempty"`
	Output     string          `json:"output,omitempty"`
	Severity   string          `json:"severity,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
	Error      *wireError      `json:"error,omitempty"`
	Stats      *wireStats      `json:"stats,omitempty"`

	// claude
	Result       string     `json:"result,omitempty"`
	IsError      bool       `json:"is_error,omitempty"`
	Usage        *wireUsage `json:"usage,omitempty"`
	TotalCostUSD float64    `json:"total_cost_usd,omitempty"`
	DurationMs   int        `json:"duration_ms,omitempty"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type wireStats struct {
	TotalTokens  int `json:"total_tokens"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	Cached       int `json:"cached"`
	DurationMs   int `json:"duration_ms"`
	ToolCalls    int `json:"tool_calls"`
}

type wireUsage struct {
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens"`
}

// claudeMessage is the "message" payload of claude assistant/user events.
type claudeMessage struct {
	Model   string        `json:"model"`
	Content []claudeBlock `json:"content"`
}

type claudeBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     map[string]any  `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Decode turns one line into zero or more events. A claude assistant line may
// carry several content blocks and therefore several events. Lines that are
// not JSON objects with a "type" field return ErrMalformed.
func Decode(line []byte) ([]Event, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, ErrMalformed
	}
	if w.Type == "" {
		return nil, ErrMalformed
	}

	switch w.Type {
	case "init":
		return []Event{{Kind: KindInit, Model: w.Model, RawType: w.Type}}, nil
	case "system":
		if w.Subtype == "init" {
			return []Event{{Kind: KindInit, Model: w.Model, RawType: w.Type}}, nil
		}
		return []Event{{Kind: KindUnknown, RawType: w.Type}}, nil
	case "message":
		return []Event{{
			Kind:    KindMessage,
			Role:    w.Role,
			Text:    rawString(w.Content),
			Delta:   w.Delta,
			RawType: w.Type,
		}}, nil
	case "tool_use":
		return []Event{{
			Kind:      KindToolUse,
			ToolName:  w.ToolName,
			ToolID:    w.ToolID,
			ToolInput: w.Parameters,
			RawType:   w.Type,
		}}, nil
	case "tool_result":
		ev := Event{
			Kind:    KindToolResult,
			ToolID:  w.ToolID,
			Text:    w.Output,
			Failed:  w.Status == "error",
			RawType: w.Type,
		}
		if w.Error != nil {
			ev.Failed = true
			ev.Text = w.Error.Message
		}
		return []Event{ev}, nil
	case "error":
		msg := rawString(w.Message)
		if msg == "" && w.Error != nil {
			msg = w.Error.Message
		}
		return []Event{{
			Kind:    KindError,
			Text:    msg,
			Failed:  w.Severity != "warning",
			RawType: w.Type,
		}}, nil
	case "result":
		return []Event{decodeResult(w)}, nil
	case "assistant", "user":
		return decodeClaudeMessage(w)
	default:
		return []Event{{Kind: KindUnknown, RawType: w.Type}}, nil
	}
}

func decodeResult(w wireEvent) Event {
	ev := Event{
		Kind:    KindResult,
		Text:    w.Result,
		Failed:  w.IsError || w.Status == "error",
		RawType: w.Type,
	}
	if w.Error != nil {
		ev.Failed = true
		ev.Text = w.Error.Message
	}
	switch {
	case w.Stats != nil:
		ev.Stats = &Stats{
			InputTokens:  w.Stats.InputTokens,
			OutputTokens: w.Stats.OutputTokens,
			CachedTokens: w.Stats.Cached,
			ToolCalls:    w.Stats.ToolCalls,
			DurationMs:   w.Stats.DurationMs,
		}
	case w.Usage != nil:
		ev.Stats = &Stats{
			InputTokens:  w.Usage.InputTokens,
			OutputTokens: w.Usage.OutputTokens,
			CachedTokens: w.Usage.CacheReadInputTokens,
			DurationMs:   w.DurationMs,
			CostUSD:      w.TotalCostUSD,
		}
	}
	return ev
}

func decodeClaudeMessage(w wireEvent) ([]Event, error) {
	if len(w.Message) == 0 {
		return []Event{{Kind: KindUnknown, RawType: w.Type}}, nil
	}
	var msg claudeMessage
	if err := json.Unmarshal(w.Message, &msg); err != nil {
		return nil, ErrMalformed
	}

	var events []Event
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text == "" {
				continue
			}
			events = append(events, Event{Kind: KindMessage, Role: w.Type, Text: block.Text, RawType: w.Type})
		case "tool_use":
			events = append(events, Event{
				Kind:      KindToolUse,
				ToolName:  block.Name,
				ToolID:    block.ID,
				ToolInput: block.Input,
				RawType:   w.Type,
			})
		case "tool_result":
			events = append(events, Event{
				Kind:    KindToolResult,
				ToolID:  block.ToolUseID,
				Text:    rawString(block.Content),
				Failed:  block.IsError,
				RawType: w.Type,
			})
		}
	}
	if len(events) == 0 {
		events = append(events, Event{Kind: KindUnknown, RawType: w.Type})
	}
	return events, nil
}

// rawString returns a JSON string value as text, or the raw JSON otherwise.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
