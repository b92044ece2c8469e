package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

type toolsListResult struct {
	Tools []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	} `json:"tools"`
}

type toolsCallResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError"`
}

type contentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
	Resource *struct {
		URI      string `json:"uri"`
		Text     string `json:"text"`
		Blob     string `json:"blob"`
		MimeType string `json:"mimeType"`
	} `json:"resource"`
}

// errMalformedEnvelope is returned when a reply body is neither a JSON-RPC
// object nor a server-push frame carrying one.
var errMalformedEnvelope = errors.New("malformed rpc envelope")

// decodeEnvelope parses a JSON-RPC reply body. Some MCP servers answer a
// plain POST with server-push framing (event: message / data: {...});
// those frames are unwrapped here so nothing else sees the framing.
func decodeEnvelope(body []byte) (*rpcResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", errMalformedEnvelope)
	}

	payload := trimmed
	if trimmed[0] != '{' {
		data, err := lastEventData(trimmed)
		if err != nil {
			return nil, err
		}
		payload = data
	}

	var resp rpcResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedEnvelope, err)
	}
	if resp.Error == nil && resp.Result == nil {
		return nil, fmt.Errorf("%w: neither result nor error present", errMalformedEnvelope)
	}
	return &resp, nil
}

// lastEventData returns the data of the last frame whose payload is a JSON
// object. Notifications sent ahead of the reply are skipped that way.
func lastEventData(body []byte) ([]byte, error) {
	reader := bufio.NewReader(bytes.NewReader(body))
	var found []byte
	for {
		_, data, err := readEvent(reader)
		if len(data) > 0 && looksLikeReply(data) {
			found = data
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %v", errMalformedEnvelope, err)
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no data frame", errMalformedEnvelope)
	}
	return found, nil
}

func looksLikeReply(data []byte) bool {
	var head struct {
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return false
	}
	return head.Result != nil || head.Error != nil
}

// readEvent reads one frame. At EOF it returns whatever was accumulated
// together with io.EOF so an unterminated final frame is not lost.
func readEvent(reader *bufio.Reader) (string, []byte, error) {
	var event string
	var data []byte
	for {
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return event, data, err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if event != "" || len(data) > 0 {
				return event, data, nil
			}
		case strings.HasPrefix(line, ":"):
		default:
			if after, ok := strings.CutPrefix(line, "event:"); ok {
				event = strings.TrimSpace(after)
			} else if after, ok := strings.CutPrefix(line, "data:"); ok {
				if len(data) > 0 {
					data = append(data, '\n')
				}
				data = append(data, strings.TrimPrefix(after, " ")...)
			}
		}
		if err != nil {
			return event, data, err
		}
	}
}
