package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Kind discriminates messages crossing the boundary by shape.
type Kind int

const (
	KindData        Kind = iota // opaque application payload
	KindReady                   // {"workerReady": true}
	KindLoadRequest             // {"requireScriptPath": path}
	KindShed                    // {"requireScriptPath": null}
	KindDelivery                // path plus requireScriptCode or requireScriptError
)

func (k Kind) String() string {
	switch k {
	case KindReady:
		return "ready"
	case KindLoadRequest:
		return "load_request"
	case KindShed:
		return "shed"
	case KindDelivery:
		return "delivery"
	default:
		return "data"
	}
}

const (
	keyPath  = "requireScriptPath"
	keyCode  = "requireScriptCode"
	keyError = "requireScriptError"
	keyReady = "workerReady"
)

// Message is one serialized message crossing the boundary. Nothing is
// shared between the two sides except these bytes.
type Message struct {
	Kind  Kind
	Path  string
	Code  string
	Error string
	Data  json.RawMessage
}

// ReadyMessage is posted once by the context after interception is installed.
func ReadyMessage() Message { return Message{Kind: KindReady} }

// LoadRequest asks the host for the module at path.
func LoadRequest(path string) Message { return Message{Kind: KindLoadRequest, Path: path} }

// ShedMessage tells the host no further loads will be requested.
func ShedMessage() Message { return Message{Kind: KindShed} }

// Delivery answers a load request with code, or with loadErr when the host
// could not fetch the module.
func Delivery(path, code string, loadErr error) Message {
	m := Message{Kind: KindDelivery, Path: path, Code: code}
	if loadErr != nil {
		m.Code = ""
		m.Error = loadErr.Error()
	}
	return m
}

// MarshalJSON encodes the message in its wire shape.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindReady:
		return sonic.Marshal(map[string]interface{}{keyReady: true})
	case KindLoadRequest:
		return sonic.Marshal(map[string]interface{}{keyPath: m.Path})
	case KindShed:
		return sonic.Marshal(map[string]interface{}{keyPath: nil})
	case KindDelivery:
		if m.Error != "" {
			return sonic.Marshal(map[string]interface{}{keyPath: m.Path, keyError: m.Error})
		}
		return sonic.Marshal(map[string]interface{}{keyPath: m.Path, keyCode: m.Code})
	default:
		if len(m.Data) == 0 {
			return []byte("null"), nil
		}
		return m.Data, nil
	}
}

// DecodeMessage classifies raw by shape. Anything that is not a boundary
// control message is returned as KindData with raw attached.
func DecodeMessage(raw []byte) (Message, error) {
	data := Message{Kind: KindData, Data: append(json.RawMessage(nil), raw...)}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return data, nil
	}

	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(trimmed, &fields); err != nil {
		return Message{}, fmt.Errorf("sandbox: decode message: %w", err)
	}

	if ready, ok := fields[keyReady]; ok && string(ready) == "true" && len(fields) == 1 {
		return ReadyMessage(), nil
	}

	rawPath, ok := fields[keyPath]
	if !ok {
		return data, nil
	}
	if string(bytes.TrimSpace(rawPath)) == "null" {
		return ShedMessage(), nil
	}

	var path string
	if err := sonic.Unmarshal(rawPath, &path); err != nil {
		return Message{}, fmt.Errorf("sandbox: decode %s: %w", keyPath, err)
	}

	if rawErr, ok := fields[keyError]; ok {
		var msg string
		if err := sonic.Unmarshal(rawErr, &msg); err != nil {
			return Message{}, fmt.Errorf("sandbox: decode %s: %w", keyError, err)
		}
		return Message{Kind: KindDelivery, Path: path, Error: msg}, nil
	}
	if rawCode, ok := fields[keyCode]; ok {
		var code string
		if err := sonic.Unmarshal(rawCode, &code); err != nil {
			return Message{}, fmt.Errorf("sandbox: decode %s: %w", keyCode, err)
		}
		return Message{Kind: KindDelivery, Path: path, Code: code}, nil
	}
	return LoadRequest(path), nil
}
