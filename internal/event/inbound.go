package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

type InboundKind string

const (
	InboundTypingStart InboundKind = "typing_start"
	InboundTypingStop  InboundKind = "typing_stop"
	InboundSendMessage InboundKind = "send_message"
)

var ErrUnknownKind = errors.New("unknown event type")

// Inbound — команда, пришедшая от клиента. Реализуют только типы этого пакета.
type Inbound interface {
	inbound()
}

type TypingStart struct {
	ConversationID string `json:"conversationId"`
}

type TypingStop struct {
	ConversationID string `json:"conversationId"`
}

type SendMessage struct {
	ConversationID string  `json:"conversationId"`
	Content        string  `json:"content"`
	MessageType    string  `json:"messageType,omitempty"`
	ReplyToID      *string `json:"replyToId,omitempty"`
}

func (TypingStart) inbound() {}
func (TypingStop) inbound()  {}
func (SendMessage) inbound() {}

type frame struct {
	Type    InboundKind     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode разбирает кадр клиента. Для незнакомого type возвращает ErrUnknownKind.
func Decode(raw []byte) (Inbound, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("event.Decode: %w", err)
	}
	var in Inbound
	switch f.Type {
	case InboundTypingStart:
		in = &TypingStart{}
	case InboundTypingStop:
		in = &TypingStop{}
	case InboundSendMessage:
		in = &SendMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, f.Type)
	}
	if len(f.Payload) > 0 {
		if err := json.Unmarshal(f.Payload, in); err != nil {
			return nil, fmt.Errorf("event.Decode %s: %w", f.Type, err)
		}
	}
	switch v := in.(type) {
	case *TypingStart:
		return *v, nil
	case *TypingStop:
		return *v, nil
	case *SendMessage:
		return *v, nil
	}
	return in, nil
}
