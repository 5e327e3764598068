package websocket

import (
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Client -> Server
	MessageTypeAuth            MessageType = "auth"
	MessageTypeWatchRegister   MessageType = "watch-register"
	MessageTypeUnwatchRegister MessageType = "unwatch-register"

	// Server -> Client
	MessageTypeAuthSuccess   MessageType = "auth_success"
	MessageTypeAuthFailed    MessageType = "auth_failed"
	MessageTypeRegisterValue MessageType = "register-value"
	MessageTypeSample        MessageType = "sample"
	MessageTypeWatchError    MessageType = "watch-error"
	MessageTypeSystemStatus  MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// WatchRequest ist die Payload von watch-register / unwatch-register.
// Der Key identifiziert die Subscription clientseitig.
type WatchRequest struct {
	AnalyzerID string                   `json:"analyzer_id"`
	Register   types.RegisterDescriptor `json:"register"`
}

// RegisterValueData carries one live register value to a watching client
type RegisterValueData struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// SampleData carries a freshly persisted trend log sample
type SampleData struct {
	TrendLogID string    `json:"trend_log_id"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
}

// WatchErrorData reports a failed watch request back to the client
type WatchErrorData struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewRegisterValueMessage(key types.WatchKey, value float64) Message {
	return NewMessage(MessageTypeRegisterValue, RegisterValueData{
		Key:   key.String(),
		Value: value,
	})
}

func NewSampleMessage(sample types.Sample) Message {
	return NewMessage(MessageTypeSample, SampleData{
		TrendLogID: sample.TrendLogID.String(),
		Timestamp:  sample.Timestamp,
		Value:      sample.Value,
	})
}
