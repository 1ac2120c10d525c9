package relay

import "encoding/json"

// Envelope type codes as they appear on the wire.
const (
	TypePublish     = "pub"
	TypeSubscribe   = "sub"
	TypeAcknowledge = "ack"
)

// Envelope is the unit of wire traffic exchanged with a relay endpoint.
// Payload is opaque to the transport; Silent marks protocol-internal
// traffic that should not surface through application notification paths.
type Envelope struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

// NewPublishEnvelope returns a publish envelope for the given topic.
func NewPublishEnvelope(topic string, payload string, silent bool) Envelope {
	return Envelope{Topic: topic, Type: TypePublish, Payload: payload, Silent: silent}
}

// NewSubscribeEnvelope returns a subscribe envelope for the given topic.
// Subscribe envelopes carry no payload and are always silent.
func NewSubscribeEnvelope(topic string) Envelope {
	return Envelope{Topic: topic, Type: TypeSubscribe, Silent: true}
}

// NewAcknowledgeEnvelope returns an acknowledge envelope for the given topic.
// Acknowledge envelopes carry no payload and are always silent.
func NewAcknowledgeEnvelope(topic string) Envelope {
	return Envelope{Topic: topic, Type: TypeAcknowledge, Silent: true}
}

// Encode serializes the envelope into its wire JSON form.
func (envelope Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, NewError(ProtocolError, err)
	}
	return data, nil
}

// ParseEnvelope deserializes wire data into an Envelope.
func ParseEnvelope(data []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, NewError(ProtocolError, err)
	}
	return envelope, nil
}
