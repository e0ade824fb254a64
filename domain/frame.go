package domain

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Frame is one inbound payload: {"text": string, "receiver": id}.
// A frame missing either field is malformed and dropped by the session.
type Frame struct {
	Text     *string    `json:"text" validate:"required"`
	Receiver ReceiverID `json:"receiver" validate:"required"`
}

// ReceiverID accepts both JSON string and number forms, since clients
// send the identity either way.
type ReceiverID string

func (r *ReceiverID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = ReceiverID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = ReceiverID(n.String())
	return nil
}

// DecodeFrame parses and validates an inbound frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("frame decoding failed: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return Frame{}, fmt.Errorf("frame validation failed: %w", err)
	}
	return f, nil
}
