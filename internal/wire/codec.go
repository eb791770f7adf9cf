// Package wire implements the transfer codec: the JSON envelope and
// positional record payloads exchanged between peers.
//
// The envelope is {"q": action, "n": senderName, "p": senderHex, ...}
// with action-specific fields. The action enum is decoded exactly once
// at this boundary into a tagged union; nothing downstream inspects
// payload shape to guess intent.
package wire

import (
	"encoding/json"
	"fmt"
	"math/big"

	"golang.org/x/text/unicode/norm"

	"github.com/slonigiraf/slonledger/internal/record"
)

// Identity names the sending side of an envelope.
type Identity struct {
	Name string
	Key  record.PublicKey
}

// Message is the tagged union of everything an envelope can carry.
type Message interface {
	action() Action
}

// TransferOfValue moves funds to a recipient.
type TransferOfValue struct {
	Recipient record.PublicKey
	Amount    *big.Int
}

// AddInsurances offers co-signed diplomas to a specific employer.
type AddInsurances struct {
	Recipient  record.PublicKey
	Insurances []record.Insurance
}

// TeacherIdentity announces the sender's identity; the envelope's
// sender fields carry all the content.
type TeacherIdentity struct{}

// LessonRequest asks for a tutoring session.
type LessonRequest struct {
	Recipient record.PublicKey
	CID       string
	ToLearn   []string        // content ids of skills to learn
	Reexamine []record.Letter // existing diplomas to re-validate
}

// LessonResult returns a finished session's records to the student.
type LessonResult struct {
	Recipient  record.PublicKey
	LessonID   string
	Letters    []record.Letter
	Insurances []record.Insurance
}

func (TransferOfValue) action() Action { return ActionTransferOfValue }
func (AddInsurances) action() Action   { return ActionAddInsurances }
func (TeacherIdentity) action() Action { return ActionTeacherIdentity }
func (LessonRequest) action() Action   { return ActionLessonRequest }
func (LessonResult) action() Action    { return ActionLessonResult }

// envelope is the JSON wire shape. Field tags are single letters to
// keep QR payloads small.
type envelope struct {
	Q Action   `json:"q"`
	N string   `json:"n"`
	P string   `json:"p"`
	D string   `json:"d,omitempty"`
	A string   `json:"a,omitempty"` // amount (transfer-of-value)
	C string   `json:"c,omitempty"` // lesson content id
	S string   `json:"s,omitempty"` // lesson id (lesson-result)
	T []string `json:"t,omitempty"` // skills to learn (lesson-request)
	L []string `json:"l,omitempty"` // positional letters
	I []string `json:"i,omitempty"` // positional insurances
}

// Decoded is a fully parsed envelope.
type Decoded struct {
	Action     Action
	SenderName string
	Sender     record.PublicKey
	Recipient  record.PublicKey
	Msg        Message
}

// Encode renders a message as a wire envelope. The sender's display
// name is NFC-normalized so equal-looking names encode identically.
func Encode(msg Message, sender Identity) ([]byte, error) {
	env := envelope{
		Q: msg.action(),
		N: norm.NFC.String(sender.Name),
		P: string(sender.Key),
	}

	switch m := msg.(type) {
	case TransferOfValue:
		env.D = string(m.Recipient)
		env.A = record.AmountString(m.Amount)
	case AddInsurances:
		env.D = string(m.Recipient)
		for _, ins := range m.Insurances {
			payload, err := encodeInsurance(ins)
			if err != nil {
				return nil, fmt.Errorf("encode insurance: %w", err)
			}
			env.I = append(env.I, payload)
		}
	case TeacherIdentity:
		// sender fields only
	case LessonRequest:
		env.D = string(m.Recipient)
		env.C = m.CID
		env.T = m.ToLearn
		for _, l := range m.Reexamine {
			payload, err := encodeLetter(l)
			if err != nil {
				return nil, fmt.Errorf("encode letter: %w", err)
			}
			env.L = append(env.L, payload)
		}
	case LessonResult:
		env.D = string(m.Recipient)
		env.S = m.LessonID
		for _, l := range m.Letters {
			payload, err := encodeLetter(l)
			if err != nil {
				return nil, fmt.Errorf("encode letter: %w", err)
			}
			env.L = append(env.L, payload)
		}
		for _, ins := range m.Insurances {
			payload, err := encodeInsurance(ins)
			if err != nil {
				return nil, fmt.Errorf("encode insurance: %w", err)
			}
			env.I = append(env.I, payload)
		}
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}

	return json.Marshal(env)
}

// Decode parses a wire envelope. All failures are typed DecodeErrors;
// the input is attacker-controlled and must never cause a panic.
func Decode(data []byte) (*Decoded, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, malformedEnvelope("%v", err)
	}
	if !env.Q.Valid() {
		return nil, malformedEnvelope("unknown action %d", int(env.Q))
	}

	sender, err := record.ParsePublicKey(env.P)
	if err != nil {
		return nil, malformedEnvelope("sender identity: %v", err)
	}

	var recipient record.PublicKey
	if env.D != "" {
		if recipient, err = record.ParsePublicKey(env.D); err != nil {
			return nil, malformedEnvelope("recipient identity: %v", err)
		}
	}

	d := &Decoded{
		Action:     env.Q,
		SenderName: norm.NFC.String(env.N),
		Sender:     sender,
		Recipient:  recipient,
	}

	switch env.Q {
	case ActionTransferOfValue:
		amount, ok := record.ParseAmount(env.A)
		if !ok {
			return nil, malformedEnvelope("invalid amount %q", env.A)
		}
		d.Msg = TransferOfValue{Recipient: recipient, Amount: amount}

	case ActionAddInsurances:
		insurances, err := decodeInsurances(env.I)
		if err != nil {
			return nil, err
		}
		d.Msg = AddInsurances{Recipient: recipient, Insurances: insurances}

	case ActionTeacherIdentity:
		d.Msg = TeacherIdentity{}

	case ActionLessonRequest:
		letters, err := decodeLetters(env.L)
		if err != nil {
			return nil, err
		}
		d.Msg = LessonRequest{
			Recipient: recipient,
			CID:       env.C,
			ToLearn:   env.T,
			Reexamine: letters,
		}

	case ActionLessonResult:
		letters, err := decodeLetters(env.L)
		if err != nil {
			return nil, err
		}
		insurances, err := decodeInsurances(env.I)
		if err != nil {
			return nil, err
		}
		d.Msg = LessonResult{
			Recipient:  recipient,
			LessonID:   env.S,
			Letters:    letters,
			Insurances: insurances,
		}
	}

	return d, nil
}

func decodeLetters(payloads []string) ([]record.Letter, error) {
	out := make([]record.Letter, 0, len(payloads))
	for _, p := range payloads {
		l, err := decodeLetter(p)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func decodeInsurances(payloads []string) ([]record.Insurance, error) {
	out := make([]record.Insurance, 0, len(payloads))
	for _, p := range payloads {
		ins, err := decodeInsurance(p)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, nil
}
