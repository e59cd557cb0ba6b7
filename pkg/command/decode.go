package command

import (
	"encoding/json"
	"fmt"
)

// Decode deserializes and validates the command's payload, returning the
// typed variant. Unknown opcodes and malformed payloads yield an
// *InvalidCommandError carrying the numeric opcode.
func (c Command) Decode() (any, error) {
	payload, err := c.newPayload()
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(c.Payload, payload); err != nil {
		return nil, &InvalidCommandError{Op: c.Op, Err: err}
	}
	if err := validate(payload); err != nil {
		return nil, &InvalidCommandError{Op: c.Op, Err: err}
	}
	return payload, nil
}

func (c Command) newPayload() (any, error) {
	switch c.Op {
	case OpAccountModifyMargin:
		return &AccountModifyMargin{}, nil
	case OpAccountWithdrawEth:
		return &AccountWithdrawEth{}, nil
	case OpPerpsMarketModifyMargin:
		return &PerpsMarketModifyMargin{}, nil
	case OpPerpsMarketWithdrawAllMargin:
		return &PerpsMarketWithdrawAllMargin{}, nil
	case OpPerpsMarketSubmitAtomicOrder:
		return &PerpsMarketSubmitAtomicOrder{}, nil
	case OpPerpsMarketSubmitDelayedOrder:
		return &PerpsMarketSubmitDelayedOrder{}, nil
	case OpPerpsMarketSubmitOffchainDelayedOrder:
		return &PerpsMarketSubmitOffchainDelayedOrder{}, nil
	case OpPerpsMarketClosePosition:
		return &PerpsMarketClosePosition{}, nil
	case OpPerpsMarketSubmitCloseDelayedOrder:
		return &PerpsMarketSubmitCloseDelayedOrder{}, nil
	case OpPerpsMarketSubmitCloseOffchainDelayedOrder:
		return &PerpsMarketSubmitCloseOffchainDelayedOrder{}, nil
	case OpPerpsMarketCancelDelayedOrder:
		return &PerpsMarketCancelDelayedOrder{}, nil
	case OpPerpsMarketCancelOffchainDelayedOrder:
		return &PerpsMarketCancelOffchainDelayedOrder{}, nil
	case OpPlaceConditionalOrder:
		return &PlaceConditionalOrder{}, nil
	case OpCancelConditionalOrder:
		return &CancelConditionalOrder{}, nil
	default:
		return nil, &InvalidCommandError{Op: c.Op}
	}
}

type validator interface{ validate() error }

func validate(payload any) error {
	v, ok := payload.(validator)
	if !ok {
		return fmt.Errorf("payload %T has no validation", payload)
	}
	return v.validate()
}

// Make builds a command from a typed payload, returning an error if the
// payload fails its own validation or does not match the opcode's type.
func Make(op Op, payload any) (Command, error) {
	if err := validate(payload); err != nil {
		return Command{}, &InvalidCommandError{Op: op, Err: err}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Command{}, &InvalidCommandError{Op: op, Err: err}
	}
	cmd := Command{Op: op, Payload: raw}
	// Round-trip through Decode so an op/payload type mismatch is caught
	// at construction instead of dispatch.
	decoded, err := cmd.Decode()
	if err != nil {
		return Command{}, err
	}
	if fmt.Sprintf("%T", decoded) != fmt.Sprintf("%T", payload) {
		return Command{}, &InvalidCommandError{Op: op, Err: fmt.Errorf("payload type %T does not match opcode", payload)}
	}
	return cmd, nil
}

// MustMake is Make for test and tooling code paths where the payload is
// statically known to be valid.
func MustMake(op Op, payload any) Command {
	cmd, err := Make(op, payload)
	if err != nil {
		panic(err)
	}
	return cmd
}
