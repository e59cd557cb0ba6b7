package command_test

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/perpkit/smartmargin/pkg/command"
)

func TestMakeDecodeRoundTrip(t *testing.T) {
	cmd, err := command.Make(command.OpPlaceConditionalOrder, &command.PlaceConditionalOrder{
		MarketKey:        "sETH-PERP",
		MarginDelta:      command.NewBigInt(big.NewInt(100)),
		SizeDelta:        command.NewBigInt(big.NewInt(-5)),
		TargetPrice:      command.NewBigInt(big.NewInt(1900)),
		OrderType:        command.Stop,
		DesiredFillPrice: command.NewBigInt(big.NewInt(1850)),
		ReduceOnly:       true,
	})
	require.NoError(t, err)

	decoded, err := cmd.Decode()
	require.NoError(t, err)
	p, ok := decoded.(*command.PlaceConditionalOrder)
	require.True(t, ok)
	require.Equal(t, "sETH-PERP", p.MarketKey)
	require.Equal(t, command.Stop, p.OrderType)
	require.True(t, p.ReduceOnly)
	require.Equal(t, "-5", p.SizeDelta.String())
}

func TestMakeRejectsMismatchedPayload(t *testing.T) {
	_, err := command.Make(command.OpAccountWithdrawEth, &command.PerpsMarketWithdrawAllMargin{
		MarketKey: "sETH-PERP",
	})
	require.Error(t, err)
}

func TestDecodeUnknownOp(t *testing.T) {
	cmd := command.Command{Op: command.Op(200), Payload: json.RawMessage(`{}`)}
	_, err := cmd.Decode()
	var invalid *command.InvalidCommandError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, command.Op(200), invalid.Op)
}

func TestDecodeMalformedPayload(t *testing.T) {
	cmd := command.Command{Op: command.OpAccountModifyMargin, Payload: json.RawMessage(`{"amount": 7}`)}
	_, err := cmd.Decode()
	var invalid *command.InvalidCommandError
	require.ErrorAs(t, err, &invalid)
}

func TestValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		op      command.Op
		payload any
		want    error
	}{
		{"zero amount", command.OpAccountModifyMargin,
			&command.AccountModifyMargin{Amount: command.NewBigInt(big.NewInt(0))},
			command.ErrZeroAmount},
		{"missing amount", command.OpAccountModifyMargin,
			&command.AccountModifyMargin{},
			command.ErrMissingAmount},
		{"negative eth withdraw", command.OpAccountWithdrawEth,
			&command.AccountWithdrawEth{Amount: command.NewBigInt(big.NewInt(-1))},
			command.ErrZeroAmount},
		{"missing market", command.OpPerpsMarketWithdrawAllMargin,
			&command.PerpsMarketWithdrawAllMargin{},
			command.ErrMissingMarket},
		{"zero size", command.OpPlaceConditionalOrder,
			&command.PlaceConditionalOrder{
				MarketKey:        "sETH-PERP",
				MarginDelta:      command.NewBigInt(big.NewInt(1)),
				SizeDelta:        command.NewBigInt(big.NewInt(0)),
				TargetPrice:      command.NewBigInt(big.NewInt(1)),
				DesiredFillPrice: command.NewBigInt(big.NewInt(1)),
			},
			command.ErrZeroSizeDelta},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := command.Make(tc.op, tc.payload)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestOpClass(t *testing.T) {
	ownerOnly := []command.Op{
		command.OpAccountModifyMargin,
		command.OpAccountWithdrawEth,
		command.OpPlaceConditionalOrder,
		command.OpCancelConditionalOrder,
	}
	for _, op := range ownerOnly {
		require.Equal(t, command.ClassOwner, op.Class(), "op %s", op)
	}

	delegated := []command.Op{
		command.OpPerpsMarketModifyMargin,
		command.OpPerpsMarketWithdrawAllMargin,
		command.OpPerpsMarketSubmitAtomicOrder,
		command.OpPerpsMarketSubmitDelayedOrder,
		command.OpPerpsMarketSubmitOffchainDelayedOrder,
		command.OpPerpsMarketClosePosition,
		command.OpPerpsMarketSubmitCloseDelayedOrder,
		command.OpPerpsMarketSubmitCloseOffchainDelayedOrder,
		command.OpPerpsMarketCancelDelayedOrder,
		command.OpPerpsMarketCancelOffchainDelayedOrder,
	}
	for _, op := range delegated {
		require.Equal(t, command.ClassAuth, op.Class(), "op %s", op)
	}
}

func TestBigIntJSON(t *testing.T) {
	v := command.NewBigInt(new(big.Int).Neg(big.NewInt(1e18)))
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, `"-1000000000000000000"`, string(raw))

	var back command.BigInt
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, "-1000000000000000000", back.String())

	require.Error(t, json.Unmarshal([]byte(`123`), &back))
	require.Error(t, json.Unmarshal([]byte(`"abc"`), &back))
}

func TestBatchJSONRoundTrip(t *testing.T) {
	batch := command.Batch{
		command.MustMake(command.OpAccountModifyMargin, &command.AccountModifyMargin{
			Amount: command.NewBigInt(big.NewInt(42)),
		}),
		command.MustMake(command.OpPerpsMarketClosePosition, &command.PerpsMarketClosePosition{
			MarketKey:        "sETH-PERP",
			DesiredFillPrice: command.NewBigInt(big.NewInt(2000)),
		}),
	}
	raw, err := json.Marshal(batch)
	require.NoError(t, err)

	var back command.Batch
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Len(t, back, 2)
	for _, cmd := range back {
		_, err := cmd.Decode()
		require.NoError(t, err)
	}
}
