package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/base-org/modular-account/account"
	"github.com/base-org/modular-account/bundler"
)

var sendCMD = &cli.Command{
	Name:  "send",
	Usage: "Send a call from the account through the bundler",
	Flags: []cli.Flag{
		ownerKeyFlag(),
		&cli.StringFlag{Name: "to", Required: true, Usage: "call target"},
		&cli.StringFlag{Name: "value", Value: "0", Usage: "wei to send"},
		&cli.StringFlag{Name: "data", Value: "0x", Usage: "call data"},
		&cli.StringFlag{Name: "deferred", Usage: "deferred action blob to submit with the call"},
		&cli.StringFlag{Name: "max-fee", Required: true, Usage: "max fee per gas in wei"},
		&cli.StringFlag{Name: "priority-fee", Required: true, Usage: "max priority fee per gas in wei"},
		&cli.DurationFlag{Name: "wait", Usage: "wait this long for the receipt, 0 to return at once"},
	},
	Action: send,
}

func send(c *cli.Context) error {
	if !common.IsHexAddress(c.String("to")) {
		return errors.Errorf("invalid target %q", c.String("to"))
	}
	value, ok := math.ParseBig256(c.String("value"))
	if !ok {
		return errors.Errorf("invalid value %q", c.String("value"))
	}
	data, err := decodeHexArg(c.String("data"), "data")
	if err != nil {
		return err
	}
	var deferred []byte
	if s := c.String("deferred"); s != "" {
		if deferred, err = decodeHexArg(s, "deferred"); err != nil {
			return err
		}
	}
	maxFee, ok := math.ParseBig256(c.String("max-fee"))
	if !ok {
		return errors.Errorf("invalid max fee %q", c.String("max-fee"))
	}
	priorityFee, ok := math.ParseBig256(c.String("priority-fee"))
	if !ok {
		return errors.Errorf("invalid priority fee %q", c.String("priority-fee"))
	}
	owner, err := ownerSigner(c)
	if err != nil {
		return err
	}

	e, err := connect(c)
	if err != nil {
		return err
	}
	defer e.Close()
	if e.cfg.BundlerURL == "" {
		return errors.New("bundler_url is not configured")
	}
	acct, err := e.account(c.Context, owner, deferred)
	if err != nil {
		return err
	}
	b, err := bundler.Dial(c.Context, e.cfg.BundlerURL, acct.EntryPoint())
	if err != nil {
		return err
	}
	defer b.Close()

	ac := bundler.NewAccountClient(acct, b, e.logger.WithField("module", "bundler"))
	hash, err := ac.SendCalls(c.Context, []account.Call{{
		Target: common.HexToAddress(c.String("to")),
		Value:  value,
		Data:   data,
	}}, bundler.Fees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: priorityFee})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "user operation: %s\n", hash.Hex())

	wait := c.Duration("wait")
	if wait == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Context, wait)
	defer cancel()
	r, err := b.WaitForUserOperationReceipt(ctx, hash, 2*time.Second)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "transaction:    %s\n", r.Receipt.TransactionHash.Hex())
	fmt.Fprintf(c.App.Writer, "success:        %t\n", r.Success)
	return nil
}
