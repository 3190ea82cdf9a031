package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/base-org/modular-account/account"
)

var deferredCMD = &cli.Command{
	Name:  "deferred",
	Usage: "Inspect deferred actions",
	Subcommands: []*cli.Command{
		{
			Name:      "parse",
			Usage:     "Decode a deferred action blob",
			ArgsUsage: "<blob>",
			Action:    deferredParse,
		},
	},
}

func deferredParse(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected one deferred action blob")
	}
	blob, err := decodeHexArg(c.Args().First(), "blob")
	if err != nil {
		return err
	}
	da, err := account.ParseDeferredAction(blob)
	if err != nil {
		return err
	}
	data, err := account.DecodeDeferredActionData(da.Data)
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "nonce:       %#x\n", da.Nonce)
	fmt.Fprintf(w, "entity:      %d\n", da.EntityID)
	fmt.Fprintf(w, "global:      %t\n", da.IsGlobalValidation)
	fmt.Fprintf(w, "exec hooks:  %t\n", da.HasAssociatedExecHooks)
	fmt.Fprintf(w, "signed by:   entity %d (global %t)\n", data.Signer.EntityID, data.Signer.IsGlobalValidation)
	fmt.Fprintf(w, "deadline:    %d\n", data.Deadline)
	if method, err := account.ModularAccountABI.MethodById(data.Call); err == nil {
		fmt.Fprintf(w, "call:        %s\n", method.Sig)
	}
	fmt.Fprintf(w, "call data:   %s\n", hexutil.Encode(data.Call))
	fmt.Fprintf(w, "signature:   %s\n", hexutil.Encode(data.Signature))
	return nil
}
