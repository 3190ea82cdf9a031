package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/base-org/modular-account/account"
)

var addressCMD = &cli.Command{
	Name:  "address",
	Usage: "Counterfactual account addresses",
	Subcommands: []*cli.Command{
		{
			Name:  "predict",
			Usage: "Predict the address the factory deploys an account to",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "owner", Required: true, Usage: "owner address"},
				&cli.StringFlag{Name: "salt", Value: "0", Usage: "factory salt"},
				&cli.StringFlag{Name: "type", Value: "sma", Usage: "sma (semi-modular) or ma (modular with a single signer validation)"},
				&cli.Uint64Flag{Name: "entity", Value: 1, Usage: "entity of the single signer validation of a modular account"},
				&cli.StringFlag{Name: "factory", Usage: "factory address override"},
			},
			Action: addressPredict,
		},
	},
}

func addressPredict(c *cli.Context) error {
	if !common.IsHexAddress(c.String("owner")) {
		return errors.Errorf("invalid owner %q", c.String("owner"))
	}
	owner := common.HexToAddress(c.String("owner"))
	salt, ok := math.ParseBig256(c.String("salt"))
	if !ok {
		return errors.Errorf("invalid salt %q", c.String("salt"))
	}
	addrs := account.DefaultAddresses()
	if f := c.String("factory"); f != "" {
		if !common.IsHexAddress(f) {
			return errors.Errorf("invalid factory %q", f)
		}
		addrs.Factory = common.HexToAddress(f)
	}

	var predicted common.Address
	switch c.String("type") {
	case "sma":
		predicted = account.PredictSemiModularAccountAddress(addrs.Factory, addrs.SemiModularAccountImpl, owner, salt)
	case "ma":
		entity, err := account.ParseEntityID(c.Uint64("entity"))
		if err != nil {
			return err
		}
		predicted = account.PredictModularAccountAddress(addrs.Factory, addrs.ModularAccountImpl, owner, salt, entity)
	default:
		return errors.Errorf("unknown account type %q", c.String("type"))
	}
	fmt.Fprintln(c.App.Writer, predicted.Hex())
	return nil
}
