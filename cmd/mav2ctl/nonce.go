package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/base-org/modular-account/account"
)

var nonceCMD = &cli.Command{
	Name:  "nonce",
	Usage: "Encode and decode entrypoint nonces",
	Subcommands: []*cli.Command{
		{
			Name:  "encode",
			Usage: "Build the nonce key of an entity and its first nonce",
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "entity", Usage: "validation entity id"},
				&cli.StringFlag{Name: "key", Value: "0", Usage: "user chosen key, up to 152 bits"},
				&cli.BoolFlag{Name: "global", Usage: "validate through global validation"},
				&cli.BoolFlag{Name: "deferred", Usage: "the user operation carries a deferred action"},
			},
			Action: nonceEncode,
		},
		{
			Name:      "decode",
			Usage:     "Split a nonce into its key fields and sequence",
			ArgsUsage: "<nonce>",
			Action:    nonceDecode,
		},
	},
}

func nonceEncode(c *cli.Context) error {
	entity, err := account.ParseEntityID(c.Uint64("entity"))
	if err != nil {
		return err
	}
	userKey, ok := math.ParseBig256(c.String("key"))
	if !ok {
		return errors.Errorf("invalid key %q", c.String("key"))
	}
	key, err := account.BuildFullNonceKey(account.NonceKey{
		Key:                userKey,
		EntityID:           entity,
		IsGlobalValidation: c.Bool("global"),
		IsDeferredAction:   c.Bool("deferred"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "key:   %#x\n", key)
	fmt.Fprintf(c.App.Writer, "nonce: %#x\n", new(big.Int).Lsh(key, 64))
	return nil
}

func nonceDecode(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected one nonce")
	}
	nonce, ok := math.ParseBig256(c.Args().First())
	if !ok {
		return errors.Errorf("invalid nonce %q", c.Args().First())
	}
	key, seq := account.ParseNonce(nonce)
	fmt.Fprintf(c.App.Writer, "key:      %#x\n", key.Key)
	fmt.Fprintf(c.App.Writer, "entity:   %d\n", key.EntityID)
	fmt.Fprintf(c.App.Writer, "global:   %t\n", key.IsGlobalValidation)
	fmt.Fprintf(c.App.Writer, "deferred: %t\n", key.IsDeferredAction)
	fmt.Fprintf(c.App.Writer, "sequence: %d\n", seq)
	return nil
}
