package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/base-org/modular-account/permissions"
)

var permissionsCMD = &cli.Command{
	Name:  "permissions",
	Usage: "Grant session keys permissions through deferred actions",
	Subcommands: []*cli.Command{
		{
			Name:  "grant",
			Usage: "Sign a deferred action installing the configured permissions for a session key",
			Flags: []cli.Flag{
				ownerKeyFlag(),
				&cli.StringFlag{Name: "session", Required: true, Usage: "session key address"},
				&cli.StringFlag{Name: "key-type", Value: string(permissions.KeySecp256k1), Usage: "secp256k1 or contract"},
				&cli.Uint64Flag{Name: "deadline", Usage: "unix time the grant expires at, 0 for never"},
				&cli.StringFlag{Name: "nonce-key", Value: "0", Usage: "user chosen nonce key of the deferred action"},
			},
			Action: permissionsGrant,
		},
	},
}

func permissionsGrant(c *cli.Context) error {
	if !common.IsHexAddress(c.String("session")) {
		return errors.Errorf("invalid session key %q", c.String("session"))
	}
	keyType := permissions.KeyType(c.String("key-type"))
	if keyType != permissions.KeySecp256k1 && keyType != permissions.KeyContract {
		return errors.Errorf("unknown key type %q", keyType)
	}
	nonceKey, ok := math.ParseBig256(c.String("nonce-key"))
	if !ok {
		return errors.Errorf("invalid nonce key %q", c.String("nonce-key"))
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

	perms, err := e.cfg.GetPermissions()
	if err != nil {
		return err
	}
	acct, err := e.account(c.Context, owner, nil)
	if err != nil {
		return err
	}
	grant, err := permissions.NewGrant(c.Context, acct, permissions.GrantRequest{
		Key:         permissions.Key{Address: common.HexToAddress(c.String("session")), Type: keyType},
		Permissions: perms,
		Deadline:    c.Uint64("deadline"),
		NonceKey:    nonceKey,
		Logger:      e.logger.WithField("module", "permissions"),
	})
	if err != nil {
		return err
	}
	blob, err := grant.Sign(c.Context, acct)
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "account:  %s\n", acct.Address().Hex())
	fmt.Fprintf(w, "entity:   %d\n", grant.EntityID)
	fmt.Fprintf(w, "nonce:    %#x\n", grant.Nonce)
	fmt.Fprintf(w, "deferred: %s\n", hexutil.Encode(blob))
	return nil
}
