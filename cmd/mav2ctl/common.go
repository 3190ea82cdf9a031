package main

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/base-org/modular-account/account"
	"github.com/base-org/modular-account/config"
	"github.com/base-org/modular-account/signer"
)

func ownerKeyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "owner-key",
		Usage:   "hex private key of the signing owner or session key",
		EnvVars: []string{"MAV2_OWNER_KEY"},
	}
}

type env struct {
	cfg    *config.Config
	logger *logrus.Logger
	client *ethclient.Client
}

func (e *env) Close() { e.client.Close() }

// connect loads the config, sets up logging and dials the node, checking
// that it serves the configured chain.
func connect(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(c.Context, cfg.RPCURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", cfg.RPCURL)
	}
	chainID, err := client.ChainID(c.Context)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "get chain id")
	}
	if chainID.Cmp(cfg.ChainIDBig()) != 0 {
		client.Close()
		return nil, errors.Errorf("node serves chain %s, config expects %d", chainID, cfg.ChainID)
	}
	return &env{cfg: cfg, logger: logger, client: client}, nil
}

func (e *env) account(ctx context.Context, owner signer.Signer, deferred []byte) (*account.Account, error) {
	p := account.Params{
		Reader:         e.client,
		Owner:          owner,
		ChainID:        e.cfg.ChainIDBig(),
		Mode:           account.Mode(e.cfg.Account.Mode),
		AccountAddress: e.cfg.AccountAddress(),
		Salt:           e.cfg.SaltBig(),
		DeferredAction: deferred,
		Addresses:      e.cfg.Addresses,
		Logger:         e.logger.WithField("module", "account"),
	}
	if len(deferred) == 0 {
		entity := e.cfg.SignerEntity()
		p.SignerEntity = &entity
	}
	return account.New(ctx, p)
}

func ownerSigner(c *cli.Context) (*signer.PrivateKeySigner, error) {
	key := c.String("owner-key")
	if key == "" {
		return nil, errors.New("owner key is required, pass --owner-key or set MAV2_OWNER_KEY")
	}
	return signer.HexToPrivateKeySigner(key)
}

func decodeHexArg(s, what string) ([]byte, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.Wrap(err, what)
	}
	return b, nil
}
