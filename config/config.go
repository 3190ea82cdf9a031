// Package config loads the client configuration from a file and MAV2_
// prefixed environment variables.
package config

import (
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/base-org/modular-account/account"
	"github.com/base-org/modular-account/permissions"
)

const EnvPrefix = "MAV2"

type Config struct {
	RPCURL      string             `mapstructure:"rpc_url" validate:"required,url"`
	BundlerURL  string             `mapstructure:"bundler_url" validate:"omitempty,url"`
	ChainID     uint64             `mapstructure:"chain_id" validate:"required"`
	Log         Log                `mapstructure:"log"`
	Addresses   account.Addresses  `mapstructure:"addresses"`
	Account     Account            `mapstructure:"account"`
	Permissions []PermissionConfig `mapstructure:"permissions" validate:"dive"`
}

type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type Account struct {
	// Owner is the owner address, used when no key is at hand.
	Owner string `mapstructure:"owner" validate:"omitempty,eth_addr"`
	// Address skips address prediction.
	Address  string `mapstructure:"address" validate:"omitempty,eth_addr"`
	Salt     uint64 `mapstructure:"salt"`
	EntityID uint32 `mapstructure:"entity_id"`
	Global   bool   `mapstructure:"global"`
	Mode     string `mapstructure:"mode" validate:"oneof=default 7702"`
}

// PermissionConfig is a permission as written in a config file. Amounts are
// decimal or 0x hex, functions are 4 byte selectors or signatures.
type PermissionConfig struct {
	Type      string   `mapstructure:"type" validate:"required"`
	Address   string   `mapstructure:"address" validate:"omitempty,eth_addr"`
	Allowance string   `mapstructure:"allowance"`
	Limit     string   `mapstructure:"limit"`
	Functions []string `mapstructure:"functions"`
}

var defaults = map[string]interface{}{
	"rpc_url":           "",
	"bundler_url":       "",
	"chain_id":          0,
	"log.level":         "info",
	"log.format":        "text",
	"account.owner":     "",
	"account.address":   "",
	"account.salt":      0,
	"account.entity_id": 0,
	"account.global":    true,
	"account.mode":      string(account.ModeDefault),
}

// Load reads path, when not empty, and the environment. MAV2_CHAIN_ID
// overrides chain_id, MAV2_LOG_LEVEL overrides log.level.
func Load(path string) (*Config, error) {
	vp := viper.New()
	for k, v := range defaults {
		vp.SetDefault(k, v)
	}
	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	if path != "" {
		vp.SetConfigFile(path)
		if err := vp.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		StringToAddressHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// StringToAddressHookFunc decodes hex strings into common.Address.
func StringToAddressHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(common.Address{}) {
			return data, nil
		}
		s := data.(string)
		if s == "" {
			return common.Address{}, nil
		}
		if !common.IsHexAddress(s) {
			return nil, errors.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil
	}
}

func (c *Config) ChainIDBig() *big.Int { return new(big.Int).SetUint64(c.ChainID) }

func (c *Config) SaltBig() *big.Int { return new(big.Int).SetUint64(c.Account.Salt) }

// SignerEntity is the validation the account signs with.
func (c *Config) SignerEntity() account.SignerEntity {
	return account.SignerEntity{EntityID: account.EntityID(c.Account.EntityID), IsGlobalValidation: c.Account.Global}
}

// AccountAddress is nil unless the address is configured.
func (c *Config) AccountAddress() *common.Address {
	if c.Account.Address == "" {
		return nil
	}
	a := common.HexToAddress(c.Account.Address)
	return &a
}

// NewLogger returns a logger configured from Log.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	l := logrus.New()
	l.SetLevel(level)
	if c.Log.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l, nil
}

// GetPermissions converts the configured permissions.
func (c *Config) GetPermissions() ([]permissions.Permission, error) {
	out := make([]permissions.Permission, len(c.Permissions))
	for i, p := range c.Permissions {
		perm, err := p.Permission()
		if err != nil {
			return nil, errors.Wrapf(err, "permission %d", i)
		}
		out[i] = perm
	}
	return out, nil
}

func (p PermissionConfig) Permission() (permissions.Permission, error) {
	typ, err := permissions.ParseType(p.Type)
	if err != nil {
		return permissions.Permission{}, err
	}
	out := permissions.Permission{Type: typ}
	if p.Address != "" {
		out.Address = common.HexToAddress(p.Address)
	}
	if p.Allowance != "" {
		if out.Allowance, err = parseAmount(p.Allowance); err != nil {
			return permissions.Permission{}, errors.Wrap(err, "allowance")
		}
	}
	if p.Limit != "" {
		if out.Limit, err = parseAmount(p.Limit); err != nil {
			return permissions.Permission{}, errors.Wrap(err, "limit")
		}
	}
	for _, fn := range p.Functions {
		sel, err := ParseSelector(fn)
		if err != nil {
			return permissions.Permission{}, err
		}
		out.Functions = append(out.Functions, sel)
	}
	return out, nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, errors.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// ParseSelector accepts 0x12345678 or a signature such as
// transfer(address,uint256).
func ParseSelector(s string) ([4]byte, error) {
	var sel [4]byte
	if strings.HasPrefix(s, "0x") {
		b, err := hexutil.Decode(s)
		if err != nil || len(b) != 4 {
			return sel, errors.Errorf("invalid selector %q", s)
		}
		copy(sel[:], b)
		return sel, nil
	}
	if !strings.Contains(s, "(") || !strings.HasSuffix(s, ")") {
		return sel, errors.Errorf("invalid function signature %q", s)
	}
	copy(sel[:], crypto.Keccak256([]byte(strings.ReplaceAll(s, " ", "")))[:4])
	return sel, nil
}
