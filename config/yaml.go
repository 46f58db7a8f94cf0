package config

import (
	"bytes"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

func parseYaml(out interface{}, blob []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("can't parse yaml: %w", err)
	}
	return nil
}

// Duration parses yaml values like "30s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("can't parse duration %q: %w", raw, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Address parses yaml 0x-prefixed hex strings into an EVM address.
type Address common.Address

func (a *Address) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if !common.IsHexAddress(raw) {
		return fmt.Errorf("can't parse address %q", raw)
	}
	*a = Address(common.HexToAddress(raw))
	return nil
}

func (a Address) Addr() common.Address {
	return common.Address(a)
}

// BigInt parses yaml decimal strings too large for int64, such as amounts in
// wei.
type BigInt big.Int

func (b *BigInt) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("can't parse big integer %q", raw)
	}
	*b = BigInt(*v)
	return nil
}
