package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talx-hub/gopher-loyalty/internal/model/program"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
	"github.com/talx-hub/gopher-loyalty/internal/service/tier"
)

// Catalog resolves merchant program settings. Merchants missing from the catalog
// get the default section when one is present.
type Catalog struct {
	loyalty         map[string]program.Loyalty
	wallets         map[string]program.WalletSettings
	defaultLoyalty  *program.Loyalty
	defaultSettings *program.WalletSettings
}

// DefaultCatalog serves the built-in defaults to every merchant.
func DefaultCatalog() *Catalog {
	l := program.DefaultLoyalty("")
	w := program.DefaultWalletSettings("")
	return &Catalog{
		loyalty:         map[string]program.Loyalty{},
		wallets:         map[string]program.WalletSettings{},
		defaultLoyalty:  &l,
		defaultSettings: &w,
	}
}

type merchantNode struct {
	Loyalty yaml.Node `yaml:"loyalty"`
	Wallet  yaml.Node `yaml:"wallet"`
}

type catalogFile struct {
	Default   *merchantNode           `yaml:"default"`
	Merchants map[string]merchantNode `yaml:"merchants"`
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program config %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog reads a YAML catalog. Merchant sections are layered over the
// default section, which itself starts from the built-in defaults.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse program config: %w", err)
	}

	c := &Catalog{
		loyalty: make(map[string]program.Loyalty, len(file.Merchants)),
		wallets: make(map[string]program.WalletSettings, len(file.Merchants)),
	}
	baseLoyalty := program.DefaultLoyalty("")
	baseWallet := program.DefaultWalletSettings("")
	if file.Default != nil {
		if err := decodeOver(&file.Default.Loyalty, &baseLoyalty); err != nil {
			return nil, fmt.Errorf("default loyalty: %w", err)
		}
		if err := decodeOver(&file.Default.Wallet, &baseWallet); err != nil {
			return nil, fmt.Errorf("default wallet: %w", err)
		}
		if err := validate(&baseLoyalty, &baseWallet); err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		c.defaultLoyalty = &baseLoyalty
		c.defaultSettings = &baseWallet
	}

	for merchantID, node := range file.Merchants {
		l, w := baseLoyalty, baseWallet
		if err := decodeOver(&node.Loyalty, &l); err != nil {
			return nil, fmt.Errorf("merchant %s loyalty: %w", merchantID, err)
		}
		if err := decodeOver(&node.Wallet, &w); err != nil {
			return nil, fmt.Errorf("merchant %s wallet: %w", merchantID, err)
		}
		if err := validate(&l, &w); err != nil {
			return nil, fmt.Errorf("merchant %s: %w", merchantID, err)
		}
		l.MerchantID, w.MerchantID = merchantID, merchantID
		c.loyalty[merchantID] = l
		c.wallets[merchantID] = w
	}
	return c, nil
}

func decodeOver[T any](node *yaml.Node, dst *T) error {
	if node.IsZero() {
		return nil
	}
	if err := node.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}

func validate(l *program.Loyalty, w *program.WalletSettings) error {
	var errs []error
	if err := tier.Validate(l.Tiers); err != nil {
		errs = append(errs, err)
	}
	if !l.PointsPerCurrency.IsPositive() {
		errs = append(errs, errors.New("points_per_currency must be positive"))
	}
	if !l.ResidentMultiplier.IsPositive() {
		errs = append(errs, errors.New("resident_multiplier must be positive"))
	}
	if l.ExpiryMonths <= 0 {
		errs = append(errs, errors.New("expiry_months must be positive"))
	}
	if w.MinTopUpCents <= 0 || w.MinTopUpCents > w.MaxTopUpCents {
		errs = append(errs, errors.New("top-up range must satisfy 0 < min <= max"))
	}
	if w.BonusExpiryMonths <= 0 {
		errs = append(errs, errors.New("bonus_expiry_months must be positive"))
	}
	if w.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	for _, bt := range w.BonusTiers {
		if bt.BonusPercent.IsNegative() || bt.MinAmountCents < 0 || bt.MaxBonusCents < 0 {
			errs = append(errs, fmt.Errorf("bonus tier %q: negative value", bt.Name))
		}
	}
	return errors.Join(errs...)
}

func (c *Catalog) Loyalty(merchantID string) (program.Loyalty, error) {
	if l, ok := c.loyalty[merchantID]; ok {
		return l, nil
	}
	if c.defaultLoyalty == nil {
		return program.Loyalty{}, fmt.Errorf("%w: %s", serviceerrs.ErrProgramNotFound, merchantID)
	}
	l := *c.defaultLoyalty
	l.MerchantID = merchantID
	return l, nil
}

func (c *Catalog) Wallet(merchantID string) (program.WalletSettings, error) {
	if w, ok := c.wallets[merchantID]; ok {
		return w, nil
	}
	if c.defaultSettings == nil {
		return program.WalletSettings{}, fmt.Errorf("%w: %s", serviceerrs.ErrProgramNotFound, merchantID)
	}
	w := *c.defaultSettings
	w.MerchantID = merchantID
	return w, nil
}
