package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingRules are the tenant-independent constants of the billing engine.
// They are read from billing.yml and may change at runtime.
type BillingRules struct {
	CoronaDiscountAmount int64                   `mapstructure:"coronaDiscountAmount"`
	CompanyDiscountRate  int64                   `mapstructure:"companyDiscountRate"`
	DefaultClosingDay    int                     `mapstructure:"defaultClosingDay"`
	DefaultAutoClose     bool                    `mapstructure:"defaultAutoClose"`
	MaxRowErrors         int                     `mapstructure:"maxRowErrors"`
	Providers            map[string]ProviderRule `mapstructure:"providers"`
}

// ProviderRule configures one direct-debit collection provider.
type ProviderRule struct {
	ConsignorCode string `mapstructure:"consignorCode"`
	ConsignorName string `mapstructure:"consignorName"`
	BankCode      string `mapstructure:"bankCode"`
	BranchCode    string `mapstructure:"branchCode"`
	WithdrawalDay int    `mapstructure:"withdrawalDay"`
}

func DefaultBillingRules() BillingRules {
	return BillingRules{
		CoronaDiscountAmount: 1000,
		CompanyDiscountRate:  10,
		DefaultClosingDay:    25,
		DefaultAutoClose:     true,
		MaxRowErrors:         100,
		Providers: map[string]ProviderRule{
			"jis": {ConsignorCode: "0000000000", ConsignorName: "ｶﾞｸｼｭｳｼﾞｭｸ", WithdrawalDay: 27},
			"ufj": {ConsignorCode: "0000000000", ConsignorName: "ｶﾞｸｼｭｳｼﾞｭｸ", BankCode: "0005", WithdrawalDay: 27},
		},
	}
}

// Provider returns the rule for a provider code, falling back to an empty rule.
func (r BillingRules) Provider(code string) ProviderRule {
	if r.Providers == nil {
		return ProviderRule{}
	}
	return r.Providers[strings.ToLower(strings.TrimSpace(code))]
}

type BillingRulesHolder struct {
	current atomic.Value // holds BillingRules
}

// NewStaticBillingRules wraps fixed rules, mostly for tests.
func NewStaticBillingRules(rules BillingRules) *BillingRulesHolder {
	holder := &BillingRulesHolder{}
	holder.current.Store(rules)
	return holder
}

func NewBillingRulesHolder() (*BillingRulesHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/jukubill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("JUKUBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingRules()
	v.SetDefault("billing.coronaDiscountAmount", defaults.CoronaDiscountAmount)
	v.SetDefault("billing.companyDiscountRate", defaults.CompanyDiscountRate)
	v.SetDefault("billing.defaultClosingDay", defaults.DefaultClosingDay)
	v.SetDefault("billing.defaultAutoClose", defaults.DefaultAutoClose)
	v.SetDefault("billing.maxRowErrors", defaults.MaxRowErrors)
	v.SetDefault("billing.providers", defaults.Providers)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var rules BillingRules
	if err := v.UnmarshalKey("billing", &rules); err != nil {
		return nil, err
	}
	if err := validateBillingRules(rules); err != nil {
		return nil, err
	}

	holder := &BillingRulesHolder{}
	holder.current.Store(rules)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingRules
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-rules] reload failed: %v", err)
			return
		}
		if err := validateBillingRules(updated); err != nil {
			log.Printf("[billing-rules] invalid rules ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-rules] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingRulesHolder) Get() BillingRules {
	if h == nil {
		return DefaultBillingRules()
	}
	return h.current.Load().(BillingRules)
}

func validateBillingRules(rules BillingRules) error {
	if rules.DefaultClosingDay < 1 || rules.DefaultClosingDay > 31 {
		return errors.New("billing.defaultClosingDay must be between 1 and 31")
	}
	if rules.CompanyDiscountRate < 0 || rules.CompanyDiscountRate > 100 {
		return errors.New("billing.companyDiscountRate must be between 0 and 100")
	}
	if rules.MaxRowErrors <= 0 {
		return errors.New("billing.maxRowErrors must be positive")
	}
	return nil
}
