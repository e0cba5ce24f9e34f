package application

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
)

// PolicyConfig is the yaml shape of the economic policy. Zero fields fall
// back to the built-in defaults, so a file only lists what it overrides.
type PolicyConfig struct {
	MinDeposit           uint64 `yaml:"min_deposit"`
	SnoozePercent        uint64 `yaml:"snooze_percent"`
	MaxSnoozes           uint8  `yaml:"max_snoozes"`
	RefundPenaltyPercent uint64 `yaml:"refund_penalty_percent"`

	SnoozeExtensionSeconds       int64 `yaml:"snooze_extension_seconds"`
	ClaimGraceSeconds            int64 `yaml:"claim_grace_seconds"`
	BuddyWindowSeconds           int64 `yaml:"buddy_window_seconds"`
	DefaultDeadlineOffsetSeconds int64 `yaml:"default_deadline_offset_seconds"`

	MinVaultReserve uint64 `yaml:"min_vault_reserve"`
	Sink            string `yaml:"sink"`
}

// LoadPolicy builds the policy from defaults, an optional yaml file named
// by ESCROW_POLICY_CONFIG, and env overrides, in that order.
func LoadPolicy() (escrow.Policy, error) {
	policy := escrow.DefaultPolicy()

	if path := os.Getenv("ESCROW_POLICY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return policy, err
		}
		var cfg PolicyConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return policy, err
		}
		policy = applyConfig(policy, cfg)
	}

	policy.MinDeposit = getenvUintDefault("ESCROW_MIN_DEPOSIT", policy.MinDeposit)
	policy.MinVaultReserve = getenvUintDefault("ESCROW_MIN_VAULT_RESERVE", policy.MinVaultReserve)
	if sink := os.Getenv("ESCROW_SINK"); sink != "" {
		policy.Sink = escrow.Address(sink)
	}

	if err := policy.Validate(); err != nil {
		return policy, err
	}
	return policy, nil
}

func applyConfig(policy escrow.Policy, cfg PolicyConfig) escrow.Policy {
	if cfg.MinDeposit != 0 {
		policy.MinDeposit = cfg.MinDeposit
	}
	if cfg.SnoozePercent != 0 {
		policy.SnoozePercent = cfg.SnoozePercent
	}
	if cfg.MaxSnoozes != 0 {
		policy.MaxSnoozes = cfg.MaxSnoozes
	}
	if cfg.RefundPenaltyPercent != 0 {
		policy.RefundPenaltyPercent = cfg.RefundPenaltyPercent
	}
	if cfg.SnoozeExtensionSeconds != 0 {
		policy.SnoozeExtension = time.Duration(cfg.SnoozeExtensionSeconds) * time.Second
	}
	if cfg.ClaimGraceSeconds != 0 {
		policy.ClaimGrace = time.Duration(cfg.ClaimGraceSeconds) * time.Second
	}
	if cfg.BuddyWindowSeconds != 0 {
		policy.BuddyWindow = time.Duration(cfg.BuddyWindowSeconds) * time.Second
	}
	if cfg.DefaultDeadlineOffsetSeconds != 0 {
		policy.DefaultDeadlineOffset = time.Duration(cfg.DefaultDeadlineOffsetSeconds) * time.Second
	}
	if cfg.MinVaultReserve != 0 {
		policy.MinVaultReserve = cfg.MinVaultReserve
	}
	if cfg.Sink != "" {
		policy.Sink = escrow.Address(cfg.Sink)
	}
	return policy
}

func getenvUintDefault(key string, fallback uint64) uint64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
