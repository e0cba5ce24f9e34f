package escrow

import (
	"encoding/hex"
	"time"
)

// UserProfile is the per-owner identity record. Created at most once per
// owner; a second initialize attempt fails.
type UserProfile struct {
	owner     Address
	tagHash   string // hex SHA-256 of a registered NFC/QR wake tag, optional
	createdAt time.Time
}

// NewUserProfile constructs a profile. tagHash may be empty, otherwise it
// must be a 64-char hex digest.
func NewUserProfile(owner Address, tagHash string, now time.Time) (*UserProfile, error) {
	if owner == "" {
		return nil, ErrEmptyOwner
	}
	if tagHash != "" {
		raw, err := hex.DecodeString(tagHash)
		if err != nil || len(raw) != 32 {
			return nil, newError("InvalidTagHash", KindValidation, "tag hash must be a 32-byte hex digest")
		}
	}
	return &UserProfile{owner: owner, tagHash: tagHash, createdAt: now.UTC()}, nil
}

// RehydrateUserProfile rebuilds a stored profile without validation.
func RehydrateUserProfile(owner Address, tagHash string, createdAt time.Time) *UserProfile {
	return &UserProfile{owner: owner, tagHash: tagHash, createdAt: createdAt}
}

// Owner returns the profile owner address.
func (p *UserProfile) Owner() Address { return p.owner }

// TagHash returns the registered wake-tag hash, empty when none.
func (p *UserProfile) TagHash() string { return p.tagHash }

// CreatedAt returns the creation time.
func (p *UserProfile) CreatedAt() time.Time { return p.createdAt }

// Clone returns a detached copy.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	copied := *p
	return &copied
}
