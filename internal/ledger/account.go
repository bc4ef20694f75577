package ledger

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// AccountScope is the top-level namespace of a ledger account.
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType is what an account holds within its scope.
type AccountSubType uint8

const (
	SubTypeCollateral AccountSubType = iota
	SubTypeSystemPnlPool
	SubTypeSystemInsuranceVault
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
)

var subTypeNames = map[AccountSubType]string{
	SubTypeCollateral:           "collateral",
	SubTypeSystemPnlPool:        "pnl_pool",
	SubTypeSystemInsuranceVault: "insurance_vault",
	SubTypeExternalDeposits:     "deposits",
	SubTypeExternalWithdrawals:  "withdrawals",
}

func (s AccountSubType) String() string {
	if name, ok := subTypeNames[s]; ok {
		return name
	}
	return "unknown"
}

func parseSubType(name string) (AccountSubType, bool) {
	for st, n := range subTypeNames {
		if n == name {
			return st, true
		}
	}
	return 0, false
}

// AssetID is the numeric id of a settlement asset.
type AssetID uint16

// QuoteAssetID is the collateral every market settles in.
const QuoteAssetID AssetID = 1

var assets = []string{1: "USDC", 2: "USDT"}

func GetAssetID(asset string) (AssetID, bool) {
	for id, name := range assets {
		if name != "" && name == asset {
			return AssetID(id), true
		}
	}
	return 0, false
}

func GetAssetName(id AssetID) (string, bool) {
	if int(id) >= len(assets) || assets[id] == "" {
		return "", false
	}
	return assets[id], true
}

// AccountKey identifies a ledger account. It is comparable and used as the
// balance map key; its text form is the account path.
//
//	user:<uuid>:collateral:<asset>
//	system:market:<index>:pnl_pool:<asset>
//	system:insurance_vault:<asset>
//	external:deposits|withdrawals:<asset>
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // user id, or big-endian market index for pools
	SubType  AccountSubType
	AssetID  AssetID
}

func NewUserAccountKey(userID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{Scope: AccountScopeUser, EntityID: userID, SubType: subType, AssetID: assetID}
}

// NewPnlPoolAccountKey is the settlement pool of one market.
func NewPnlPoolAccountKey(marketIndex uint16, assetID AssetID) AccountKey {
	k := AccountKey{Scope: AccountScopeSystem, SubType: SubTypeSystemPnlPool, AssetID: assetID}
	binary.BigEndian.PutUint16(k.EntityID[:2], marketIndex)
	return k
}

// NewInsuranceVaultAccountKey is the single pooled insurance vault.
func NewInsuranceVaultAccountKey(assetID AssetID) AccountKey {
	return AccountKey{Scope: AccountScopeSystem, SubType: SubTypeSystemInsuranceVault, AssetID: assetID}
}

// NewExternalAccountKey is a boundary account money enters or leaves by.
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, SubType: subType, AssetID: assetID}
}

// MarketIndex returns the market of a pnl pool key.
func (k AccountKey) MarketIndex() uint16 {
	return binary.BigEndian.Uint16(k.EntityID[:2])
}

// AccountPath renders the key as stored in the journal and projections.
func (k AccountKey) AccountPath() string {
	asset, ok := GetAssetName(k.AssetID)
	if !ok {
		asset = strconv.Itoa(int(k.AssetID))
	}
	switch k.Scope {
	case AccountScopeUser:
		return fmt.Sprintf("user:%s:%s:%s", uuid.UUID(k.EntityID), k.SubType, asset)
	case AccountScopeSystem:
		if k.SubType == SubTypeSystemPnlPool {
			return fmt.Sprintf("system:market:%d:%s:%s", k.MarketIndex(), k.SubType, asset)
		}
		return fmt.Sprintf("system:%s:%s", k.SubType, asset)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.SubType, asset)
	}
	return "unknown"
}

func (k AccountKey) String() string { return k.AccountPath() }

func (k AccountKey) MarshalText() ([]byte, error) {
	return []byte(k.AccountPath()), nil
}

func (k *AccountKey) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountPath(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseAccountPath is the inverse of AccountPath.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	bad := func() (AccountKey, error) {
		return AccountKey{}, fmt.Errorf("invalid account path %q", path)
	}
	if len(parts) < 3 {
		return bad()
	}
	asset, ok := GetAssetID(parts[len(parts)-1])
	if !ok {
		return bad()
	}
	subType, ok := parseSubType(parts[len(parts)-2])
	if !ok {
		return bad()
	}

	switch {
	case parts[0] == "user" && len(parts) == 4 && subType == SubTypeCollateral:
		id, err := uuid.Parse(parts[1])
		if err != nil {
			return bad()
		}
		return NewUserAccountKey(id, subType, asset), nil
	case parts[0] == "system" && len(parts) == 5 && parts[1] == "market" && subType == SubTypeSystemPnlPool:
		mi, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return bad()
		}
		return NewPnlPoolAccountKey(uint16(mi), asset), nil
	case parts[0] == "system" && len(parts) == 3 && subType == SubTypeSystemInsuranceVault:
		return NewInsuranceVaultAccountKey(asset), nil
	case parts[0] == "external" && len(parts) == 3 &&
		(subType == SubTypeExternalDeposits || subType == SubTypeExternalWithdrawals):
		return NewExternalAccountKey(subType, asset), nil
	}
	return bad()
}
