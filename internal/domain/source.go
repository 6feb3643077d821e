package domain

// SourceKind classifies where a balance is held.
type SourceKind string

const (
	// SourceKindExchange spot balance on a centralized or on-chain exchange.
	SourceKindExchange SourceKind = "exchange"
	// SourceKindCustody self-custody wallet balance.
	SourceKindCustody SourceKind = "custody"
	// SourceKindLending lending-protocol collateral net of debt.
	SourceKindLending SourceKind = "lending"
	// SourceKindManual quantities declared in configuration.
	SourceKindManual SourceKind = "manual"
)

// String returns the string representation.
func (k SourceKind) String() string {
	return string(k)
}

// IsValid checks if the SourceKind value is valid.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceKindExchange, SourceKindCustody, SourceKindLending, SourceKindManual:
		return true
	}
	return false
}
