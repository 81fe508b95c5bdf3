// Package domain defines typed identifiers shared across modules.
//
// Each entity gets its own UUID-backed type so a CaseID can never be passed
// where a UserID is expected. Conversions are explicit at the boundaries
// (stores, transport) and nowhere else.
package domain

import "github.com/google/uuid"

type (
	// TenantID identifies a tenant organization.
	TenantID uuid.UUID

	// UserID identifies a user account.
	UserID uuid.UUID

	// CaseID identifies a case record.
	CaseID uuid.UUID

	// CategoryID identifies a case category.
	CategoryID uuid.UUID
)

func (id TenantID) String() string   { return uuid.UUID(id).String() }
func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id CaseID) String() string     { return uuid.UUID(id).String() }
func (id CategoryID) String() string { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CaseID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CategoryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshaling so the typed IDs render as UUID strings in JSON.

func (id TenantID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id CaseID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id CategoryID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *TenantID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = TenantID(u)
	return nil
}

func (id *UserID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = UserID(u)
	return nil
}

func (id *CaseID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = CaseID(u)
	return nil
}

func (id *CategoryID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = CategoryID(u)
	return nil
}

// ParseUserID parses a textual UUID into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseCaseID parses a textual UUID into a CaseID.
func ParseCaseID(s string) (CaseID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return CaseID{}, err
	}
	return CaseID(u), nil
}

// ParseTenantID parses a textual UUID into a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TenantID{}, err
	}
	return TenantID(u), nil
}
