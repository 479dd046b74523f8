package model

// Role is the part a transaction's destination plays in the contract registry.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleRouter
	RoleFactory
	RoleContractCreation
)

func (r Role) String() string {
	switch r {
	case RoleRouter:
		return "router"
	case RoleFactory:
		return "factory"
	case RoleContractCreation:
		return "contract_creation"
	default:
		return "unknown"
	}
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name; unrecognised names map to RoleUnknown.
func (r *Role) UnmarshalText(text []byte) error {
	switch string(text) {
	case "router":
		*r = RoleRouter
	case "factory":
		*r = RoleFactory
	case "contract_creation":
		*r = RoleContractCreation
	default:
		*r = RoleUnknown
	}
	return nil
}
