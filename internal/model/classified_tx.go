package model

// ClassifiedTx is a transaction that matched the registry, tagged with how it matched.
// Transaction is carried unchanged from the raw feed.
type ClassifiedTx struct {
	Transaction Transaction `json:"transaction"`
	Role        Role        `json:"role"`
	Dex         string      `json:"dex,omitempty"`
	DexVersion  int         `json:"dex_version,omitempty"`
}
