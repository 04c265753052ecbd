package domain

// Role distinguishes the two kinds of account that may hold a token.
type Role string

const (
	RoleUser       Role = "user"
	RoleShopkeeper Role = "shopkeeper"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleShopkeeper
}

// Principal is the authenticated caller of a request.
// ID is the user id for RoleUser and the shop id for RoleShopkeeper.
type Principal struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// User is an account that submits print requests.
type User struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact,omitempty"`
	Address string `json:"address,omitempty"`
}

// Shop is a shopkeeper account together with the shop it runs.
type Shop struct {
	ID             int64   `json:"shop_id"`
	OwnerName      string  `json:"owner_name"`
	OwnerEmail     string  `json:"-"`
	Name           string  `json:"shop_name"`
	Address        string  `json:"address"`
	Contact        string  `json:"contact,omitempty"`
	CostSingleSide float64 `json:"cost_single_side"`
	CostBothSides  float64 `json:"cost_both_sides"`
}
