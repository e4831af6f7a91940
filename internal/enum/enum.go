package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "pending"
	OrderStatusPreparing = "preparing"
	OrderStatusServed    = "served"
	OrderStatusPaid      = "paid"
	OrderStatusCleared   = "cleared"
)

// ── Group B: Wire/storage encodings (codec boundary) ──

// Storage tokens for the legacy bare-token payment_method form. A bare
// token with no colon means "all of amount_paid via this method".
const (
	PaymentMethodCash   = "cash"
	PaymentMethodMobile = "mobile"
	PaymentMethodCard   = "card"
)

// Display names used by terminals and in the colon-delimited multi-method
// form. Legacy single-method orders normalize mpesa→mobile, kcb→card.
const (
	MethodDisplayCash  = "cash"
	MethodDisplayMpesa = "mpesa"
	MethodDisplayKCB   = "kcb"
)

// ContributionDebt tags a settlement contribution as a named debt rather
// than a collected payment.
const ContributionDebt = "debt"

// ── Group C: Configurable labels (CHECK constrained in DB) ──

const (
	FulfillmentKitchen = "kitchen"
	FulfillmentDirect  = "direct"
	FulfillmentCombo   = "combo"
)

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleWaiter  = "WAITER"
	UserRoleChef    = "CHEF"
)
