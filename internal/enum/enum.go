package enum

// ── Group A: State machines ──

const (
	SessionIdle      = "IDLE"
	SessionPreparing = "PREPARING"
	SessionReady     = "READY"
)

// ── Group B: Values the remote API validates ──

const (
	PaymentStatusPaid    = "Paid"
	PaymentStatusUnpaid  = "Unpaid"
	PaymentStatusPartial = "Partial Paid"
)

const (
	UserRoleAdmin    = "admin"
	UserRoleSubAdmin = "sub_admin"
	UserRoleUser     = "user"
)

const (
	FeatureDashboard = "dashboard"
	FeatureProducts  = "products"
	FeatureOrders    = "orders"
	FeatureReports   = "reports"
	FeatureSettings  = "settings"
	FeatureExpenses  = "expenses"
)

// ── Group C: Configurable labels (seed values for reference lists) ──

const (
	OrderStatusDispatch       = "Dispatch"
	OrderStatusDelivered      = "Delivered"
	OrderStatusInTransit      = "In Transit"
	OrderStatusOutForDelivery = "Out for Delivery"
	OrderStatusCancelled      = "Cancelled"
	OrderStatusReturned       = "Returned"
)

const (
	PaymentMethodCOD        = "Cash On Delivery"
	PaymentMethodBank       = "Bank"
	PaymentMethodCreditCard = "Credit Card"
	PaymentMethodWallet     = "EasyPaisa/JazzCash"
)

const (
	CourierTCS      = "TCS"
	CourierLeopards = "Leopards"
	CourierDHL      = "DHL"
	CourierFedEx    = "FedEx"
)

const (
	ChannelWhatsapp = "Whatsapp"
	ChannelDirect   = "Direct"
	ChannelOnline   = "Online"
)

// Reference list kinds served by api/dropdowns.
const (
	RefStatuses        = "statuses"
	RefPaymentStatuses = "payment-statuses"
	RefCouriers        = "couriers"
	RefChannels        = "channels"
)

// ── Events ──

const (
	EventProductsChanged = "products.changed"
	EventOrdersChanged   = "orders.changed"
	EventDraftUpdated    = "draft.updated"
)
