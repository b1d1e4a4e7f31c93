package models

const (
	OrderStatusPending   = "pending"
	OrderStatusApproved  = "approved"
	OrderStatusCancelled = "cancelled"
)

const (
	PaymentMethodCash   = "cash"
	PaymentMethodOnline = "online"
	PaymentMethodCutoff = "cutoff"
)

// ValidOrderStatus reports whether s is one of the known order statuses.
func ValidOrderStatus(s string) bool {
	return s == OrderStatusPending || s == OrderStatusApproved || s == OrderStatusCancelled
}

// ValidPaymentMethod reports whether m is one of the known payment methods.
func ValidPaymentMethod(m string) bool {
	return m == PaymentMethodCash || m == PaymentMethodOnline || m == PaymentMethodCutoff
}

type CreateOrderInput struct {
	Name          string
	ContactNumber string
	Email         string
	OrderChoice   string // "<qty>x <item name>" pairs, comma separated
	TotalPrice    int64
	PaymentMethod string
}

// Order is a row from the orders table. Timestamps are epoch milliseconds;
// StatusMS and PaymentMS are nil until staff first change status or payment.
type Order struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContactNumber string `json:"contactNumber"`
	Email         string `json:"email"`
	OrderChoice   string `json:"orderChoice"`
	TotalPrice    int64  `json:"totalPrice"`
	PaymentMethod string `json:"paymentMethod"`
	Status        string `json:"status"`
	IsPaid        bool   `json:"isPaid"`
	PlacedMS      int64  `json:"timestamp"`
	StatusMS      *int64 `json:"statusTimestamp,omitempty"`
	PaymentMS     *int64 `json:"paymentTimestamp,omitempty"`
}

// OrderLine is one parsed entry of an order's item text.
type OrderLine struct {
	Item string
	Qty  int
}
