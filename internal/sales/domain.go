package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tags how a sale originated.
type Source string

const (
	SourcePrescription   Source = "prescription"
	SourceOverTheCounter Source = "otc"
	SourceDrugOrder      Source = "drug_order"
)

// PaymentMethod records how the patient paid. Informational only.
type PaymentMethod string

const (
	PaymentCash      PaymentMethod = "cash"
	PaymentCard      PaymentMethod = "card"
	PaymentMobile    PaymentMethod = "mobile"
	PaymentInsurance PaymentMethod = "insurance"
)

// PaymentStatus is informational; it never drives stock behaviour.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// SaleItem is one ordered line. DrugName and UnitPrice are captured when the line
// is priced and are not refreshed when the stock entry later changes.
type SaleItem struct {
	DrugID     string          `json:"drugId"`
	DrugName   string          `json:"drugName"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// Sale is the persisted sale document. Subtotal and Total are derived from the
// items, discount and tax and are stored only for querying.
type Sale struct {
	SaleID        string          `json:"saleId"`
	Source        Source          `json:"source"`
	DrugOrderID   string          `json:"drugOrderId,omitempty"`
	PatientName   string          `json:"patientName,omitempty"`
	PatientPhone  string          `json:"patientPhone,omitempty"`
	Items         []SaleItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	RecordedBy    string          `json:"recordedBy"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// MaxLineQuantity caps the units of one entry in a single sale, summed over
// repeated lines. It keeps quantities far inside the ledger's INTEGER column.
const MaxLineQuantity = 100000

// ItemRequest asks for quantity units of a stock entry. UnitPrice defaults to the
// entry's selling price at resolution time.
type ItemRequest struct {
	EntryID   string           `json:"drugId" validate:"required,max=64"`
	Quantity  int              `json:"quantity" validate:"gt=0,lte=100000"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

// CreateSaleInput is the request to record a new sale.
type CreateSaleInput struct {
	Items         []ItemRequest    `json:"items" validate:"required,min=1,max=200,dive"`
	Source        Source           `json:"source" validate:"omitempty,oneof=prescription otc drug_order"`
	DrugOrderID   string           `json:"drugOrderId" validate:"omitempty,max=64"`
	PatientName   string           `json:"patientName" validate:"omitempty,max=200"`
	PatientPhone  string           `json:"patientPhone" validate:"omitempty,max=50"`
	Discount      *decimal.Decimal `json:"discount,omitempty"`
	Tax           *decimal.Decimal `json:"tax,omitempty"`
	PaymentMethod PaymentMethod    `json:"paymentMethod" validate:"omitempty,oneof=cash card mobile insurance"`
	PaymentStatus PaymentStatus    `json:"paymentStatus" validate:"omitempty,oneof=pending partial paid"`

	// RecordedBy and IdempotencyKey come from the request envelope, not the body.
	RecordedBy     string `json:"-"`
	IdempotencyKey string `json:"-"`
}

// EditSaleInput replaces a sale's items and optionally overrides metadata.
// A nil Items keeps the current lines and touches no stock.
type EditSaleInput struct {
	Items         []ItemRequest    `json:"items,omitempty" validate:"omitempty,max=200,dive"`
	PatientName   *string          `json:"patientName,omitempty" validate:"omitempty,max=200"`
	PatientPhone  *string          `json:"patientPhone,omitempty" validate:"omitempty,max=50"`
	Discount      *decimal.Decimal `json:"discount,omitempty"`
	Tax           *decimal.Decimal `json:"tax,omitempty"`
	PaymentMethod *PaymentMethod   `json:"paymentMethod,omitempty" validate:"omitempty,oneof=cash card mobile insurance"`
	PaymentStatus *PaymentStatus   `json:"paymentStatus,omitempty" validate:"omitempty,oneof=pending partial paid"`

	RecordedBy string `json:"-"`
}

// ListFilter narrows sale listings.
type ListFilter struct {
	Source        Source
	PaymentStatus PaymentStatus
	DrugOrderID   string
	Patient       string
	From          time.Time
	To            time.Time
	Page          int
	PerPage       int
}
