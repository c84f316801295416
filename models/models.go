package models

// PaymentStatus is the normalized processor payment state.
type PaymentStatus string

const (
	StatusApproved PaymentStatus = "approved"
	StatusPending  PaymentStatus = "pending"
	StatusRejected PaymentStatus = "rejected"
	StatusOther    PaymentStatus = "other"
)

// NormalizeStatus maps a raw processor status onto the PaymentStatus enum.
func NormalizeStatus(raw string) PaymentStatus {
	switch raw {
	case "approved":
		return StatusApproved
	case "pending", "in_process", "in_mediation", "authorized":
		return StatusPending
	case "rejected", "cancelled", "refunded", "charged_back":
		return StatusRejected
	default:
		return StatusOther
	}
}

// Notification is the parsed view of an inbound processor notification.
// It lives for a single request.
type Notification struct {
	PaymentID string
	Topic     string
}

// PaymentRecord is the normalized payment detail fetched from the
// processor API. Read once per request, never mutated.
type PaymentRecord struct {
	ID                string        `json:"id"`
	Status            PaymentStatus `json:"status"`
	StatusDetail      string        `json:"status_detail"`
	Amount            float64       `json:"amount"`
	Currency          string        `json:"currency"`
	Email             string        `json:"email"`
	NationalID        string        `json:"national_id"`
	PhoneAreaCode     string        `json:"phone_area_code"`
	PhoneNumber       string        `json:"phone_number"`
	ExternalReference string        `json:"external_reference"`
	PaymentMethod     string        `json:"payment_method"`
	Installments      int           `json:"installments"`
}

// ConfirmationRecord is the payload forwarded to the downstream
// automation sink for an approved payment.
type ConfirmationRecord struct {
	PaymentID         string  `json:"payment_id"`
	Status            string  `json:"status"`
	CPF               string  `json:"cpf"`
	Telefone          string  `json:"telefone"`
	Email             string  `json:"email"`
	Valor             float64 `json:"valor"`
	ExternalReference string  `json:"external_reference,omitempty"`
	PaymentMethod     string  `json:"payment_method,omitempty"`
	Installments      int     `json:"installments,omitempty"`
	Timestamp         string  `json:"timestamp"`
}

// WebhookResponse is the acknowledgment body returned to the processor.
type WebhookResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Timestamp string `json:"timestamp"`
}

// PreferenceRequest is the frontend request to create a checkout preference.
type PreferenceRequest struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	BuyerEmail  string  `json:"buyer_email"`
	BuyerCPF    string  `json:"buyer_cpf"`
	BuyerPhone  string  `json:"buyer_phone"`
}

// PreferenceResponse is returned to the frontend after preference creation.
type PreferenceResponse struct {
	Success          bool   `json:"success"`
	PreferenceID     string `json:"preference_id,omitempty"`
	InitPoint        string `json:"init_point,omitempty"`
	SandboxInitPoint string `json:"sandbox_init_point,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Account summarizes the processor account tied to the access token.
type Account struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	SiteID string `json:"site_id"`
	Status string `json:"status"`
}
