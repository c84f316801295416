package mercadopago

import (
	"fmt"
	"strings"
	"time"

	"webhook-service/models"
)

// Preference is the checkout preference payload sent to the processor.
type Preference struct {
	Items             []PreferenceItem `json:"items"`
	BackURLs          BackURLs         `json:"back_urls"`
	AutoReturn        string           `json:"auto_return,omitempty"`
	NotificationURL   string           `json:"notification_url,omitempty"`
	Payer             PreferencePayer  `json:"payer"`
	ExternalReference string           `json:"external_reference,omitempty"`
	PaymentMethods    PaymentMethods   `json:"payment_methods"`
	Expires           bool             `json:"expires"`
	ExpirationFrom    string           `json:"expiration_date_from,omitempty"`
	ExpirationTo      string           `json:"expiration_date_to,omitempty"`
}

type PreferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Descr      string  `json:"description"`
	CategoryID string  `json:"category_id,omitempty"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type PreferencePayer struct {
	Email          string         `json:"email"`
	Phone          Phone          `json:"phone"`
	Identification Identification `json:"identification"`
}

type Phone struct {
	AreaCode string `json:"area_code"`
	Number   string `json:"number"`
}

type Identification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type PaymentMethods struct {
	Installments        int `json:"installments"`
	DefaultInstallments int `json:"default_installments"`
}

// PreferenceResult is the processor's response to a preference creation.
type PreferenceResult struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// BuildPreference maps a frontend request onto a processor preference.
// siteBaseURL provides the buyer return pages; notificationURL points
// back at the webhook endpoint.
func BuildPreference(req *models.PreferenceRequest, siteBaseURL, notificationURL string, now time.Time) *Preference {
	areaCode, number := splitPhone(req.BuyerPhone)

	return &Preference{
		Items: []PreferenceItem{{
			ID:         req.ID,
			Title:      req.Title,
			Descr:      orDefault(req.Description, req.Title),
			CategoryID: "education",
			Quantity:   1,
			UnitPrice:  req.Price,
			CurrencyID: "BRL",
		}},
		BackURLs: BackURLs{
			Success: siteBaseURL + "/pagamento/sucesso",
			Failure: siteBaseURL + "/pagamento/falha",
			Pending: siteBaseURL + "/pagamento/pendente",
		},
		AutoReturn:      "approved",
		NotificationURL: notificationURL,
		Payer: PreferencePayer{
			Email: req.BuyerEmail,
			Phone: Phone{AreaCode: areaCode, Number: number},
			Identification: Identification{
				Type:   "CPF",
				Number: req.BuyerCPF,
			},
		},
		ExternalReference: fmt.Sprintf("%s_%d", req.ID, now.UnixMilli()),
		PaymentMethods: PaymentMethods{
			Installments:        12,
			DefaultInstallments: 1,
		},
		Expires:        true,
		ExpirationFrom: now.UTC().Format(time.RFC3339),
		ExpirationTo:   now.Add(24 * time.Hour).UTC().Format(time.RFC3339),
	}
}

// splitPhone extracts the two-digit area code from an 11-digit
// Brazilian mobile number. Anything else is returned as-is with an
// empty area code.
func splitPhone(raw string) (areaCode, number string) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	if len(digits) == 11 {
		return digits[:2], digits[2:]
	}
	return "", digits
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
