package models

import (
	"time"
)

// Tier is the owner's subscription tier. It decides the monthly scan quota.
type Tier string

const (
	TierFree     Tier = "free"
	TierStarter  Tier = "starter"
	TierPro      Tier = "pro"
	TierBusiness Tier = "business"
)

// ContentType tags what a short link resolves to. Each type has exactly one
// destination derivation rule; see service.DeriveDestination.
type ContentType string

const (
	ContentURL      ContentType = "url"
	ContentEmail    ContentType = "email"
	ContentPhone    ContentType = "phone"
	ContentSMS      ContentType = "sms"
	ContentWhatsApp ContentType = "whatsapp"
	ContentTelegram ContentType = "telegram"
	ContentSocial   ContentType = "social"
	ContentFile     ContentType = "file"
	ContentPDF      ContentType = "pdf"
	ContentImage    ContentType = "image"
	ContentMenu     ContentType = "menu"
	ContentText     ContentType = "text"
	ContentWiFi     ContentType = "wifi"
	ContentVCard    ContentType = "vcard"
)

type ScheduleType string

const (
	ScheduleDaily  ScheduleType = "daily"
	ScheduleWeekly ScheduleType = "weekly"
)

// ScheduleRule is a recurring activation window. Times are minutes since
// midnight in the link's timezone; StartMinute > EndMinute means the window
// crosses midnight.
type ScheduleRule struct {
	Type        ScheduleType   `json:"type"`
	StartMinute int            `json:"start_minute"`
	EndMinute   int            `json:"end_minute"`
	DaysOfWeek  []time.Weekday `json:"days_of_week,omitempty"`
}

// ContentPayload holds the typed content a non-URL link was published with.
// Only the fields relevant to the link's ContentType are set.
type ContentPayload struct {
	Address    string `json:"address,omitempty"`     // email address
	Subject    string `json:"subject,omitempty"`     // email subject
	Phone      string `json:"phone,omitempty"`       // phone / sms / whatsapp number
	Message    string `json:"message,omitempty"`     // sms / whatsapp prefilled text
	Username   string `json:"username,omitempty"`    // telegram username
	ProfileURL string `json:"profile_url,omitempty"` // social profile
}

type Link struct {
	ID             int64           `json:"id"`
	ShortCode      string          `json:"short_code"`
	Name           string          `json:"name"`
	ContentType    ContentType     `json:"content_type"`
	DestinationURL *string         `json:"destination_url,omitempty"`
	Payload        *ContentPayload `json:"payload,omitempty"`

	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	ActiveFrom  *time.Time    `json:"active_from,omitempty"`
	ActiveUntil *time.Time    `json:"active_until,omitempty"`
	Schedule    *ScheduleRule `json:"schedule,omitempty"`
	Timezone    string        `json:"timezone,omitempty"`

	PasswordHash   *string `json:"-"`
	LandingPageURL *string `json:"landing_page_url,omitempty"`

	OwnerID          int64      `json:"owner_id"`
	Tier             Tier       `json:"tier"`
	ScanCount        int64      `json:"scan_count"`
	MonthlyScanCount int64      `json:"monthly_scan_count"`
	ScanCountResetAt *time.Time `json:"scan_count_reset_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
