package dto

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries a freshly issued bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Message     string `json:"message"`
}

// ProfileResponse is returned by GET /api/h5/me.
type ProfileResponse struct {
	Username       string `json:"username"`
	GenerateQuota  int    `json:"generate_quota"`
	DailyFreeUsed  int    `json:"daily_free_used"`
	DailyFreeTotal int    `json:"daily_free_total"`
}

// PayRequest is the body of POST /api/h5/pay.
type PayRequest struct {
	AmountRMB int `json:"amount_rmb"`
}

// PayResponse reports the new paid balance.
type PayResponse struct {
	Message  string `json:"message"`
	NewQuota int    `json:"new_quota"`
}

// GatedMindmapResponse is returned by POST /api/h5/generate_mindmap.
// QuotaUsed is "free_daily_quota" or "paid_quota".
type GatedMindmapResponse struct {
	PDFURL    string `json:"pdf_url"`
	Message   string `json:"message"`
	QuotaUsed string `json:"quota_used"`
}
