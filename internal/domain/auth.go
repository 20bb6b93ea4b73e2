package domain

// TelegramUser is the identity payload inside validated Mini App init data.
type TelegramUser struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  *string `json:"last_name,omitempty"`
	Username  *string `json:"username,omitempty"`
}

// TokenResponse carries a signed access token for clients that prefer a
// bearer token over re-sending init data on every request.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}
