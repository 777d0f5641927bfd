package dto

// ConnectResponse starts an OAuth consent flow.
type ConnectResponse struct {
	AuthURL string `json:"auth_url"`
}

// ConnectIMAPRequest connects a plain IMAP mailbox.
type ConnectIMAPRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Server   string `json:"server" binding:"required"`
	Port     int    `json:"port" binding:"required"`
}

// SendMessageRequest sends mail through a connected account.
type SendMessageRequest struct {
	To       string `json:"to" binding:"required"`
	Cc       string `json:"cc"`
	Bcc      string `json:"bcc"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
}
