package domain

// Attachment is a file carried with an alert.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is the rendered alert handed to a transport.
type Message struct {
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}
