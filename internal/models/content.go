package models

const (
	NotesCollection        = "notes"
	VideosCollection       = "videos"
	CertificatesCollection = "certificates"
	UsersCollection        = "users"
	BlogsCollection        = "blogs"
)

type Note struct {
	ID     string `json:"id"`
	Title  string `json:"title" validate:"required,max=255"`
	Module string `json:"module" validate:"max=255"`
	URL    string `json:"url" validate:"required"`
}

type Video struct {
	ID          string `json:"id"`
	URL         string `json:"url" validate:"required,url"`
	Title       string `json:"title,omitempty" validate:"max=255"`
	Description string `json:"description,omitempty" validate:"max=2000"`
}

type Certificate struct {
	ID        string `json:"id"`
	UserID    string `json:"userId" validate:"required"`
	UserName  string `json:"userName" validate:"max=255"`
	UserEmail string `json:"userEmail" validate:"omitempty,email"`
	AccessURL string `json:"accessUrl" validate:"required"`
	IssuedBy  string `json:"issuedBy"`
	IssuedAt  string `json:"issuedAt" validate:"required"`
}

// User is read loosely; the users collection carries no schema.
type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	Certified      bool   `json:"certified"`
	CertifiedDate  string `json:"certifiedDate,omitempty"`
	CertificateURL string `json:"certificateUrl,omitempty"`
}
