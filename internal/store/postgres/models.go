package postgres

import (
	"time"

	"hearme/internal/domain"
)

type userModel struct {
	UID         string `gorm:"primaryKey"`
	Email       string `gorm:"not null"`
	DisplayName string
	Role        string
	PhotoData   string
	CreatedAt   time.Time
}

func (userModel) TableName() string { return "users" }

func (m userModel) toDomain() domain.User {
	return domain.User{
		ID:          m.UID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		Role:        domain.Role(m.Role),
		PhotoData:   m.PhotoData,
		CreatedAt:   m.CreatedAt,
	}
}

func userFromDomain(u domain.User) userModel {
	return userModel{
		UID:         u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		PhotoData:   u.PhotoData,
		CreatedAt:   u.CreatedAt,
	}
}

type postModel struct {
	Seq       uint   `gorm:"autoIncrement;uniqueIndex"`
	ID        string `gorm:"primaryKey"`
	UID       string `gorm:"index;not null"`
	Name      string
	Text      string    `gorm:"not null"`
	Likes     int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"index"`
}

func (postModel) TableName() string { return "posts" }

func (m postModel) toDomain() domain.Post {
	return domain.Post{
		ID:         m.ID,
		AuthorID:   m.UID,
		AuthorName: m.Name,
		Text:       m.Text,
		Likes:      m.Likes,
		CreatedAt:  m.CreatedAt,
	}
}

type transcriptModel struct {
	Seq            uint   `gorm:"autoIncrement;uniqueIndex"`
	ID             string `gorm:"primaryKey"`
	OwnerID        string `gorm:"index;not null"`
	SourceLanguage string
	TargetLanguage string
	Text           string
	Translation    string
	Origin         string
	CreatedAt      time.Time
}

func (transcriptModel) TableName() string { return "transcripts" }

func (m transcriptModel) toDomain() domain.Transcript {
	return domain.Transcript{
		ID:             m.ID,
		OwnerID:        m.OwnerID,
		SourceLanguage: m.SourceLanguage,
		TargetLanguage: m.TargetLanguage,
		Text:           m.Text,
		Translation:    m.Translation,
		Origin:         domain.TranscriptOrigin(m.Origin),
		CreatedAt:      m.CreatedAt,
	}
}

type credentialModel struct {
	Email        string `gorm:"primaryKey"`
	UID          string `gorm:"uniqueIndex;not null"`
	PasswordHash string
	Provider     string
	CreatedAt    time.Time
}

func (credentialModel) TableName() string { return "credentials" }
