package models

type User struct {
	Base
	Email           string `gorm:"uniqueIndex;not null" json:"email"`
	Name            string `json:"name"`
	AvatarURL       string `json:"avatar_url"`
	Provider        string `gorm:"index:idx_user_provider_subject" json:"provider"`
	ProviderSubject string `gorm:"index:idx_user_provider_subject" json:"provider_subject"`
}

func (User) TableName() string {
	return TableUsers
}
