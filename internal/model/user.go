package model

// swagger:model User
type User struct {
	// user_id is chosen by the client at registration.
	UserID     uint   `gorm:"primaryKey;autoIncrement:false;type:bigint unsigned" json:"user_id"`
	FirstName  string `gorm:"size:100;not null;index" json:"first_name"`
	LastName   string `gorm:"size:100;not null;index" json:"last_name"`
	Password   string `gorm:"size:100;not null" json:"-"`
	IsExaminer bool   `gorm:"not null;default:false;index" json:"is_examiner"`
	AuthImage  string `gorm:"size:255" json:"auth_image,omitempty"`
	Timestamps
}

func (User) TableName() string {
	return "users"
}
