package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"fullName"`
	ProfilePic   string    `json:"profilePic"`
	PasswordHash string    `json:"-"`
	IsOnline     bool      `json:"isOnline"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserPublic — то, что видят другие пользователи (без хеша пароля).
type UserPublic struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	FullName   string    `json:"fullName"`
	ProfilePic string    `json:"profilePic"`
	IsOnline   bool      `json:"isOnline"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:         u.ID,
		Username:   u.Username,
		FullName:   u.FullName,
		ProfilePic: u.ProfilePic,
		IsOnline:   u.IsOnline,
		LastSeenAt: u.LastSeenAt,
	}
}

// DisplayName возвращает имя для системных сообщений: fullName, затем username, затем "Someone".
func (u *User) DisplayName() string {
	if u == nil {
		return "Someone"
	}
	if u.FullName != "" {
		return u.FullName
	}
	if u.Username != "" {
		return u.Username
	}
	return "Someone"
}

func (u *UserPublic) DisplayName() string {
	if u == nil {
		return "Someone"
	}
	if u.FullName != "" {
		return u.FullName
	}
	if u.Username != "" {
		return u.Username
	}
	return "Someone"
}

// UserPage — страница каталога пользователей.
type UserPage struct {
	Users      []UserPublic `json:"users"`
	Pagination Pagination   `json:"pagination"`
}
