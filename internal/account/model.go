package account

import "time"

type Account struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterForm struct {
	Username string `validate:"required,min=3,max=30,alphanum"`
	Email    string `validate:"omitempty,email"`
	Password string `validate:"required,min=8,max=72"`
}

type LoginForm struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}
