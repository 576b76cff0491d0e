package model

type ErrorResponse struct {
	Error string `json:"error"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type AuthLogoutResponse struct {
	Status string `json:"status"`
}

type AuthMeResponse struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	RoleID   int    `json:"roleId"`
	StateID  int    `json:"stateId"`
}

type SignInResponse struct {
	User AuthMeResponse `json:"user"`
}

type SignUpResponse struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type StoreTestResponse struct {
	Resp bool `json:"resp"`
}
