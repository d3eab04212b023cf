package model

// AdminLoginRequest is the payload for admin authentication.
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// GlobalStats is the admin dashboard summary.
type GlobalStats struct {
	ActiveExams       int `json:"active_exams"`
	CompletedStudents int `json:"completed_students"`
	OnlineStudents    int `json:"online_students"`
}
