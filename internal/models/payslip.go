package models

import "time"

// Employee represents one employee record as returned by the backend
type Employee struct {
	ID          int       `json:"id"`
	UUID        string    `json:"uuid,omitempty"`
	IppisNumber string    `json:"ippisNumber"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Email       string    `json:"email"`
	Department  string    `json:"department,omitempty"`
	Position    string    `json:"position,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PayslipBatch represents one uploaded batch of payslips and its
// processing/email dispatch state
type PayslipBatch struct {
	ID             int        `json:"id"`
	UUID           string     `json:"uuid"`
	FileName       string     `json:"fileName"`
	PayMonth       string     `json:"payMonth"` // YYYY-MM
	TotalFiles     int        `json:"totalFiles"`
	ProcessedFiles int        `json:"processedFiles"`
	SuccessCount   int        `json:"successCount"`
	FailureCount   int        `json:"failureCount"`
	Status         string     `json:"status"`      // pending|processing|processed|failed|completed
	EmailStatus    string     `json:"emailStatus"` // pending|sending|completed|partial|failed
	SentAt         *time.Time `json:"sentAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// PaginationMeta describes one page of a collection response
type PaginationMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// EmployeePage is one page of the employee collection
type EmployeePage struct {
	Employees []Employee
	Meta      PaginationMeta
}

// BatchPage is one page of the payslip batch collection
type BatchPage struct {
	Batches []PayslipBatch
	Meta    PaginationMeta
}
