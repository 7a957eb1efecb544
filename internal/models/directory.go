package models

import "time"

// Person is an individual who can be enrolled in a course.
type Person struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	DNI       string    `db:"dni" json:"dni"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Course is a traffic-safety course.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// OfficialKind distinguishes the two consumer directories.
type OfficialKind string

const (
	OfficialInspector OfficialKind = "inspectors"
	OfficialJudge     OfficialKind = "judges"
)

// Official is an inspector or judge able to consume a certification.
type Official struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DirectoryFilter is shared by the directory list endpoints.
type DirectoryFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
