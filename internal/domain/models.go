// Package domain defines the persistence models of the course catalogue.
// These types are mapped with GORM and shared by the repository and service
// layers; the HTTP representation lives in the schema package.
package domain

// Course is the only resource exposed by the API.
//
// Fields:
//   - ID: auto-increment integer primary key, assigned by the store on insert
//     and never reassigned.
//   - Name: human-readable course name (max 255 chars). Unique across all
//     courses, enforced by the ux_courses_name index.
type Course struct {
	ID   uint   `json:"id"   gorm:"primaryKey;autoIncrement"`
	Name string `json:"name" gorm:"type:varchar(255);not null;uniqueIndex:ux_courses_name"`
}

// TableName returns the database table name for Course.
func (Course) TableName() string { return "courses" }
