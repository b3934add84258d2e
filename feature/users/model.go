package users

import (
	"time"

	"directory-sync/core/reconcile"
	"directory-sync/core/utils"
)

// TableName is the mirror table.
const TableName = "users"

// User is one row of the mirror table. Optional attributes are nullable.
type User struct {
	ID             string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	Email          *string    `gorm:"column:email;size:255;uniqueIndex" json:"email,omitempty"`
	FirstName      *string    `gorm:"column:first_name;size:128" json:"firstName,omitempty"`
	LastName       *string    `gorm:"column:last_name;size:128" json:"lastName,omitempty"`
	Phone          *string    `gorm:"column:phone;size:64" json:"phone,omitempty"`
	Mobile         *string    `gorm:"column:mobile;size:64" json:"mobile,omitempty"`
	Department     *string    `gorm:"column:department;size:128" json:"department,omitempty"`
	Title          *string    `gorm:"column:title;size:128" json:"title,omitempty"`
	Active         bool       `gorm:"column:active;not null" json:"active"`
	InactiveReason *string    `gorm:"column:inactive_reason;size:255" json:"inactiveReason,omitempty"`
	InactiveDate   *time.Time `gorm:"column:inactive_date" json:"inactiveDate,omitempty"`
	Source         *string    `gorm:"column:source;size:32" json:"source,omitempty"`
	CreatedAt      time.Time  `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName overrides the gorm table name.
func (User) TableName() string { return TableName }

// Profile maps record field names to table columns.
var Profile = map[string]string{
	"id":                          "id",
	"email":                       "email",
	"firstName":                   "first_name",
	"lastName":                    "last_name",
	"phone":                       "phone",
	"mobile":                      "mobile",
	"department":                  "department",
	"title":                       "title",
	reconcile.ActiveField:         "active",
	reconcile.InactiveReasonField: "inactive_reason",
	reconcile.InactiveDateField:   "inactive_date",
	reconcile.SourceField:         "source",
	"createdAt":                   "created_at",
	"updatedAt":                   "updated_at",
}

// stringFields are the nullable text attributes, by record field name.
func (u *User) stringFields() map[string]**string {
	return map[string]**string{
		"email":                       &u.Email,
		"firstName":                   &u.FirstName,
		"lastName":                    &u.LastName,
		"phone":                       &u.Phone,
		"mobile":                      &u.Mobile,
		"department":                  &u.Department,
		"title":                       &u.Title,
		reconcile.InactiveReasonField: &u.InactiveReason,
		reconcile.SourceField:         &u.Source,
	}
}

// Record converts the row to an engine record. NULL attributes are left out.
func (u *User) Record() reconcile.Record {
	r := reconcile.Record{
		"id":                  u.ID,
		reconcile.ActiveField: u.Active,
		"createdAt":           u.CreatedAt,
		"updatedAt":           u.UpdatedAt,
	}
	for field, ptr := range u.stringFields() {
		if *ptr != nil {
			r[field] = **ptr
		}
	}
	if u.InactiveDate != nil {
		r[reconcile.InactiveDateField] = u.InactiveDate.UTC().Format(time.RFC3339)
	}
	return r
}

// userFromRecord builds a new row from an engine record.
func userFromRecord(r reconcile.Record) User {
	u := User{ID: utils.ToString(r["id"]), Active: true}
	for field, ptr := range u.stringFields() {
		if v, ok := r[field]; ok && v != nil {
			s := utils.ToString(v)
			*ptr = &s
		}
	}
	if v, ok := r[reconcile.ActiveField]; ok {
		u.Active = utils.ToBool(v)
	}
	if t, ok := reconcile.ParseTimestamp(r[reconcile.InactiveDateField]); ok {
		u.InactiveDate = &t
	}
	return u
}

// columns converts record fields to a column update map.
// Unknown fields are returned separately.
func columns(fields reconcile.Record) (map[string]any, []string) {
	updates := make(map[string]any, len(fields))
	var unknown []string
	for field, v := range fields {
		col, ok := Profile[field]
		if !ok || field == "id" || field == "createdAt" || field == "updatedAt" {
			if !ok {
				unknown = append(unknown, field)
			}
			continue
		}
		switch field {
		case reconcile.ActiveField:
			updates[col] = utils.ToBool(v)
		case reconcile.InactiveDateField:
			if t, ok := reconcile.ParseTimestamp(v); ok {
				updates[col] = t
			} else {
				updates[col] = nil
			}
		default:
			if v == nil {
				updates[col] = nil
			} else {
				updates[col] = utils.ToString(v)
			}
		}
	}
	return updates, unknown
}
