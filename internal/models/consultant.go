package models

import "time"

type Consultant struct {
	ID               int64     `yaml:"id" json:"id"`
	Name             string    `yaml:"name" json:"name"`
	Timezone         string    `yaml:"timezone" json:"timezone"`
	IncrementMinutes int       `yaml:"increment_minutes" json:"increment_minutes"`
	SortOrder        int64     `yaml:"sort_order" json:"sort_order"`
	IsActive         bool      `yaml:"is_active" json:"is_active"`
	CreatedAt        time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt        time.Time `yaml:"updated_at" json:"updated_at"`
}

// WeeklyTemplate maps weekday (0=Sunday .. 6=Saturday) to the ordered
// start times ("15:04") the consultant takes bookings on that weekday.
type WeeklyTemplate map[int][]string

// TemplateEntry is the yaml/seed representation of one template row.
type TemplateEntry struct {
	Weekday    int      `yaml:"weekday" json:"weekday"`
	StartTimes []string `yaml:"start_times" json:"start_times"`
}

// ConsultantSeed is the consultants.yaml shape.
type ConsultantSeed struct {
	Consultant `yaml:",inline"`
	Template   []TemplateEntry `yaml:"template"`
}
